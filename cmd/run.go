package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"betpoints/config"
	"betpoints/database"
	"betpoints/events"
	"betpoints/models"
	"betpoints/repository"
	"betpoints/scheduler"
	"betpoints/service"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Println("Starting betpoints...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize services
	log.Println("Initializing services...")
	ledgerService := service.NewLedgerService(uowFactory)
	pointTypeService := service.NewPointTypeService(uowFactory)
	resolutionService := service.NewResolutionService(uowFactory, ledgerService, cfg.PrimaryCurrency)
	rankService := service.NewRankService(uowFactory, cfg.PrimaryCurrency)
	achievementService := service.NewAchievementService(uowFactory, ledgerService, nil, cfg.PrimaryCurrency)
	earningRulesService := service.NewEarningRulesService(uowFactory, nil, nil, cfg.PrimaryCurrency)
	log.Println("Services initialized successfully")

	// The primary currency must exist before any stake can move.
	if err := ensurePrimaryCurrency(ctx, pointTypeService, cfg.PrimaryCurrency); err != nil {
		return err
	}

	// Rank and achievement recomputation ride on committed balance changes.
	// Both are best-effort; a failure here never affects the ledger.
	subscribeSideEffects(eventBus, rankService, achievementService, earningRulesService)

	// Start the resolution sweeper
	sweeper := scheduler.NewSweeper(resolutionService, cfg.SweepInterval)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	// Wait for context cancellation
	log.Printf("betpoints is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Println("Shutting down...")
	sweeper.Stop()

	// Give cleanup operations time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close database connection
	log.Println("Closing database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Println("Shutdown completed")
	}

	return nil
}

func ensurePrimaryCurrency(ctx context.Context, pointTypes service.PointTypeService, slug string) error {
	if _, err := pointTypes.GetPointType(ctx, slug); err == nil {
		return nil
	}
	if _, err := pointTypes.CreatePointType(ctx, slug, slug, 0); err != nil {
		return fmt.Errorf("failed to create primary currency %q: %w", slug, err)
	}
	log.Printf("Primary currency %q created", slug)
	return nil
}

func subscribeSideEffects(bus *events.Bus, ranks service.RankService, achievements service.AchievementService, earningRules service.EarningRulesService) {
	recompute := func(ctx context.Context, userID int64, trigger models.TriggerAction) {
		if _, err := ranks.Recompute(ctx, userID); err != nil {
			log.Printf("Rank recompute failed for user %d: %v", userID, err)
		}
		if _, err := achievements.Evaluate(ctx, userID, trigger); err != nil {
			log.Printf("Achievement evaluation failed for user %d: %v", userID, err)
		}
	}

	bus.Subscribe(events.EventTypePointsAwarded, func(ctx context.Context, event events.Event) {
		e, ok := event.(events.PointsAwardedEvent)
		if !ok {
			return
		}
		trigger, processRules := awardTrigger(e)
		recompute(ctx, e.UserID, trigger)
		if processRules {
			trigCtx := &models.TriggerContext{BaseAmount: e.Amount}
			if _, err := earningRules.Process(ctx, e.UserID, trigger, trigCtx); err != nil {
				log.Printf("Earning rules failed for user %d: %v", e.UserID, err)
			}
		}
	})
	bus.Subscribe(events.EventTypePointsDeducted, func(ctx context.Context, event events.Event) {
		e, ok := event.(events.PointsDeductedEvent)
		if !ok {
			return
		}
		recompute(ctx, e.UserID, models.TriggerBetPlaced)

		// A spend against a prediction is a stake, which the rules engine
		// itself can never produce, so processing rules here cannot feed
		// back.
		if e.Kind == models.TransactionKindSpend && e.ReferenceType == models.ReferenceTypePrediction {
			trigCtx := &models.TriggerContext{WagerAmount: e.Amount, BaseAmount: e.Amount}
			if _, err := earningRules.Process(ctx, e.UserID, models.TriggerBetPlaced, trigCtx); err != nil {
				log.Printf("Earning rules failed for user %d: %v", e.UserID, err)
			}
		}
	})
}

// awardTrigger maps a credit event onto the platform action it represents.
// Rule and achievement grants derive nothing: the engine's own credits must
// never re-enter rule processing.
func awardTrigger(e events.PointsAwardedEvent) (models.TriggerAction, bool) {
	switch {
	case e.ReferenceType == models.ReferenceTypePrediction:
		return models.TriggerBetWon, true
	case e.Kind == models.TransactionKindPurchase:
		return models.TriggerPurchase, true
	default:
		return "", false
	}
}
