package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"betpoints/events"
	"betpoints/models"
	log "github.com/sirupsen/logrus"
)

type resolutionService struct {
	uowFactory      UnitOfWorkFactory
	ledger          LedgerService
	primaryCurrency string

	// coinFlip breaks exact volume ties in auto-resolution. Injectable so
	// tests can pin the outcome.
	coinFlip func() bool
}

// NewResolutionService creates a new resolution service
func NewResolutionService(uowFactory UnitOfWorkFactory, ledger LedgerService, primaryCurrency string) ResolutionService {
	return &resolutionService{
		uowFactory:      uowFactory,
		ledger:          ledger,
		primaryCurrency: primaryCurrency,
		coinFlip:        func() bool { return rand.IntN(2) == 0 },
	}
}

// Resolve declares the winning side of a prediction and settles payouts.
// The claim is a compare-and-set on the unresolved row, so of any number of
// concurrent resolvers exactly one settles; the rest get ErrAlreadyResolved.
func (s *resolutionService) Resolve(ctx context.Context, predictionID int64, winningChoice models.WagerSide, method models.ResolutionMethod) (*models.ResolutionResult, error) {
	if !winningChoice.Valid() {
		return nil, fmt.Errorf("%w: winning choice %q", ErrInvalidChoice, winningChoice)
	}
	return s.settle(ctx, predictionID, &winningChoice, method)
}

// AutoResolve picks the winning side by aggregate stake volume. Ties are
// broken by coin flip.
func (s *resolutionService) AutoResolve(ctx context.Context, predictionID int64) (*models.ResolutionResult, error) {
	return s.settle(ctx, predictionID, nil, models.ResolutionMethodAutoVolume)
}

// SweepDue auto-resolves every prediction past its closing time. Losing a
// race on an individual prediction is expected and benign; any other
// failure is logged and the sweep moves on.
func (s *resolutionService) SweepDue(ctx context.Context) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	due, err := uow.PredictionRepository().ListDueForResolution(ctx, time.Now().UTC())
	uow.Rollback()
	if err != nil {
		return fmt.Errorf("failed to list due predictions: %w", err)
	}

	for _, prediction := range due {
		result, err := s.AutoResolve(ctx, prediction.ID)
		if err != nil {
			entry := log.WithField("predictionID", prediction.ID)
			if IsAlreadyResolved(err) {
				entry.Debug("Prediction resolved by another caller during sweep")
				continue
			}
			entry.WithError(err).Error("Failed to auto-resolve prediction")
			continue
		}
		log.WithFields(log.Fields{
			"predictionID": prediction.ID,
			"choice":       result.WinningChoice,
			"winners":      result.WinnersCount,
		}).Info("Prediction auto-resolved by sweep")
	}
	return nil
}

// settle runs the two-phase resolution: claim the prediction and snapshot
// its stats in one transaction, then pay winners in independent ledger
// transactions. A nil winningChoice means pick by volume.
func (s *resolutionService) settle(ctx context.Context, predictionID int64, winningChoice *models.WagerSide, method models.ResolutionMethod) (*models.ResolutionResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// The exclusive lock waits out any in-flight wager transaction before
	// the pools are snapshotted; a late wager either lands in the stats
	// read below or is rejected once the claim commits.
	prediction, err := uow.PredictionRepository().GetByIDForUpdate(ctx, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	if prediction == nil {
		return nil, fmt.Errorf("%w: prediction %d not found", ErrValidation, predictionID)
	}
	if prediction.IsResolved() {
		return nil, fmt.Errorf("%w: prediction %d", ErrAlreadyResolved, predictionID)
	}

	stats, err := uow.WagerRepository().GetStats(ctx, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction stats: %w", err)
	}

	outcome, choice := s.pickOutcome(stats, winningChoice)

	claimed, err := uow.PredictionRepository().ClaimResolution(ctx, predictionID, outcome, method, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to claim resolution: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: prediction %d", ErrAlreadyResolved, predictionID)
	}

	var winners []*models.Wager
	if outcome != models.OutcomeNoBets {
		all, err := uow.WagerRepository().ListByPrediction(ctx, predictionID)
		if err != nil {
			return nil, fmt.Errorf("failed to list wagers: %w", err)
		}
		for _, w := range all {
			if w.Side == choice {
				winners = append(winners, w)
			}
		}
	}

	result := &models.ResolutionResult{
		PredictionID:  predictionID,
		WinningChoice: outcome,
		Method:        method,
		TotalPot:      stats.TotalPot(),
	}

	if outcome == models.OutcomeNoBets {
		uow.EventBus().Publish(resolvedEvent(result))
		if err := uow.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit resolution claim: %w", err)
		}
		log.WithField("predictionID", predictionID).Info("Prediction closed with no wagers")
		return result, nil
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit resolution claim: %w", err)
	}

	// Each payout is its own transaction. One user's failure must not block
	// the other winners; failures are collected for manual repair.
	winningPool, losingPool := stats.Pools(choice)
	for _, w := range winners {
		payout := w.Payout(winningPool, losingPool)
		if payout <= 0 {
			continue
		}
		refType := models.ReferenceTypePrediction
		_, err := s.ledger.Award(ctx, LedgerRequest{
			UserID:        w.UserID,
			Amount:        payout,
			PointTypeSlug: s.primaryCurrency,
			Kind:          models.TransactionKindEarn,
			Reason:        fmt.Sprintf("Winnings from prediction %d", predictionID),
			Ref:           &TransactionRef{Type: refType, ID: predictionID},
		})
		if err != nil {
			log.WithFields(log.Fields{
				"predictionID": predictionID,
				"userID":       w.UserID,
				"payout":       payout,
			}).WithError(err).Error("Failed to pay prediction winner")
			result.FailedPayouts = append(result.FailedPayouts, models.PayoutFailure{
				UserID: w.UserID,
				Amount: payout,
				Err:    err,
			})
			continue
		}
		result.WinnersCount++
		result.TotalWinnings += payout
	}

	// The settlement summary is persisted after the payouts it describes.
	totalsUow := s.uowFactory.Create()
	if err := totalsUow.Begin(ctx); err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer totalsUow.Rollback()
	if err := totalsUow.PredictionRepository().RecordPayoutTotals(ctx, predictionID, result.WinnersCount, result.TotalWinnings); err != nil {
		return result, fmt.Errorf("failed to record payout totals: %w", err)
	}
	totalsUow.EventBus().Publish(resolvedEvent(result))
	if err := totalsUow.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit payout totals: %w", err)
	}

	log.WithFields(log.Fields{
		"predictionID":  predictionID,
		"choice":        outcome,
		"method":        method,
		"winners":       result.WinnersCount,
		"totalWinnings": result.TotalWinnings,
		"failed":        len(result.FailedPayouts),
	}).Info("Prediction resolved")

	return result, nil
}

// pickOutcome maps the requested (or volume-derived) winning side onto the
// recorded outcome, substituting the no-bets sentinel for empty pools.
func (s *resolutionService) pickOutcome(stats *models.PredictionStats, winningChoice *models.WagerSide) (models.Outcome, models.WagerSide) {
	if !stats.HasWagers() {
		return models.OutcomeNoBets, ""
	}
	if winningChoice != nil {
		return winningChoice.Outcome(), *winningChoice
	}
	leader, tied := stats.VolumeLeader()
	if tied {
		if s.coinFlip() {
			leader = models.WagerSideYes
		} else {
			leader = models.WagerSideNo
		}
	}
	return leader.Outcome(), leader
}

func resolvedEvent(result *models.ResolutionResult) events.PredictionResolvedEvent {
	return events.PredictionResolvedEvent{
		PredictionID:         result.PredictionID,
		Choice:               result.WinningChoice,
		Method:               result.Method,
		WinnersCount:         result.WinnersCount,
		TotalWinningsAwarded: result.TotalWinnings,
		FailedPayouts:        len(result.FailedPayouts),
	}
}
