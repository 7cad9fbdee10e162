package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"betpoints/events"
	"betpoints/models"
	log "github.com/sirupsen/logrus"
)

type rankService struct {
	uowFactory      UnitOfWorkFactory
	primaryCurrency string
}

// NewRankService creates a new rank service. Rank is a pure function of the
// user's primary-currency balance; Recompute reconciles the stored current
// rank with that function.
func NewRankService(uowFactory UnitOfWorkFactory, primaryCurrency string) RankService {
	return &rankService{
		uowFactory:      uowFactory,
		primaryCurrency: primaryCurrency,
	}
}

// Recompute re-evaluates the user's rank against their current balance.
// Promotions and demotions both land here; an unchanged rank is a no-op.
// Returns the current rank row, nil when the user holds no rank.
func (s *rankService) Recompute(ctx context.Context, userID int64) (*models.UserRank, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	balance, err := s.primaryBalance(ctx, uow, userID)
	if err != nil {
		return nil, err
	}

	ranks, err := uow.RankRepository().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranks: %w", err)
	}

	target := models.HighestQualifiedRank(ranks, balance)

	// Lock the current row so two concurrent recomputes for the same user
	// serialize instead of both inserting a current rank.
	current, err := uow.RankRepository().GetCurrentForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get current rank: %w", err)
	}

	if target == nil {
		if current == nil {
			if err := uow.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return nil, nil
		}
		// Dropping off the ladder clears the current rank without an event;
		// there is no tier to announce.
		if err := uow.RankRepository().ClearCurrent(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to clear current rank: %w", err)
		}
		if err := uow.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		log.WithField("userID", userID).Info("User dropped off the rank ladder")
		return nil, nil
	}

	if current != nil && current.RankID == target.ID {
		if err := uow.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return current, nil
	}

	var previousRank *int64
	if current != nil {
		previousRank = &current.RankID
		if err := uow.RankRepository().ClearCurrent(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to clear current rank: %w", err)
		}
	}

	userRank := &models.UserRank{
		UserID:     userID,
		RankID:     target.ID,
		AchievedAt: time.Now().UTC(),
		IsCurrent:  true,
	}
	if err := uow.RankRepository().InsertCurrent(ctx, userRank); err != nil {
		return nil, fmt.Errorf("failed to insert current rank: %w", err)
	}

	uow.EventBus().Publish(events.RankChangedEvent{
		UserID:       userID,
		PreviousRank: previousRank,
		NewRank:      target.ID,
		NewRankSlug:  target.Slug,
		AchievedAt:   userRank.AchievedAt,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":  userID,
		"rank":    target.Slug,
		"balance": balance,
	}).Info("User rank changed")

	return userRank, nil
}

// Progress returns the read-side ladder position for a user.
func (s *rankService) Progress(ctx context.Context, userID int64) (*models.RankProgress, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	balance, err := s.primaryBalance(ctx, uow, userID)
	if err != nil {
		return nil, err
	}

	ranks, err := uow.RankRepository().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranks: %w", err)
	}

	return models.ComputeRankProgress(ranks, balance), nil
}

// CreateRank adds a tier to the ladder.
func (s *rankService) CreateRank(ctx context.Context, rank *models.Rank) error {
	if rank.Slug = strings.TrimSpace(strings.ToLower(rank.Slug)); rank.Slug == "" {
		return fmt.Errorf("%w: rank slug is required", ErrValidation)
	}
	if rank.Name = strings.TrimSpace(rank.Name); rank.Name == "" {
		return fmt.Errorf("%w: rank name is required", ErrValidation)
	}
	if rank.PointsRequired < 0 {
		return fmt.Errorf("%w: points required cannot be negative", ErrValidation)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rank.Active = true
	if err := uow.RankRepository().Create(ctx, rank); err != nil {
		return fmt.Errorf("failed to create rank: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"slug":      rank.Slug,
		"threshold": rank.PointsRequired,
	}).Info("Rank created")

	return nil
}

// ListRanks returns the active ladder ordered by threshold.
func (s *rankService) ListRanks(ctx context.Context) ([]*models.Rank, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.RankRepository().ListActive(ctx)
}

func (s *rankService) primaryBalance(ctx context.Context, uow UnitOfWork, userID int64) (int64, error) {
	pointType, err := uow.PointTypeRepository().GetBySlug(ctx, s.primaryCurrency)
	if err != nil {
		return 0, fmt.Errorf("failed to get point type: %w", err)
	}
	if pointType == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPointType, s.primaryCurrency)
	}

	balance, err := uow.BalanceRepository().Get(ctx, userID, pointType.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance == nil {
		return 0, nil
	}
	return balance.Balance, nil
}
