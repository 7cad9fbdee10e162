package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"betpoints/models"
	log "github.com/sirupsen/logrus"
)

type wagerService struct {
	uowFactory      UnitOfWorkFactory
	primaryCurrency string
}

// NewWagerService creates a new wager service. All stakes move through the
// configured primary currency.
func NewWagerService(uowFactory UnitOfWorkFactory, primaryCurrency string) WagerService {
	return &wagerService{
		uowFactory:      uowFactory,
		primaryCurrency: primaryCurrency,
	}
}

// CreatePrediction opens a new proposition for wagering.
func (s *wagerService) CreatePrediction(ctx context.Context, title string, closingAt time.Time) (*models.Prediction, error) {
	if title = strings.TrimSpace(title); title == "" {
		return nil, fmt.Errorf("%w: prediction title is required", ErrValidation)
	}
	if !closingAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: closing time must be in the future", ErrValidation)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	prediction := &models.Prediction{
		Title:     title,
		ClosingAt: closingAt.UTC(),
	}
	if err := uow.PredictionRepository().Create(ctx, prediction); err != nil {
		return nil, fmt.Errorf("failed to create prediction: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"predictionID": prediction.ID,
		"closingAt":    prediction.ClosingAt,
	}).Info("Prediction created")

	return prediction, nil
}

// GetPrediction retrieves a prediction by ID.
func (s *wagerService) GetPrediction(ctx context.Context, id int64) (*models.Prediction, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	prediction, err := uow.PredictionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	if prediction == nil {
		return nil, fmt.Errorf("%w: prediction %d not found", ErrValidation, id)
	}
	return prediction, nil
}

// ListOpenPredictions returns predictions still accepting wagers.
func (s *wagerService) ListOpenPredictions(ctx context.Context) ([]*models.Prediction, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.PredictionRepository().ListOpen(ctx, time.Now().UTC())
}

// PlaceWager debits the stake and records the wager in one atomic unit.
// The closing-time check happens inside the same transaction as the debit,
// so a wager can never land on a prediction after it resolves.
func (s *wagerService) PlaceWager(ctx context.Context, userID, predictionID int64, side models.WagerSide, amount int64) (*models.Wager, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: side %q", ErrInvalidChoice, side)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: wager amount must be positive, got %d", ErrValidation, amount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// The share lock holds off a concurrent resolution claim until this
	// transaction commits, so a stake debited here always enters the pools.
	prediction, err := uow.PredictionRepository().GetByIDForShare(ctx, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	if prediction == nil {
		return nil, fmt.Errorf("%w: prediction %d not found", ErrValidation, predictionID)
	}
	if !prediction.AcceptsWagers(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: prediction %d", ErrPredictionClosed, predictionID)
	}

	pointType, err := resolvePointType(ctx, uow, s.primaryCurrency)
	if err != nil {
		return nil, err
	}

	refType := models.ReferenceTypePrediction
	balance, err := DebitBalance(ctx, uow, pointType, LedgerRequest{
		UserID: userID,
		Amount: amount,
		Kind:   models.TransactionKindSpend,
		Reason: fmt.Sprintf("Wager on prediction %d (%s)", predictionID, side),
		Ref:    &TransactionRef{Type: refType, ID: predictionID},
	})
	if err != nil {
		return nil, err
	}

	wager := &models.Wager{
		UserID:                userID,
		PredictionID:          predictionID,
		Side:                  side,
		Amount:                amount,
		RemainingBalanceAfter: balance.Balance,
	}
	if err := uow.WagerRepository().Create(ctx, wager); err != nil {
		return nil, fmt.Errorf("failed to create wager: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":       userID,
		"predictionID": predictionID,
		"side":         side,
		"amount":       amount,
		"balance":      balance.Balance,
	}).Info("Wager placed")

	return wager, nil
}

// GetStats aggregates the wagers on a prediction from the wager log.
func (s *wagerService) GetStats(ctx context.Context, predictionID int64) (*models.PredictionStats, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.WagerRepository().GetStats(ctx, predictionID)
}

// GetUserWagers returns a user's wagers annotated with resolution status.
func (s *wagerService) GetUserWagers(ctx context.Context, userID int64, limit int) ([]*models.UserWagerView, error) {
	if limit <= 0 || limit > 200 {
		limit = 25
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.WagerRepository().ListByUser(ctx, userID, limit)
}
