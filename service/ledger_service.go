package service

import (
	"context"
	"fmt"
	"time"

	"betpoints/events"
	"betpoints/models"
	log "github.com/sirupsen/logrus"
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
	}
}

// Award credits points to a user's balance.
func (s *ledgerService) Award(ctx context.Context, req LedgerRequest) (*models.UserPointBalance, error) {
	if req.Kind == "" {
		req.Kind = models.TransactionKindEarn
	}
	switch req.Kind {
	case models.TransactionKindEarn, models.TransactionKindPurchase, models.TransactionKindRefund:
	default:
		return nil, fmt.Errorf("%w: kind %q cannot credit a balance", ErrValidation, req.Kind)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: award amount must be positive, got %d", ErrValidation, req.Amount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	pointType, err := resolvePointType(ctx, uow, req.PointTypeSlug)
	if err != nil {
		return nil, err
	}

	balance, err := CreditBalance(ctx, uow, pointType, req)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":    req.UserID,
		"pointType": pointType.Slug,
		"amount":    req.Amount,
		"kind":      req.Kind,
		"balance":   balance.Balance,
	}).Info("Points awarded")

	return balance, nil
}

// Deduct debits points from a user's balance.
func (s *ledgerService) Deduct(ctx context.Context, req LedgerRequest) (*models.UserPointBalance, error) {
	if req.Kind == "" {
		req.Kind = models.TransactionKindSpend
	}
	if req.Kind != models.TransactionKindSpend {
		return nil, fmt.Errorf("%w: kind %q cannot debit a balance", ErrValidation, req.Kind)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: deduct amount must be positive, got %d", ErrValidation, req.Amount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	pointType, err := resolvePointType(ctx, uow, req.PointTypeSlug)
	if err != nil {
		return nil, err
	}

	balance, err := DebitBalance(ctx, uow, pointType, req)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":    req.UserID,
		"pointType": pointType.Slug,
		"amount":    req.Amount,
		"balance":   balance.Balance,
	}).Info("Points deducted")

	return balance, nil
}

// SetBalance overwrites a user's balance to an exact value. The change is
// logged as an adjust transaction whose before/after pair carries the
// direction; running totals are moved so balance = earned - spent holds.
func (s *ledgerService) SetBalance(ctx context.Context, req LedgerRequest) (*models.UserPointBalance, error) {
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: target balance cannot be negative, got %d", ErrValidation, req.Amount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	pointType, err := resolvePointType(ctx, uow, req.PointTypeSlug)
	if err != nil {
		return nil, err
	}

	balance, err := uow.BalanceRepository().GetForUpdate(ctx, req.UserID, pointType.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}

	delta := req.Amount - balance.Balance
	if delta == 0 {
		// Nothing to log; the ledger stays clean of zero-delta entries.
		if err := uow.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return balance, nil
	}

	before := balance.Balance
	balance.Balance = req.Amount
	if delta > 0 {
		balance.TotalEarned += delta
	} else {
		balance.TotalSpent += -delta
	}
	if err := uow.BalanceRepository().Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to save balance: %w", err)
	}

	magnitude := delta
	if magnitude < 0 {
		magnitude = -magnitude
	}
	transaction := &models.PointTransaction{
		UserID:        req.UserID,
		PointTypeID:   pointType.ID,
		Kind:          models.TransactionKindAdjust,
		Amount:        magnitude,
		BalanceBefore: before,
		BalanceAfter:  balance.Balance,
		Reason:        req.Reason,
		ActingAdminID: req.ActingAdminID,
	}
	if err := uow.PointTransactionRepository().Append(ctx, transaction); err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	if delta > 0 {
		uow.EventBus().Publish(events.PointsAwardedEvent{
			UserID:        req.UserID,
			PointTypeID:   pointType.ID,
			PointTypeSlug: pointType.Slug,
			Kind:          models.TransactionKindAdjust,
			Amount:        magnitude,
			BalanceBefore: before,
			BalanceAfter:  balance.Balance,
			Reason:        req.Reason,
			TransactionID: transaction.ID,
		})
	} else {
		uow.EventBus().Publish(events.PointsDeductedEvent{
			UserID:        req.UserID,
			PointTypeID:   pointType.ID,
			PointTypeSlug: pointType.Slug,
			Kind:          models.TransactionKindAdjust,
			Amount:        magnitude,
			BalanceBefore: before,
			BalanceAfter:  balance.Balance,
			Reason:        req.Reason,
			TransactionID: transaction.ID,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":    req.UserID,
		"pointType": pointType.Slug,
		"before":    before,
		"after":     balance.Balance,
		"admin":     req.ActingAdminID,
	}).Warn("Balance overwritten by admin")

	return balance, nil
}

// GetBalance returns the user's current balance. A pair that has never been
// touched, or a slug that does not exist, reads as zero rather than an error.
func (s *ledgerService) GetBalance(ctx context.Context, userID int64, pointTypeSlug string) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	pointType, err := uow.PointTypeRepository().GetBySlug(ctx, pointTypeSlug)
	if err != nil {
		return 0, fmt.Errorf("failed to get point type: %w", err)
	}
	if pointType == nil {
		return 0, nil
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

// GetTransactionHistory returns transactions ordered newest first.
func (s *ledgerService) GetTransactionHistory(ctx context.Context, userID int64, pointTypeSlug *string, limit, offset int) ([]*models.PointTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	var pointTypeID *int64
	if pointTypeSlug != nil {
		pointType, err := resolvePointType(ctx, uow, *pointTypeSlug)
		if err != nil {
			return nil, err
		}
		pointTypeID = &pointType.ID
	}

	transactions, err := uow.PointTransactionRepository().ListByUser(ctx, userID, pointTypeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactions, nil
}

// GetLeaderboard returns the top balances for a point type.
func (s *ledgerService) GetLeaderboard(ctx context.Context, pointTypeSlug string, limit int) ([]*models.UserPointBalance, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	pointType, err := resolvePointType(ctx, uow, pointTypeSlug)
	if err != nil {
		return nil, err
	}

	entries, err := uow.BalanceRepository().GetLeaderboard(ctx, pointType.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return entries, nil
}

// resolvePointType looks a slug up inside the current unit of work and maps
// missing or deactivated types to ErrUnknownPointType.
func resolvePointType(ctx context.Context, uow UnitOfWork, slug string) (*models.PointType, error) {
	pointType, err := uow.PointTypeRepository().GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get point type: %w", err)
	}
	if pointType == nil || !pointType.Active {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPointType, slug)
	}
	return pointType, nil
}

// CreditBalance applies a credit inside an already-begun unit of work. Other
// services compose it into their own transactions so a stake refund or a
// payout commits atomically with the rows that reference it.
func CreditBalance(ctx context.Context, uow UnitOfWork, pointType *models.PointType, req LedgerRequest) (*models.UserPointBalance, error) {
	balance, err := uow.BalanceRepository().GetForUpdate(ctx, req.UserID, pointType.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}

	before := balance.Balance
	balance.Balance += req.Amount
	balance.TotalEarned += req.Amount
	if err := uow.BalanceRepository().Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to save balance: %w", err)
	}

	transaction := buildTransaction(pointType.ID, before, balance.Balance, req)
	if err := uow.PointTransactionRepository().Append(ctx, transaction); err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	event := events.PointsAwardedEvent{
		UserID:        req.UserID,
		PointTypeID:   pointType.ID,
		PointTypeSlug: pointType.Slug,
		Kind:          req.Kind,
		Amount:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  balance.Balance,
		Reason:        req.Reason,
		TransactionID: transaction.ID,
	}
	if req.Ref != nil {
		event.ReferenceType = req.Ref.Type
		event.ReferenceID = req.Ref.ID
	}
	uow.EventBus().Publish(event)
	return balance, nil
}

// DebitBalance applies a debit inside an already-begun unit of work, failing
// with ErrInsufficientFunds before the balance would go negative.
func DebitBalance(ctx context.Context, uow UnitOfWork, pointType *models.PointType, req LedgerRequest) (*models.UserPointBalance, error) {
	balance, err := uow.BalanceRepository().GetForUpdate(ctx, req.UserID, pointType.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}

	if balance.Balance < req.Amount {
		return nil, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, balance.Balance, req.Amount)
	}

	before := balance.Balance
	balance.Balance -= req.Amount
	balance.TotalSpent += req.Amount
	if err := uow.BalanceRepository().Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to save balance: %w", err)
	}

	transaction := buildTransaction(pointType.ID, before, balance.Balance, req)
	if err := uow.PointTransactionRepository().Append(ctx, transaction); err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	event := events.PointsDeductedEvent{
		UserID:        req.UserID,
		PointTypeID:   pointType.ID,
		PointTypeSlug: pointType.Slug,
		Kind:          req.Kind,
		Amount:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  balance.Balance,
		Reason:        req.Reason,
		TransactionID: transaction.ID,
	}
	if req.Ref != nil {
		event.ReferenceType = req.Ref.Type
		event.ReferenceID = req.Ref.ID
	}
	uow.EventBus().Publish(event)
	return balance, nil
}

func buildTransaction(pointTypeID int64, before, after int64, req LedgerRequest) *models.PointTransaction {
	transaction := &models.PointTransaction{
		UserID:        req.UserID,
		PointTypeID:   pointTypeID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reason:        req.Reason,
		ActingAdminID: req.ActingAdminID,
		CreatedAt:     time.Now().UTC(),
	}
	if req.Ref != nil {
		refType := req.Ref.Type
		refID := req.Ref.ID
		transaction.ReferenceType = &refType
		transaction.ReferenceID = &refID
	}
	return transaction
}
