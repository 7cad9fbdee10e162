package repository

import (
	"context"
	"fmt"

	"betpoints/database"
	"betpoints/models"
)

// PointTransactionRepository implements the append-only transaction log.
// There are no update or delete operations: entries are immutable once
// written.
type PointTransactionRepository struct {
	q queryable
}

// NewPointTransactionRepository creates a new point transaction repository
func NewPointTransactionRepository(db *database.DB) *PointTransactionRepository {
	return &PointTransactionRepository{q: db.Pool}
}

// newPointTransactionRepositoryWithTx creates a new point transaction repository with a transaction
func newPointTransactionRepositoryWithTx(tx queryable) *PointTransactionRepository {
	return &PointTransactionRepository{q: tx}
}

// Append writes a new transaction log entry
func (r *PointTransactionRepository) Append(ctx context.Context, transaction *models.PointTransaction) error {
	query := `
		INSERT INTO point_transactions
		(user_id, point_type_id, kind, amount, balance_before, balance_after,
		 reason, reference_type, reference_id, acting_admin_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		transaction.UserID,
		transaction.PointTypeID,
		transaction.Kind,
		transaction.Amount,
		transaction.BalanceBefore,
		transaction.BalanceAfter,
		transaction.Reason,
		transaction.ReferenceType,
		transaction.ReferenceID,
		transaction.ActingAdminID,
	).Scan(&transaction.ID, &transaction.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append transaction for user %d: %w", transaction.UserID, err)
	}

	return nil
}

// ListByUser returns transactions for a user ordered by recency, optionally
// filtered to one point type, paginated
func (r *PointTransactionRepository) ListByUser(ctx context.Context, userID int64, pointTypeID *int64, limit, offset int) ([]*models.PointTransaction, error) {
	query := `
		SELECT id, user_id, point_type_id, kind, amount, balance_before, balance_after,
		       reason, reference_type, reference_id, acting_admin_id, created_at
		FROM point_transactions
		WHERE user_id = $1 AND ($2::bigint IS NULL OR point_type_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.q.Query(ctx, query, userID, pointTypeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListForReplay returns every transaction for a (user, point type) pair in
// creation order, for reconstructing the balance from scratch
func (r *PointTransactionRepository) ListForReplay(ctx context.Context, userID, pointTypeID int64) ([]*models.PointTransaction, error) {
	query := `
		SELECT id, user_id, point_type_id, kind, amount, balance_before, balance_after,
		       reason, reference_type, reference_id, acting_admin_id, created_at
		FROM point_transactions
		WHERE user_id = $1 AND point_type_id = $2
		ORDER BY created_at, id
	`

	rows, err := r.q.Query(ctx, query, userID, pointTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for replay: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// SumByUser returns the user's lifetime earned and spent totals for a point
// type, folded from the log
func (r *PointTransactionRepository) SumByUser(ctx context.Context, userID, pointTypeID int64) (earned int64, spent int64, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN kind IN ('earn', 'purchase', 'refund') THEN amount
			              WHEN kind = 'adjust' AND balance_after > balance_before THEN balance_after - balance_before
			              ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'spend' THEN amount
			              WHEN kind = 'adjust' AND balance_after < balance_before THEN balance_before - balance_after
			              ELSE 0 END), 0)
		FROM point_transactions
		WHERE user_id = $1 AND point_type_id = $2
	`

	err = r.q.QueryRow(ctx, query, userID, pointTypeID).Scan(&earned, &spent)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum transactions for user %d: %w", userID, err)
	}

	return earned, spent, nil
}

func scanTransactions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*models.PointTransaction, error) {
	var transactions []*models.PointTransaction
	for rows.Next() {
		var transaction models.PointTransaction
		err := rows.Scan(
			&transaction.ID,
			&transaction.UserID,
			&transaction.PointTypeID,
			&transaction.Kind,
			&transaction.Amount,
			&transaction.BalanceBefore,
			&transaction.BalanceAfter,
			&transaction.Reason,
			&transaction.ReferenceType,
			&transaction.ReferenceID,
			&transaction.ActingAdminID,
			&transaction.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &transaction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return transactions, nil
}
