package repository

import (
	"context"
	"fmt"

	"betpoints/database"
	"betpoints/models"
	"github.com/jackc/pgx/v5"
)

// BalanceRepository implements user point balance data access
type BalanceRepository struct {
	q queryable
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *database.DB) *BalanceRepository {
	return &BalanceRepository{q: db.Pool}
}

// newBalanceRepositoryWithTx creates a new balance repository with a transaction
func newBalanceRepositoryWithTx(tx queryable) *BalanceRepository {
	return &BalanceRepository{q: tx}
}

// Get retrieves the balance row for a (user, point type) pair, nil if the
// pair has never been touched
func (r *BalanceRepository) Get(ctx context.Context, userID, pointTypeID int64) (*models.UserPointBalance, error) {
	query := `
		SELECT user_id, point_type_id, balance, total_earned, total_spent, updated_at
		FROM user_point_balances
		WHERE user_id = $1 AND point_type_id = $2
	`

	var balance models.UserPointBalance
	err := r.q.QueryRow(ctx, query, userID, pointTypeID).Scan(
		&balance.UserID,
		&balance.PointTypeID,
		&balance.Balance,
		&balance.TotalEarned,
		&balance.TotalSpent,
		&balance.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for user %d: %w", userID, err)
	}

	return &balance, nil
}

// GetForUpdate locks the balance row for a (user, point type) pair within
// the current transaction, creating a zero row first if the pair has never
// been touched. Concurrent mutations on the same pair serialize here.
func (r *BalanceRepository) GetForUpdate(ctx context.Context, userID, pointTypeID int64) (*models.UserPointBalance, error) {
	insert := `
		INSERT INTO user_point_balances (user_id, point_type_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, point_type_id) DO NOTHING
	`

	if _, err := r.q.Exec(ctx, insert, userID, pointTypeID); err != nil {
		return nil, fmt.Errorf("failed to ensure balance row for user %d: %w", userID, err)
	}

	query := `
		SELECT user_id, point_type_id, balance, total_earned, total_spent, updated_at
		FROM user_point_balances
		WHERE user_id = $1 AND point_type_id = $2
		FOR UPDATE
	`

	var balance models.UserPointBalance
	err := r.q.QueryRow(ctx, query, userID, pointTypeID).Scan(
		&balance.UserID,
		&balance.PointTypeID,
		&balance.Balance,
		&balance.TotalEarned,
		&balance.TotalSpent,
		&balance.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to lock balance for user %d: %w", userID, err)
	}

	return &balance, nil
}

// Save writes the balance row's new balance and running totals. Callers
// must hold the row lock from GetForUpdate in the same transaction.
func (r *BalanceRepository) Save(ctx context.Context, balance *models.UserPointBalance) error {
	query := `
		UPDATE user_point_balances
		SET balance = $1, total_earned = $2, total_spent = $3, updated_at = NOW()
		WHERE user_id = $4 AND point_type_id = $5
	`

	result, err := r.q.Exec(ctx, query,
		balance.Balance,
		balance.TotalEarned,
		balance.TotalSpent,
		balance.UserID,
		balance.PointTypeID,
	)
	if err != nil {
		return fmt.Errorf("failed to save balance for user %d: %w", balance.UserID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("balance row for user %d, point type %d not found", balance.UserID, balance.PointTypeID)
	}

	return nil
}

// GetLeaderboard returns the top balances for a point type in descending order
func (r *BalanceRepository) GetLeaderboard(ctx context.Context, pointTypeID int64, limit int) ([]*models.UserPointBalance, error) {
	query := `
		SELECT user_id, point_type_id, balance, total_earned, total_spent, updated_at
		FROM user_point_balances
		WHERE point_type_id = $1 AND balance > 0
		ORDER BY balance DESC, user_id
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, pointTypeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var balances []*models.UserPointBalance
	for rows.Next() {
		var balance models.UserPointBalance
		err := rows.Scan(
			&balance.UserID,
			&balance.PointTypeID,
			&balance.Balance,
			&balance.TotalEarned,
			&balance.TotalSpent,
			&balance.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, &balance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balances: %w", err)
	}

	return balances, nil
}
