package repository

import (
	"context"
	"fmt"

	"betpoints/database"
	"betpoints/models"
)

// WagerRepository implements wager data access. Wagers are immutable once
// created; all aggregates are derived from the rows at read time rather
// than maintained as counters.
type WagerRepository struct {
	q queryable
}

// NewWagerRepository creates a new wager repository
func NewWagerRepository(db *database.DB) *WagerRepository {
	return &WagerRepository{q: db.Pool}
}

// newWagerRepositoryWithTx creates a new wager repository with a transaction
func newWagerRepositoryWithTx(tx queryable) *WagerRepository {
	return &WagerRepository{q: tx}
}

// Create inserts a new wager row
func (r *WagerRepository) Create(ctx context.Context, wager *models.Wager) error {
	query := `
		INSERT INTO wagers (user_id, prediction_id, side, amount, remaining_balance_after)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, placed_at
	`

	err := r.q.QueryRow(ctx, query,
		wager.UserID,
		wager.PredictionID,
		wager.Side,
		wager.Amount,
		wager.RemainingBalanceAfter,
	).Scan(&wager.ID, &wager.PlacedAt)

	if err != nil {
		return fmt.Errorf("failed to create wager for user %d: %w", wager.UserID, err)
	}

	return nil
}

// GetStats aggregates all wagers for a prediction straight from the wager
// log: side totals, counts and the distinct bettor list
func (r *WagerRepository) GetStats(ctx context.Context, predictionID int64) (*models.PredictionStats, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE side = 'yes'), 0),
			COALESCE(SUM(amount) FILTER (WHERE side = 'no'), 0),
			COUNT(*) FILTER (WHERE side = 'yes'),
			COUNT(*) FILTER (WHERE side = 'no'),
			COUNT(DISTINCT user_id)
		FROM wagers
		WHERE prediction_id = $1
	`

	stats := &models.PredictionStats{PredictionID: predictionID}
	err := r.q.QueryRow(ctx, query, predictionID).Scan(
		&stats.YesTotal,
		&stats.NoTotal,
		&stats.YesCount,
		&stats.NoCount,
		&stats.UniqueBettors,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate wagers for prediction %d: %w", predictionID, err)
	}

	bettorQuery := `
		SELECT DISTINCT user_id
		FROM wagers
		WHERE prediction_id = $1
		ORDER BY user_id
	`

	rows, err := r.q.Query(ctx, bettorQuery, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bettors for prediction %d: %w", predictionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan bettor: %w", err)
		}
		stats.Bettors = append(stats.Bettors, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bettors: %w", err)
	}

	return stats, nil
}

// ListByPrediction returns every wager placed on a prediction
func (r *WagerRepository) ListByPrediction(ctx context.Context, predictionID int64) ([]*models.Wager, error) {
	query := `
		SELECT id, user_id, prediction_id, side, amount, remaining_balance_after, placed_at
		FROM wagers
		WHERE prediction_id = $1
		ORDER BY placed_at, id
	`

	rows, err := r.q.Query(ctx, query, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wagers for prediction %d: %w", predictionID, err)
	}
	defer rows.Close()

	var wagers []*models.Wager
	for rows.Next() {
		var wager models.Wager
		err := rows.Scan(
			&wager.ID,
			&wager.UserID,
			&wager.PredictionID,
			&wager.Side,
			&wager.Amount,
			&wager.RemainingBalanceAfter,
			&wager.PlacedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wager: %w", err)
		}
		wagers = append(wagers, &wager)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wagers: %w", err)
	}

	return wagers, nil
}

// ListByUser returns a user's wagers ordered by recency, each annotated
// with the owning prediction's current resolution status
func (r *WagerRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.UserWagerView, error) {
	query := `
		SELECT w.id, w.user_id, w.prediction_id, w.side, w.amount,
		       w.remaining_balance_after, w.placed_at,
		       p.title, p.closing_at, p.resolved_choice, p.resolved_at
		FROM wagers w
		JOIN predictions p ON p.id = w.prediction_id
		WHERE w.user_id = $1
		ORDER BY w.placed_at DESC, w.id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wagers for user %d: %w", userID, err)
	}
	defer rows.Close()

	var views []*models.UserWagerView
	for rows.Next() {
		var view models.UserWagerView
		err := rows.Scan(
			&view.ID,
			&view.UserID,
			&view.PredictionID,
			&view.Side,
			&view.Amount,
			&view.RemainingBalanceAfter,
			&view.PlacedAt,
			&view.PredictionTitle,
			&view.ClosingAt,
			&view.ResolvedChoice,
			&view.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wager view: %w", err)
		}
		views = append(views, &view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wager views: %w", err)
	}

	return views, nil
}

// CountByUser returns a user's total and won wager counts, derived by
// joining resolved predictions
func (r *WagerRepository) CountByUser(ctx context.Context, userID int64) (total int64, won int64, err error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE p.resolved_choice IS NOT NULL AND p.resolved_choice::text = w.side::text)
		FROM wagers w
		JOIN predictions p ON p.id = w.prediction_id
		WHERE w.user_id = $1
	`

	err = r.q.QueryRow(ctx, query, userID).Scan(&total, &won)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count wagers for user %d: %w", userID, err)
	}

	return total, won, nil
}
