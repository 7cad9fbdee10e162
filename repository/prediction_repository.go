package repository

import (
	"context"
	"fmt"
	"time"

	"betpoints/database"
	"betpoints/models"
	"github.com/jackc/pgx/v5"
)

// PredictionRepository implements prediction data access
type PredictionRepository struct {
	q queryable
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *database.DB) *PredictionRepository {
	return &PredictionRepository{q: db.Pool}
}

// newPredictionRepositoryWithTx creates a new prediction repository with a transaction
func newPredictionRepositoryWithTx(tx queryable) *PredictionRepository {
	return &PredictionRepository{q: tx}
}

// Create inserts a new open prediction
func (r *PredictionRepository) Create(ctx context.Context, prediction *models.Prediction) error {
	query := `
		INSERT INTO predictions (title, closing_at)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, prediction.Title, prediction.ClosingAt).
		Scan(&prediction.ID, &prediction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create prediction: %w", err)
	}

	return nil
}

// GetByID retrieves a prediction by its ID, nil if not found
func (r *PredictionRepository) GetByID(ctx context.Context, id int64) (*models.Prediction, error) {
	query := `
		SELECT id, title, closing_at, resolved_choice, resolution_method,
		       resolved_at, winners_count, total_winnings_awarded, created_at
		FROM predictions
		WHERE id = $1
	`
	return r.getByID(ctx, query, id)
}

// GetByIDForShare retrieves a prediction under a share lock so that the
// open check and the resolution claim conflict: a wager transaction
// holding the lock forces a concurrent ClaimResolution to wait, and a
// committed claim is visible to any later locking read.
func (r *PredictionRepository) GetByIDForShare(ctx context.Context, id int64) (*models.Prediction, error) {
	query := `
		SELECT id, title, closing_at, resolved_choice, resolution_method,
		       resolved_at, winners_count, total_winnings_awarded, created_at
		FROM predictions
		WHERE id = $1
		FOR SHARE
	`
	return r.getByID(ctx, query, id)
}

// GetByIDForUpdate retrieves a prediction under an exclusive lock.
// Resolution takes it before snapshotting stats so that every wager
// transaction holding the share lock has committed first and its stake
// enters the pools.
func (r *PredictionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Prediction, error) {
	query := `
		SELECT id, title, closing_at, resolved_choice, resolution_method,
		       resolved_at, winners_count, total_winnings_awarded, created_at
		FROM predictions
		WHERE id = $1
		FOR UPDATE
	`
	return r.getByID(ctx, query, id)
}

func (r *PredictionRepository) getByID(ctx context.Context, query string, id int64) (*models.Prediction, error) {
	var prediction models.Prediction
	err := r.q.QueryRow(ctx, query, id).Scan(
		&prediction.ID,
		&prediction.Title,
		&prediction.ClosingAt,
		&prediction.ResolvedChoice,
		&prediction.ResolutionMethod,
		&prediction.ResolvedAt,
		&prediction.WinnersCount,
		&prediction.TotalWinningsAwarded,
		&prediction.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction %d: %w", id, err)
	}

	return &prediction, nil
}

// ListOpen returns unresolved predictions whose closing time has not passed
func (r *PredictionRepository) ListOpen(ctx context.Context, now time.Time) ([]*models.Prediction, error) {
	query := `
		SELECT id, title, closing_at, resolved_choice, resolution_method,
		       resolved_at, winners_count, total_winnings_awarded, created_at
		FROM predictions
		WHERE resolved_choice IS NULL AND closing_at > $1
		ORDER BY closing_at
	`

	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list open predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// ListDueForResolution returns unresolved predictions whose closing time
// has passed; the auto-resolution sweep feeds on this
func (r *PredictionRepository) ListDueForResolution(ctx context.Context, now time.Time) ([]*models.Prediction, error) {
	query := `
		SELECT id, title, closing_at, resolved_choice, resolution_method,
		       resolved_at, winners_count, total_winnings_awarded, created_at
		FROM predictions
		WHERE resolved_choice IS NULL AND closing_at <= $1
		ORDER BY closing_at
	`

	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// ClaimResolution performs the one-way open -> resolved transition as a
// compare-and-set on resolved_choice. Returns false if another caller
// already resolved the prediction; zero rows affected is the concurrency
// gate, not an advisory pre-check.
func (r *PredictionRepository) ClaimResolution(ctx context.Context, id int64, choice models.Outcome, method models.ResolutionMethod, resolvedAt time.Time) (bool, error) {
	query := `
		UPDATE predictions
		SET resolved_choice = $2, resolution_method = $3, resolved_at = $4
		WHERE id = $1 AND resolved_choice IS NULL
	`

	result, err := r.q.Exec(ctx, query, id, choice, method, resolvedAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim resolution of prediction %d: %w", id, err)
	}

	return result.RowsAffected() > 0, nil
}

// RecordPayoutTotals persists the settlement summary after payouts have
// been attempted
func (r *PredictionRepository) RecordPayoutTotals(ctx context.Context, id int64, winnersCount int, totalWinnings int64) error {
	query := `
		UPDATE predictions
		SET winners_count = $2, total_winnings_awarded = $3
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, id, winnersCount, totalWinnings)
	if err != nil {
		return fmt.Errorf("failed to record payout totals for prediction %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("prediction %d not found", id)
	}

	return nil
}

func scanPredictions(rows pgx.Rows) ([]*models.Prediction, error) {
	var predictions []*models.Prediction
	for rows.Next() {
		var prediction models.Prediction
		err := rows.Scan(
			&prediction.ID,
			&prediction.Title,
			&prediction.ClosingAt,
			&prediction.ResolvedChoice,
			&prediction.ResolutionMethod,
			&prediction.ResolvedAt,
			&prediction.WinnersCount,
			&prediction.TotalWinningsAwarded,
			&prediction.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, &prediction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}

	return predictions, nil
}
