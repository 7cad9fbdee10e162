package repository

import (
	"context"
	"fmt"

	"betpoints/database"
	"betpoints/models"
	"github.com/jackc/pgx/v5"
)

// RankRepository implements rank ladder and user rank history data access
type RankRepository struct {
	q queryable
}

// NewRankRepository creates a new rank repository
func NewRankRepository(db *database.DB) *RankRepository {
	return &RankRepository{q: db.Pool}
}

// newRankRepositoryWithTx creates a new rank repository with a transaction
func newRankRepositoryWithTx(tx queryable) *RankRepository {
	return &RankRepository{q: tx}
}

// Create inserts a new rank tier
func (r *RankRepository) Create(ctx context.Context, rank *models.Rank) error {
	query := `
		INSERT INTO ranks (slug, name, points_required, order_position, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		rank.Slug,
		rank.Name,
		rank.PointsRequired,
		rank.OrderPosition,
		rank.Active,
	).Scan(&rank.ID, &rank.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create rank %q: %w", rank.Slug, err)
	}

	return nil
}

// GetByID retrieves a rank by its ID, nil if not found
func (r *RankRepository) GetByID(ctx context.Context, id int64) (*models.Rank, error) {
	query := `
		SELECT id, slug, name, points_required, order_position, active, created_at
		FROM ranks
		WHERE id = $1
	`

	var rank models.Rank
	err := r.q.QueryRow(ctx, query, id).Scan(
		&rank.ID,
		&rank.Slug,
		&rank.Name,
		&rank.PointsRequired,
		&rank.OrderPosition,
		&rank.Active,
		&rank.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rank %d: %w", id, err)
	}

	return &rank, nil
}

// ListActive returns the active rank ladder ordered by threshold
func (r *RankRepository) ListActive(ctx context.Context) ([]*models.Rank, error) {
	query := `
		SELECT id, slug, name, points_required, order_position, active, created_at
		FROM ranks
		WHERE active
		ORDER BY points_required, order_position
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranks: %w", err)
	}
	defer rows.Close()

	var ranks []*models.Rank
	for rows.Next() {
		var rank models.Rank
		err := rows.Scan(
			&rank.ID,
			&rank.Slug,
			&rank.Name,
			&rank.PointsRequired,
			&rank.OrderPosition,
			&rank.Active,
			&rank.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rank: %w", err)
		}
		ranks = append(ranks, &rank)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ranks: %w", err)
	}

	return ranks, nil
}

// GetCurrentForUpdate locks and returns the user's current rank row within
// the transaction, nil if the user never qualified. Concurrent recomputes
// for the same user serialize here.
func (r *RankRepository) GetCurrentForUpdate(ctx context.Context, userID int64) (*models.UserRank, error) {
	query := `
		SELECT id, user_id, rank_id, achieved_at, is_current
		FROM user_ranks
		WHERE user_id = $1 AND is_current
		FOR UPDATE
	`

	var userRank models.UserRank
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&userRank.ID,
		&userRank.UserID,
		&userRank.RankID,
		&userRank.AchievedAt,
		&userRank.IsCurrent,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock current rank for user %d: %w", userID, err)
	}

	return &userRank, nil
}

// GetCurrent returns the user's current rank row without locking
func (r *RankRepository) GetCurrent(ctx context.Context, userID int64) (*models.UserRank, error) {
	query := `
		SELECT id, user_id, rank_id, achieved_at, is_current
		FROM user_ranks
		WHERE user_id = $1 AND is_current
	`

	var userRank models.UserRank
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&userRank.ID,
		&userRank.UserID,
		&userRank.RankID,
		&userRank.AchievedAt,
		&userRank.IsCurrent,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current rank for user %d: %w", userID, err)
	}

	return &userRank, nil
}

// ClearCurrent flips the user's current rank row to historical
func (r *RankRepository) ClearCurrent(ctx context.Context, userID int64) error {
	query := `
		UPDATE user_ranks
		SET is_current = FALSE
		WHERE user_id = $1 AND is_current
	`

	if _, err := r.q.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to clear current rank for user %d: %w", userID, err)
	}

	return nil
}

// InsertCurrent appends a new current rank history row. The partial unique
// index on (user_id) WHERE is_current backstops the single-current
// invariant.
func (r *RankRepository) InsertCurrent(ctx context.Context, userRank *models.UserRank) error {
	query := `
		INSERT INTO user_ranks (user_id, rank_id, achieved_at, is_current)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		userRank.UserID,
		userRank.RankID,
		userRank.AchievedAt,
	).Scan(&userRank.ID)

	if err != nil {
		return fmt.Errorf("failed to insert current rank for user %d: %w", userRank.UserID, err)
	}

	userRank.IsCurrent = true
	return nil
}
