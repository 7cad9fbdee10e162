package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"betpoints/database"
	"betpoints/models"
	"github.com/jackc/pgx/v5"
)

// AchievementRepository implements achievement and unlock data access
type AchievementRepository struct {
	q queryable
}

// NewAchievementRepository creates a new achievement repository
func NewAchievementRepository(db *database.DB) *AchievementRepository {
	return &AchievementRepository{q: db.Pool}
}

// newAchievementRepositoryWithTx creates a new achievement repository with a transaction
func newAchievementRepositoryWithTx(tx queryable) *AchievementRepository {
	return &AchievementRepository{q: tx}
}

// Create inserts a new achievement, encoding its conditions once
func (r *AchievementRepository) Create(ctx context.Context, achievement *models.Achievement) error {
	conditionsJSON, err := encodeAchievementConditions(achievement.Conditions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO achievements (slug, name, unlock_conditions, points_reward, is_secret, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		achievement.Slug,
		achievement.Name,
		conditionsJSON,
		achievement.PointsReward,
		achievement.IsSecret,
		achievement.Active,
	).Scan(&achievement.ID, &achievement.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create achievement %q: %w", achievement.Slug, err)
	}

	return nil
}

// GetByID retrieves an achievement by its ID, nil if not found
func (r *AchievementRepository) GetByID(ctx context.Context, id int64) (*models.Achievement, error) {
	query := `
		SELECT id, slug, name, unlock_conditions, points_reward, is_secret, active, created_at
		FROM achievements
		WHERE id = $1
	`

	achievement, err := scanAchievement(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get achievement %d: %w", id, err)
	}

	return achievement, nil
}

// ListActive returns all active achievements with decoded conditions
func (r *AchievementRepository) ListActive(ctx context.Context) ([]*models.Achievement, error) {
	query := `
		SELECT id, slug, name, unlock_conditions, points_reward, is_secret, active, created_at
		FROM achievements
		WHERE active
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var achievements []*models.Achievement
	for rows.Next() {
		achievement, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		achievements = append(achievements, achievement)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate achievements: %w", err)
	}

	return achievements, nil
}

// ListUnlocked returns the user's unlocked achievement IDs
func (r *AchievementRepository) ListUnlocked(ctx context.Context, userID int64) ([]*models.UserAchievement, error) {
	query := `
		SELECT id, user_id, achievement_id, unlocked_at, progress_snapshot
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY unlocked_at
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks for user %d: %w", userID, err)
	}
	defer rows.Close()

	var unlocks []*models.UserAchievement
	for rows.Next() {
		var unlock models.UserAchievement
		var snapshotJSON []byte
		err := rows.Scan(
			&unlock.ID,
			&unlock.UserID,
			&unlock.AchievementID,
			&unlock.UnlockedAt,
			&snapshotJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		if len(snapshotJSON) > 0 {
			if err := json.Unmarshal(snapshotJSON, &unlock.ProgressSnapshot); err != nil {
				return nil, fmt.Errorf("failed to unmarshal progress snapshot: %w", err)
			}
		}
		unlocks = append(unlocks, &unlock)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unlocks: %w", err)
	}

	return unlocks, nil
}

// InsertUnlock records a permanent unlock. Returns false if the user
// already holds the achievement: the unique constraint makes the
// check-and-insert a single atomic step, so concurrent triggers cannot
// double-unlock.
func (r *AchievementRepository) InsertUnlock(ctx context.Context, unlock *models.UserAchievement) (bool, error) {
	snapshotJSON, err := json.Marshal(unlock.ProgressSnapshot)
	if err != nil {
		return false, fmt.Errorf("failed to marshal progress snapshot: %w", err)
	}

	query := `
		INSERT INTO user_achievements (user_id, achievement_id, progress_snapshot)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
		RETURNING id, unlocked_at
	`

	err = r.q.QueryRow(ctx, query,
		unlock.UserID,
		unlock.AchievementID,
		snapshotJSON,
	).Scan(&unlock.ID, &unlock.UnlockedAt)

	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert unlock for user %d: %w", unlock.UserID, err)
	}

	return true, nil
}

func encodeAchievementConditions(conditions []models.AchievementCondition) ([]byte, error) {
	object := make(map[string]json.RawMessage, len(conditions))
	for _, c := range conditions {
		if c.Kind == models.ConditionKindExtension {
			object[c.Key] = c.Raw
			continue
		}
		threshold, err := json.Marshal(c.Threshold)
		if err != nil {
			return nil, fmt.Errorf("failed to encode condition %q: %w", c.Key, err)
		}
		object[c.Key] = threshold
	}

	encoded, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("failed to encode unlock conditions: %w", err)
	}
	return encoded, nil
}

func scanAchievement(row pgx.Row) (*models.Achievement, error) {
	var achievement models.Achievement
	var conditionsJSON []byte

	err := row.Scan(
		&achievement.ID,
		&achievement.Slug,
		&achievement.Name,
		&conditionsJSON,
		&achievement.PointsReward,
		&achievement.IsSecret,
		&achievement.Active,
		&achievement.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	achievement.Conditions, err = models.DecodeAchievementConditions(conditionsJSON)
	if err != nil {
		return nil, err
	}

	return &achievement, nil
}
