package repository

import (
	"context"
	"fmt"

	"betpoints/database"
	"betpoints/models"
	"github.com/jackc/pgx/v5"
)

// PointTypeRepository implements point type data access
type PointTypeRepository struct {
	q queryable
}

// NewPointTypeRepository creates a new point type repository
func NewPointTypeRepository(db *database.DB) *PointTypeRepository {
	return &PointTypeRepository{q: db.Pool}
}

// newPointTypeRepositoryWithTx creates a new point type repository with a transaction
func newPointTypeRepositoryWithTx(tx queryable) *PointTypeRepository {
	return &PointTypeRepository{q: tx}
}

// Create inserts a new point type
func (r *PointTypeRepository) Create(ctx context.Context, pointType *models.PointType) error {
	query := `
		INSERT INTO point_types (slug, name, decimal_places, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		pointType.Slug,
		pointType.Name,
		pointType.DecimalPlaces,
		pointType.Active,
	).Scan(&pointType.ID, &pointType.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create point type %q: %w", pointType.Slug, err)
	}

	return nil
}

// GetBySlug retrieves a point type by its slug, nil if not found
func (r *PointTypeRepository) GetBySlug(ctx context.Context, slug string) (*models.PointType, error) {
	query := `
		SELECT id, slug, name, decimal_places, active, created_at
		FROM point_types
		WHERE slug = $1
	`

	var pointType models.PointType
	err := r.q.QueryRow(ctx, query, slug).Scan(
		&pointType.ID,
		&pointType.Slug,
		&pointType.Name,
		&pointType.DecimalPlaces,
		&pointType.Active,
		&pointType.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get point type %q: %w", slug, err)
	}

	return &pointType, nil
}

// GetByID retrieves a point type by its ID, nil if not found
func (r *PointTypeRepository) GetByID(ctx context.Context, id int64) (*models.PointType, error) {
	query := `
		SELECT id, slug, name, decimal_places, active, created_at
		FROM point_types
		WHERE id = $1
	`

	var pointType models.PointType
	err := r.q.QueryRow(ctx, query, id).Scan(
		&pointType.ID,
		&pointType.Slug,
		&pointType.Name,
		&pointType.DecimalPlaces,
		&pointType.Active,
		&pointType.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get point type %d: %w", id, err)
	}

	return &pointType, nil
}

// List returns all point types, optionally including deactivated ones
func (r *PointTypeRepository) List(ctx context.Context, includeInactive bool) ([]*models.PointType, error) {
	query := `
		SELECT id, slug, name, decimal_places, active, created_at
		FROM point_types
		WHERE active OR $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list point types: %w", err)
	}
	defer rows.Close()

	var pointTypes []*models.PointType
	for rows.Next() {
		var pointType models.PointType
		err := rows.Scan(
			&pointType.ID,
			&pointType.Slug,
			&pointType.Name,
			&pointType.DecimalPlaces,
			&pointType.Active,
			&pointType.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point type: %w", err)
		}
		pointTypes = append(pointTypes, &pointType)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate point types: %w", err)
	}

	return pointTypes, nil
}

// Deactivate soft-deletes a point type; transactions keep referencing it
func (r *PointTypeRepository) Deactivate(ctx context.Context, id int64) error {
	query := `
		UPDATE point_types
		SET active = FALSE
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate point type %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("point type %d not found", id)
	}

	return nil
}
