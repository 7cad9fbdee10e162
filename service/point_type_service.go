package service

import (
	"context"
	"fmt"
	"strings"

	"betpoints/models"
	log "github.com/sirupsen/logrus"
)

type pointTypeService struct {
	uowFactory UnitOfWorkFactory
}

// NewPointTypeService creates a new point type service
func NewPointTypeService(uowFactory UnitOfWorkFactory) PointTypeService {
	return &pointTypeService{
		uowFactory: uowFactory,
	}
}

// CreatePointType registers a new currency under a unique slug.
func (s *pointTypeService) CreatePointType(ctx context.Context, slug, name string, decimalPlaces int16) (*models.PointType, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return nil, fmt.Errorf("%w: point type slug is required", ErrValidation)
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil, fmt.Errorf("%w: point type name is required", ErrValidation)
	}
	if decimalPlaces < 0 || decimalPlaces > 8 {
		return nil, fmt.Errorf("%w: decimal places must be between 0 and 8", ErrValidation)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	existing, err := uow.PointTypeRepository().GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: point type %q already exists", ErrValidation, slug)
	}

	pointType := &models.PointType{
		Slug:          slug,
		Name:          name,
		DecimalPlaces: decimalPlaces,
		Active:        true,
	}
	if err := uow.PointTypeRepository().Create(ctx, pointType); err != nil {
		return nil, fmt.Errorf("failed to create point type: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"slug": slug,
		"id":   pointType.ID,
	}).Info("Point type created")

	return pointType, nil
}

// DeactivatePointType soft-deletes a currency. Transactions keep referencing
// it; the ledger just stops accepting new mutations against it.
func (s *pointTypeService) DeactivatePointType(ctx context.Context, id int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	pointType, err := uow.PointTypeRepository().GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get point type: %w", err)
	}
	if pointType == nil {
		return fmt.Errorf("%w: point type %d", ErrUnknownPointType, id)
	}

	if err := uow.PointTypeRepository().Deactivate(ctx, id); err != nil {
		return fmt.Errorf("failed to deactivate point type: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithField("slug", pointType.Slug).Info("Point type deactivated")
	return nil
}

// GetPointType returns an active currency by slug.
func (s *pointTypeService) GetPointType(ctx context.Context, slug string) (*models.PointType, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return resolvePointType(ctx, uow, slug)
}

// ListPointTypes returns registered currencies.
func (s *pointTypeService) ListPointTypes(ctx context.Context, includeInactive bool) ([]*models.PointType, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.PointTypeRepository().List(ctx, includeInactive)
}
