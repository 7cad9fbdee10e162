package models

import (
	"time"
)

// PointType represents a named virtual currency (e.g. betcoins, experience).
// Point types are never hard-deleted because transactions reference them;
// deactivation is the only mutation allowed after creation.
type PointType struct {
	ID            int64     `db:"id"`
	Slug          string    `db:"slug"`
	Name          string    `db:"name"`
	DecimalPlaces int16     `db:"decimal_places"`
	Active        bool      `db:"active"`
	CreatedAt     time.Time `db:"created_at"`
}
