package models

import (
	"time"
)

// UserPointBalance is the materialized balance for one (user, point type)
// pair. It is a cache over the transaction log: balance must always equal
// totalEarned - totalSpent, and replaying the user's transactions from zero
// must reproduce it. Rows are created lazily on first mutation and are only
// ever written through the ledger.
type UserPointBalance struct {
	UserID      int64     `db:"user_id"`
	PointTypeID int64     `db:"point_type_id"`
	Balance     int64     `db:"balance"`
	TotalEarned int64     `db:"total_earned"`
	TotalSpent  int64     `db:"total_spent"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Consistent reports whether the earned/spent totals reconcile with the balance.
func (b *UserPointBalance) Consistent() bool {
	return b.Balance == b.TotalEarned-b.TotalSpent
}
