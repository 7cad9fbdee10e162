package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rank is one tier in the threshold ladder over the primary currency.
type Rank struct {
	ID             int64     `db:"id"`
	Slug           string    `db:"slug"`
	Name           string    `db:"name"`
	PointsRequired int64     `db:"points_required"`
	OrderPosition  int       `db:"order_position"`
	Active         bool      `db:"active"`
	CreatedAt      time.Time `db:"created_at"`
}

// UserRank is one entry in a user's rank history. Exactly one row per user
// carries is_current at any time, or none if the user never qualified.
type UserRank struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	RankID     int64     `db:"rank_id"`
	AchievedAt time.Time `db:"achieved_at"`
	IsCurrent  bool      `db:"is_current"`
}

// HighestQualifiedRank returns the active rank with the highest
// points_required that the balance satisfies, or nil if none qualifies.
func HighestQualifiedRank(ranks []*Rank, balance int64) *Rank {
	var best *Rank
	for _, r := range ranks {
		if !r.Active || r.PointsRequired > balance {
			continue
		}
		if best == nil || r.PointsRequired > best.PointsRequired {
			best = r
		}
	}
	return best
}

// NextRank returns the active rank with the lowest points_required strictly
// above the balance, or nil if the user already holds the top rank.
func NextRank(ranks []*Rank, balance int64) *Rank {
	var next *Rank
	for _, r := range ranks {
		if !r.Active || r.PointsRequired <= balance {
			continue
		}
		if next == nil || r.PointsRequired < next.PointsRequired {
			next = r
		}
	}
	return next
}

// RankProgress describes where a user sits on the ladder.
type RankProgress struct {
	Current         *Rank
	Next            *Rank
	Balance         int64
	PointsNeeded    int64
	PercentComplete decimal.Decimal
}

// ComputeRankProgress builds the read-side progress view for a balance.
// PercentComplete measures progress from the current rank's threshold to
// the next rank's threshold; at the top of the ladder it is 100.
func ComputeRankProgress(ranks []*Rank, balance int64) *RankProgress {
	progress := &RankProgress{
		Current: HighestQualifiedRank(ranks, balance),
		Next:    NextRank(ranks, balance),
		Balance: balance,
	}

	if progress.Next == nil {
		progress.PercentComplete = decimal.NewFromInt(100)
		return progress
	}

	var floor int64
	if progress.Current != nil {
		floor = progress.Current.PointsRequired
	}
	progress.PointsNeeded = progress.Next.PointsRequired - balance

	span := progress.Next.PointsRequired - floor
	if span <= 0 {
		progress.PercentComplete = decimal.NewFromInt(100)
		return progress
	}
	progress.PercentComplete = decimal.NewFromInt(balance - floor).
		Div(decimal.NewFromInt(span)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return progress
}
