package models

import (
	"time"
)

// WagerSide is the side of a binary prediction a wager backs.
type WagerSide string

const (
	WagerSideYes WagerSide = "yes"
	WagerSideNo  WagerSide = "no"
)

// Valid checks the side is one of yes/no.
func (s WagerSide) Valid() bool {
	return s == WagerSideYes || s == WagerSideNo
}

// Outcome returns the outcome value corresponding to this side.
func (s WagerSide) Outcome() Outcome {
	if s == WagerSideYes {
		return OutcomeYes
	}
	return OutcomeNo
}

// Wager is a stake placed by a user on one side of a prediction. Created
// after the stake has been debited from the user's balance; immutable
// thereafter.
type Wager struct {
	ID                    int64     `db:"id"`
	UserID                int64     `db:"user_id"`
	PredictionID          int64     `db:"prediction_id"`
	Side                  WagerSide `db:"side"`
	Amount                int64     `db:"amount"`
	RemainingBalanceAfter int64     `db:"remaining_balance_after"`
	PlacedAt              time.Time `db:"placed_at"`
}

// Payout computes the winning payout for this wager: the stake returned
// plus a proportional share of the entire losing pool. Integer division
// floors fractional shares; the undistributed remainder is not paid out.
// A zero winning pool yields no payout.
func (w *Wager) Payout(winningPool, losingPool int64) int64 {
	if winningPool == 0 {
		return 0
	}
	return w.Amount + (losingPool*w.Amount)/winningPool
}

// PredictionStats aggregates the wagers on one prediction. Always derived
// from the wager log at read time, never from cached counters.
type PredictionStats struct {
	PredictionID  int64
	YesTotal      int64
	NoTotal       int64
	YesCount      int
	NoCount       int
	UniqueBettors int
	Bettors       []int64
}

// TotalPot returns the combined stake on both sides.
func (s *PredictionStats) TotalPot() int64 {
	return s.YesTotal + s.NoTotal
}

// WagerCount returns the number of wagers across both sides.
func (s *PredictionStats) WagerCount() int {
	return s.YesCount + s.NoCount
}

// HasWagers checks whether any stake was placed at all.
func (s *PredictionStats) HasWagers() bool {
	return s.WagerCount() > 0
}

// Pools returns the (winning, losing) pool totals for a winning side.
func (s *PredictionStats) Pools(winning WagerSide) (int64, int64) {
	if winning == WagerSideYes {
		return s.YesTotal, s.NoTotal
	}
	return s.NoTotal, s.YesTotal
}

// VolumeLeader returns the side with the higher aggregate stake, and
// whether the two sides are tied.
func (s *PredictionStats) VolumeLeader() (WagerSide, bool) {
	if s.YesTotal == s.NoTotal {
		return WagerSideYes, true
	}
	if s.YesTotal > s.NoTotal {
		return WagerSideYes, false
	}
	return WagerSideNo, false
}

// UserWagerView is a wager annotated at read time with the owning
// prediction's current resolution status.
type UserWagerView struct {
	Wager
	PredictionTitle string     `db:"prediction_title"`
	ClosingAt       time.Time  `db:"closing_at"`
	ResolvedChoice  *Outcome   `db:"resolved_choice"`
	ResolvedAt      *time.Time `db:"resolved_at"`
}

// Won reports whether the wager won, once the prediction is resolved with a
// yes/no outcome. Unresolved, voided and no-bets predictions return false.
func (v *UserWagerView) Won() bool {
	if v.ResolvedChoice == nil {
		return false
	}
	return *v.ResolvedChoice == v.Side.Outcome()
}
