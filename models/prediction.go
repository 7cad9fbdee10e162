package models

import (
	"time"
)

// Outcome is the recorded result of a prediction.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
	// OutcomeNone marks a prediction voided without a winning side.
	OutcomeNone Outcome = "none"
	// OutcomeNoBets marks a prediction that closed with zero wagers.
	OutcomeNoBets Outcome = "no_bets"
)

// ResolutionMethod records which path resolved a prediction.
type ResolutionMethod string

const (
	ResolutionMethodAdminManual ResolutionMethod = "admin_manual"
	ResolutionMethodAutoVolume  ResolutionMethod = "auto_volume"
	ResolutionMethodAPI         ResolutionMethod = "api"
)

// Prediction is a binary-outcome proposition with a closing time. The only
// lifecycle transition is open -> resolved, one-way, at most once.
type Prediction struct {
	ID                   int64             `db:"id"`
	Title                string            `db:"title"`
	ClosingAt            time.Time         `db:"closing_at"`
	ResolvedChoice       *Outcome          `db:"resolved_choice"`
	ResolutionMethod     *ResolutionMethod `db:"resolution_method"`
	ResolvedAt           *time.Time        `db:"resolved_at"`
	WinnersCount         *int              `db:"winners_count"`
	TotalWinningsAwarded *int64            `db:"total_winnings_awarded"`
	CreatedAt            time.Time         `db:"created_at"`
}

// IsResolved checks whether the prediction has reached its terminal state.
func (p *Prediction) IsResolved() bool {
	return p.ResolvedChoice != nil
}

// AcceptsWagers checks whether a wager may still be placed: the prediction
// must be unresolved and its closing time must not have passed.
func (p *Prediction) AcceptsWagers(now time.Time) bool {
	return !p.IsResolved() && now.Before(p.ClosingAt)
}

// DueForResolution checks whether the auto-resolution sweep should pick the
// prediction up.
func (p *Prediction) DueForResolution(now time.Time) bool {
	return !p.IsResolved() && !now.Before(p.ClosingAt)
}
