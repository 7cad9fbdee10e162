package models

// PayoutFailure records one winner whose credit failed during settlement.
// Settlement never aborts on individual payout errors; failures are
// reported for manual repair.
type PayoutFailure struct {
	UserID int64
	Amount int64
	Err    error
}

// ResolutionResult summarizes one settled prediction.
type ResolutionResult struct {
	PredictionID  int64
	WinningChoice Outcome
	Method        ResolutionMethod
	WinnersCount  int
	TotalWinnings int64
	TotalPot      int64
	FailedPayouts []PayoutFailure
}

// Settled reports whether any stake actually changed hands.
func (r *ResolutionResult) Settled() bool {
	return r.WinningChoice != OutcomeNoBets && r.WinnersCount > 0
}
