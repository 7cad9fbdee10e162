package service

import (
	"errors"
)

// Business-rule errors returned as typed results to the immediate caller.
// All are wrapped with context via fmt.Errorf("...: %w", ...); callers
// classify with errors.Is. Anything not matching one of these sentinels is
// a persistence failure and may be retried with backoff.
var (
	// ErrUnknownPointType is returned when a referenced point type slug is
	// inactive or nonexistent.
	ErrUnknownPointType = errors.New("unknown point type")

	// ErrInsufficientFunds is returned when a deduction would drive the
	// balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPredictionClosed is returned when a wager is attempted after the
	// closing time or on a resolved prediction.
	ErrPredictionClosed = errors.New("prediction closed")

	// ErrAlreadyResolved is returned when resolution is attempted on an
	// already-resolved prediction. The sweep treats it as a benign
	// idempotency signal; explicit callers receive it as an error.
	ErrAlreadyResolved = errors.New("prediction already resolved")

	// ErrInvalidChoice is returned when a side or outcome is outside yes/no.
	ErrInvalidChoice = errors.New("invalid choice")

	// ErrValidation is returned for malformed create/update payloads.
	ErrValidation = errors.New("validation failed")
)

// IsAlreadyResolved reports whether err is the resolution idempotency signal.
func IsAlreadyResolved(err error) bool {
	return errors.Is(err, ErrAlreadyResolved)
}
