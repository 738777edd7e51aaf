package ledger

import (
	"errors"
	"fmt"
)

// ValidationError rejects a wager before any state change. Always
// recoverable by the caller; logged at info, surfaced as wager status.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var (
	// ErrStaleOdds: the odds feed is unavailable or the snapshot is older
	// than the configured threshold. Results in a Cancelled wager, not a
	// hard failure.
	ErrStaleOdds = errors.New("odds snapshot unavailable or stale")

	// ErrInsufficientFunds: accepting the wager would push exposure above
	// balance. Results in a Cancelled wager.
	ErrInsufficientFunds = errors.New("insufficient balance for exposure")

	// ErrSettlementConflict: a concurrent settlement or correction holds the
	// match. Retried by the scheduler, never surfaced to the end user.
	ErrSettlementConflict = errors.New("settlement already in progress")
)

// PersistenceError wraps a ledger store write failure. Fatal for the one
// operation; the store applies each confirmation or settlement step as a
// single atomic unit so no partial state survives.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// WrapPersistence wraps err unless it is nil or already a PersistenceError.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
