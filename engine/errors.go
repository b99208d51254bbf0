package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound reports a cancel against an unknown or already
	// retired order. No state changes.
	ErrOrderNotFound = errors.New("engine: order not found")

	// ErrHalted reports that the pair's engine stopped accepting commands
	// after an invariant violation. Other pairs are unaffected.
	ErrHalted = errors.New("engine: pair halted after invariant violation")
)

// ValidationError rejects a malformed order before any book or ledger
// mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("engine: invalid order %s: %s", e.Field, e.Reason)
}

// InternalError wraps a consistency breach detected mid-match. Completed
// fills of the same match loop stand; matching for the current order stops.
type InternalError struct {
	Pair string
	Err  error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("engine: internal error on %s: %v", e.Pair, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
