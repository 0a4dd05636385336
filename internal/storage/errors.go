package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation references an outage event that
// does not exist or is no longer open.
var ErrNotFound = errors.New("outage event not found")

// ErrAlreadyClosed is returned when closing an outage event that already
// has an end time.
var ErrAlreadyClosed = errors.New("outage event already closed")

// ValidationError reports input that violates a data invariant. Nothing is
// written when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
