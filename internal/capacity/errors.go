package capacity

import (
	"errors"
	"fmt"
)

// Validation failures reported by this package.  They are never retried;
// handlers map them to 422 responses.
var (
	ErrInvalidRange    = errors.New("invalid range")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidCapacity = errors.New("invalid capacity")
	ErrInvalidInstant  = errors.New("invalid instant")
)

// ShortageError is returned when a requested quantity exceeds what a
// resource has left over the requested window.  It matches
// ErrInvalidQuantity under errors.Is.
type ShortageError struct {
	ResourceID string
	Requested  int
	Available  int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("invalid quantity: resource %s has %d left, %d requested", e.ResourceID, e.Available, e.Requested)
}

func (e *ShortageError) Is(target error) bool { return target == ErrInvalidQuantity }
