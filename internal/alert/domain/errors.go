package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an alert, recipient, user or registration
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a recipient status update would move
// backward through the lattice or out of a terminal state. The attempted
// update leaves no side effects.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrForbidden is returned when the caller is neither the sender nor a
// recipient of the resource.
var ErrForbidden = errors.New("not allowed")

// ValidationError rejects malformed request fields before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
