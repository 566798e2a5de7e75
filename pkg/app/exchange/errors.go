package exchange

import (
	"errors"
	"fmt"
)

// ErrInvalidOrder matches every *ValidationError via errors.Is.
var ErrInvalidOrder = errors.New("invalid order")

// ValidationError rejects a submission before it reaches any book.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidOrder }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
