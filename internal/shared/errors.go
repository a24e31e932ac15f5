package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the resource does not exist or is outside the
	// caller's branch scope. Out-of-scope references surface as not-found
	// so existence never leaks across tenants.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates the principal lacks a required capability.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConcurrentModification indicates row-lock or counter contention
	// that persisted through bounded retries.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// ValidationError carries field-level detail for malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
