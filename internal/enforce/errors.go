package enforce

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the caller lacks organization or session context.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound covers absent rows and rows owned by another organization.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a missing or malformed request field, including
// attestation requests against records that cannot be attested.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// CheckExecutionError wraps a failure inside one of the pre-export recompute
// checks. The gatekeeper swallows these and fails closed instead of aborting.
type CheckExecutionError struct {
	Check string
	Err   error
}

func (e *CheckExecutionError) Error() string {
	return fmt.Sprintf("%s check failed: %v", e.Check, e.Err)
}

func (e *CheckExecutionError) Unwrap() error { return e.Err }
