// Package apperr defines the error taxonomy shared by the alert engine's
// domain services. Handlers translate these into HTTP status codes; callers
// discriminate them with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced alert, handover, or shift log does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means a state-machine guard rejected the command.
	// The caller should re-read current state before deciding to retry.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflict means a uniqueness invariant would be violated, e.g. a
	// second outstanding handover for the same shift log.
	ErrConflict = errors.New("conflict")

	// ErrExpired means the handover's grace window has elapsed.
	ErrExpired = errors.New("expired")
)

// ValidationError rejects bad input shape or range before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// BackendError wraps a store or notifier I/O failure. These are retryable at
// the boundary, unlike guard failures.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend wraps err as a BackendError for operation op.
func Backend(op string, err error) *BackendError {
	return &BackendError{Op: op, Err: err}
}

// IsBackend reports whether err is a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
