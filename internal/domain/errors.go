// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity or request input fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidJobStatus is returned when a job status is not valid.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrInvalidJobPhase is returned when a job phase is not valid.
	ErrInvalidJobPhase = errors.New("invalid job phase")

	// ErrInvalidStage is returned when a pipeline stage is unknown.
	ErrInvalidStage = errors.New("invalid pipeline stage")

	// ErrUnknownJobType is returned when a job type has no registered pipeline.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrStaleJob marks a pending or processing job whose last update is
	// older than the liveness window. It never reaches API callers.
	ErrStaleJob = errors.New("job timed out or process restarted")
)

// ValidationError carries the field that failed validation along with
// a human-readable reason. It wraps a sentinel so callers can use errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for the given field.
// If err is nil, ErrValidation is used.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
