// Package services provides the connection service layer between the HTTP
// boundary and the orchestration engine.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors, mapped to 4xx responses at the boundary.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTimeZone   = errors.New("invalid time zone")
	ErrInvalidCron       = errors.New("invalid recurrence cron expression")
	ErrMissingCredential = errors.New("missing credential")

	// Conflicts (409).
	ErrTeamAlreadyExists = errors.New("team already subscribed")
	ErrSyncRunning       = errors.New("sync already running")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidTimeZone) ||
		errors.Is(err, ErrInvalidCron) ||
		errors.Is(err, ErrMissingCredential)
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrTeamAlreadyExists) ||
		errors.Is(err, ErrSyncRunning)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
