package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError carries the HTTP-level response class of a failed adapter
// call. Retry policies classify on it.
type StatusError struct {
	StatusCode int
	Op         string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// NewStatusError builds a StatusError for an adapter operation.
func NewStatusError(op string, statusCode int, message string) *StatusError {
	return &StatusError{StatusCode: statusCode, Op: op, Message: message}
}

// IsConflict reports whether err is an optimistic-concurrency conflict
// response from the destination system.
func IsConflict(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusConflict
	}

	return false
}

// IsTransient reports whether err is any error-class response worth
// retrying around long-running operations.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusBadRequest
	}

	return false
}

// ErrNotFound is returned by adapters when the addressed entity does not
// exist downstream.
var ErrNotFound = errors.New("entity not found")
