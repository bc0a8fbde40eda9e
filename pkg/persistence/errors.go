package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTeamNotFound indicates a team was not found by the given identifier.
	ErrTeamNotFound = errors.New("team not found")

	// ErrInstanceNotFound indicates no orchestration instance exists for the team.
	ErrInstanceNotFound = errors.New("instance not found")
)

// TeamError wraps team-related errors with additional context.
type TeamError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	TeamID string
	Err    error
}

func (e *TeamError) Error() string {
	return fmt.Sprintf("%s operation failed for team %s: %v", e.Op, e.TeamID, e.Err)
}

func (e *TeamError) Unwrap() error {
	return e.Err
}

func (e *TeamError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTeamError creates a new team error with context.
func NewTeamError(op, teamID string, err error) *TeamError {
	return &TeamError{Op: op, TeamID: teamID, Err: err}
}

// IsTeamNotFound checks if an error indicates a team was not found.
func IsTeamNotFound(err error) bool {
	return errors.Is(err, ErrTeamNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}
