// Package persistence provides the data storage abstraction for teams,
// per-week shift snapshots and orchestration instance state.
package persistence

import (
	"context"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

type Persistence interface {
	TeamRepository() TeamRepository
	SnapshotRepository() SnapshotRepository
	InstanceRepository() InstanceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TeamRepository stores connected teams.
type TeamRepository interface {
	GetAll(ctx context.Context) ([]*models.Team, error)
	GetByID(ctx context.Context, id string) (*models.Team, error)
	Save(ctx context.Context, team *models.Team) error
	Delete(ctx context.Context, id string) error
}

// SnapshotRepository is the cache-of-record: the prior per-(team, week)
// shift snapshot used as the delta's "from" input. Read before computing a
// delta, overwritten after a successful apply, deleted by the clear flow.
type SnapshotRepository interface {
	// Get returns the stored snapshot, or an empty slice when none exists.
	Get(ctx context.Context, teamID string, weekStart time.Time) ([]*models.ShiftRecord, error)
	Save(ctx context.Context, teamID string, weekStart time.Time, records []*models.ShiftRecord) error
	Delete(ctx context.Context, teamID string, weekStart time.Time) error

	// DeleteRange drops every snapshot whose week start falls in
	// [from, to].
	DeleteRange(ctx context.Context, teamID string, from, to time.Time) error

	// DeleteAll drops every snapshot of a team. Unsubscribe path.
	DeleteAll(ctx context.Context, teamID string) error
}

// InstanceRepository stores orchestration instance state and the per-run
// replay history.
type InstanceRepository interface {
	// Get returns the latest instance for a team, or nil when absent.
	Get(ctx context.Context, teamID string) (*models.Instance, error)
	Save(ctx context.Context, instance *models.Instance) error
	Delete(ctx context.Context, teamID string) error

	// Running returns every instance persisted in a non-terminal state,
	// for resume-on-boot.
	Running(ctx context.Context) ([]*models.Instance, error)

	AppendHistory(ctx context.Context, teamID string, event *models.HistoryEvent) error
	History(ctx context.Context, teamID, runID string) ([]*models.HistoryEvent, error)

	// ResetHistory drops all recorded history of a team. Called on
	// continue-as-new so storage stays bounded across iterations.
	ResetHistory(ctx context.Context, teamID string) error
}
