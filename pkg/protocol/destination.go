package protocol

import (
	"context"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// Schedule is the destination-side schedule container for one team.
type Schedule struct {
	ID          string `json:"id"`
	TimeZone    string `json:"time_zone"`
	Provisioned bool   `json:"provisioned"`
}

// DestinationShift is the destination representation of a shift: the
// resolved, non-overlapping activity timeline plus its assignment.
type DestinationShift struct {
	ID         string                   `json:"id,omitempty"`
	MemberID   string                   `json:"member_id,omitempty"`
	GroupID    string                   `json:"group_id,omitempty"`
	StartAt    time.Time                `json:"start_at"`
	EndAt      time.Time                `json:"end_at"`
	Theme      string                   `json:"theme,omitempty"`
	Draft      bool                     `json:"draft,omitempty"`
	Activities []models.VisibleActivity `json:"activities,omitempty"`
}

// Destination mutates the scheduling product. Creates are idempotent with
// respect to destination-key reuse: a create returns a stable id that later
// updates address.
type Destination interface {
	GetSchedule(ctx context.Context, teamID string) (*Schedule, error)
	CreateSchedule(ctx context.Context, teamID, timeZone string) (*Schedule, error)

	CreateShift(ctx context.Context, teamID string, shift *DestinationShift) (id string, err error)
	UpdateShift(ctx context.Context, teamID string, shift *DestinationShift) error
	DeleteShift(ctx context.Context, teamID, shiftID string) error

	// ListShifts returns destination shifts whose window intersects
	// [from, to).
	ListShifts(ctx context.Context, teamID string, from, to time.Time) ([]*DestinationShift, error)

	// GetOrCreateSchedulingGroup returns the id of the named group,
	// creating it and adding memberIDs when absent. Concurrent mutation of
	// the membership list surfaces as a conflict-class StatusError.
	GetOrCreateSchedulingGroup(ctx context.Context, teamID, name string, memberIDs []string) (id string, err error)

	ListSchedulingGroups(ctx context.Context, teamID string) (map[string]string, error)
	RemoveSchedulingGroup(ctx context.Context, teamID, groupID string) error

	ShareSchedule(ctx context.Context, teamID string, start, end time.Time, notify bool) error

	ListMembers(ctx context.Context, teamID string) ([]*models.Member, error)
}

// Secrets stores per-team credentials and tokens. Deleted on unsubscribe.
type Secrets interface {
	Get(ctx context.Context, teamID, key string) (string, error)
	Set(ctx context.Context, teamID, key, value string) error
	DeleteAll(ctx context.Context, teamID string) error
}
