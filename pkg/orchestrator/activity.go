package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// Activity names. The orchestration body refers to activities only by name;
// implementations are registered with the executor.
const (
	ActivityProvisionEnsure = "provision.ensure"
	ActivitySyncWeek        = "sync.week"
	ActivityScheduleShare   = "schedule.share"
	ActivityClearDay        = "clear.day"
	ActivityClearRange      = "clear.range"
	ActivityGroupsClear     = "groups.clear"
	ActivitySnapshotDrop    = "snapshot.drop"
	ActivityTeamSave        = "team.save"
)

// ActivityExecutor runs one named activity. Activities own all network and
// clock access; the runtime records their results and replays them verbatim,
// so executions are at-least-once and must be idempotent in effect.
type ActivityExecutor interface {
	Execute(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error)
}

// ProvisionEnsureInput asks the destination for the team's schedule,
// creating it when absent.
type ProvisionEnsureInput struct {
	Team *models.Team `json:"team"`
}

type ProvisionEnsureResult struct {
	Provisioned bool `json:"provisioned"`
}

// SyncWeekInput applies at most Team.BatchSize delta operations for one
// week. Invoked repeatedly until Finished.
type SyncWeekInput struct {
	Team      *models.Team `json:"team"`
	WeekStart time.Time    `json:"week_start"`
}

type SyncWeekResult struct {
	Finished bool              `json:"finished"`
	Counts   models.SyncCounts `json:"counts"`

	// Window actually touched by creates, used to size the share call.
	EarliestStart time.Time `json:"earliest_start,omitempty"`
	LatestEnd     time.Time `json:"latest_end,omitempty"`
}

type ScheduleShareInput struct {
	Team *models.Team `json:"team"`
	From time.Time    `json:"from"`
	To   time.Time    `json:"to"`
}

type ClearDayInput struct {
	Team *models.Team `json:"team"`
	Day  time.Time    `json:"day"`
}

type ClearRangeInput struct {
	Team *models.Team `json:"team"`
	From time.Time    `json:"from"`
	To   time.Time    `json:"to"`
}

type ClearResult struct {
	Removed int `json:"removed"`
}

type GroupsClearInput struct {
	Team *models.Team `json:"team"`
}

type SnapshotDropInput struct {
	Team *models.Team `json:"team"`
	From time.Time    `json:"from"`
	To   time.Time    `json:"to"`
}

type TeamSaveInput struct {
	Team *models.Team `json:"team"`
}

type TeamSaveResult struct {
	Team *models.Team `json:"team"`
}
