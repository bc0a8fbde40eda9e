package models

import (
	"encoding/json"
	"time"
)

// InstanceState is the lifecycle state of a team's orchestration instance.
type InstanceState string

const (
	InstanceStateRunning    InstanceState = "running"
	InstanceStateCompleted  InstanceState = "completed"
	InstanceStateFailed     InstanceState = "failed"
	InstanceStateCanceled   InstanceState = "canceled"
	InstanceStateTerminated InstanceState = "terminated"
)

// Terminal reports whether a fresh start is allowed for a team whose latest
// instance is in this state.
func (s InstanceState) Terminal() bool {
	switch s {
	case InstanceStateCompleted, InstanceStateFailed, InstanceStateCanceled, InstanceStateTerminated:
		return true
	case InstanceStateRunning:
		return false
	}

	return false
}

// Instance is one durable execution of the per-team sync loop. The team id
// is the instance identity; RunID changes on every continue-as-new.
type Instance struct {
	TeamID    string        `json:"team_id"`
	RunID     string        `json:"run_id"`
	State     InstanceState `json:"state"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// Carried is the minimal state continued into the next run: the team
	// record, nothing else.
	Carried json.RawMessage `json:"carried,omitempty"`
}

// HistoryEventKind classifies replay log entries.
type HistoryEventKind string

const (
	HistoryKindActivity HistoryEventKind = "activity"
	HistoryKindTimer    HistoryEventKind = "timer"
	HistoryKindNow      HistoryEventKind = "now"
)

// HistoryEvent is one recorded decision of an orchestration run. StepID is
// deterministic across replays; the runtime returns the recorded result
// instead of re-executing the side effect.
type HistoryEvent struct {
	RunID      string           `json:"run_id"`
	StepID     string           `json:"step_id"`
	Kind       HistoryEventKind `json:"kind"`
	Name       string           `json:"name,omitempty"`
	Result     json.RawMessage  `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	FireAt     time.Time        `json:"fire_at,omitempty"`
	Fired      bool             `json:"fired,omitempty"`
	RecordedAt time.Time        `json:"recorded_at"`
}
