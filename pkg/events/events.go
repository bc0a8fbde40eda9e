// Package events defines event types and structures for sync lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

type EventType string

// Kafka topic for all sync lifecycle events.
const Topic = "shiftbridge.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Team lifecycle events.
	TeamSubscribedEvent   EventType = "team.subscribed"
	TeamUnsubscribedEvent EventType = "team.unsubscribed"

	// Sync lifecycle events.
	SyncStartedEvent            EventType = "sync.started"
	SyncIterationCompletedEvent EventType = "sync.iteration.completed"
	SyncFailedEvent             EventType = "sync.failed"
	SyncTerminatedEvent         EventType = "sync.terminated"

	// Week-level events.
	WeekSyncedEvent EventType = "week.synced"

	// Destination clear events.
	ScheduleClearedEvent EventType = "schedule.cleared"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TeamID    string         `json:"team_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type TeamSubscribed struct {
	BaseEvent

	TeamName string `json:"team_name"`
	WFMBuID  string `json:"wfm_bu_id"`
}

func (t TeamSubscribed) GetType() EventType {
	return TeamSubscribedEvent
}

type TeamUnsubscribed struct {
	BaseEvent
}

func (t TeamUnsubscribed) GetType() EventType {
	return TeamUnsubscribedEvent
}

type SyncStarted struct {
	BaseEvent

	RunID string `json:"run_id"`
}

func (s SyncStarted) GetType() EventType {
	return SyncStartedEvent
}

type SyncIterationCompleted struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	Iteration  int               `json:"iteration"`
	Weeks      int               `json:"weeks"`
	Counts     models.SyncCounts `json:"counts"`
	DurationMs int64             `json:"duration_ms"`
}

func (s SyncIterationCompleted) GetType() EventType {
	return SyncIterationCompletedEvent
}

type SyncFailed struct {
	BaseEvent

	RunID string `json:"run_id"`
	Error string `json:"error"`
}

func (s SyncFailed) GetType() EventType {
	return SyncFailedEvent
}

type SyncTerminated struct {
	BaseEvent

	RunID string `json:"run_id"`
}

func (s SyncTerminated) GetType() EventType {
	return SyncTerminatedEvent
}

type WeekSynced struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	WeekStart  time.Time         `json:"week_start"`
	Counts     models.SyncCounts `json:"counts"`
	DurationMs int64             `json:"duration_ms"`
}

func (w WeekSynced) GetType() EventType {
	return WeekSyncedEvent
}

type ScheduleCleared struct {
	BaseEvent

	RunID         string `json:"run_id"`
	ShiftsRemoved int    `json:"shifts_removed"`
}

func (s ScheduleCleared) GetType() EventType {
	return ScheduleClearedEvent
}

func NewBaseEvent(eventType EventType, teamID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TeamID:    teamID,
		Metadata:  make(map[string]any),
	}
}
