// Package activities implements the network and clock side of the sync
// loop. The orchestrator invokes these by name; everything here executes
// at-least-once, so every effect is idempotent with respect to
// destination-key reuse.
package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
	"github.com/shiftbridge/shiftbridge/pkg/retrypolicy"
	"github.com/shiftbridge/shiftbridge/pkg/scopedcache"
)

type handlerFunc func(ctx context.Context, input json.RawMessage) (any, error)

// Executor hosts the activity implementations and the state they share:
// per-team caches and the retry policies.
type Executor struct {
	logger      *slog.Logger
	persist     persistence.Persistence
	source      protocol.Source
	destination protocol.Destination

	// groups maps team -> group name -> destination group id; members maps
	// team -> login -> member.
	groups  *scopedcache.Cache[string]
	members *scopedcache.Cache[*models.Member]

	conflictRetry  retrypolicy.Policy
	transientRetry retrypolicy.Policy

	handlers map[string]handlerFunc
}

func NewExecutor(logger *slog.Logger, persist persistence.Persistence, source protocol.Source, destination protocol.Destination) *Executor {
	e := &Executor{
		logger:         logger.With("module", "activities"),
		persist:        persist,
		source:         source,
		destination:    destination,
		groups:         scopedcache.New[string](),
		members:        scopedcache.New[*models.Member](),
		conflictRetry:  retrypolicy.Conflict(),
		transientRetry: retrypolicy.Transient(),
	}

	e.handlers = map[string]handlerFunc{
		orchestrator.ActivityProvisionEnsure: e.provisionEnsure,
		orchestrator.ActivitySyncWeek:        e.syncWeek,
		orchestrator.ActivityScheduleShare:   e.scheduleShare,
		orchestrator.ActivityClearDay:        e.clearDay,
		orchestrator.ActivityClearRange:      e.clearRange,
		orchestrator.ActivityGroupsClear:     e.groupsClear,
		orchestrator.ActivitySnapshotDrop:    e.snapshotDrop,
		orchestrator.ActivityTeamSave:        e.teamSave,
	}

	return e
}

// Execute runs one named activity.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	handler, ok := e.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown activity: %s", name)
	}

	result, err := handler(ctx, input)
	if err != nil {
		return nil, err
	}

	if result == nil {
		return json.RawMessage(`{}`), nil
	}

	return json.Marshal(result)
}

// Forget drops a team's cached lookup tables. Unsubscribe path.
func (e *Executor) Forget(teamID string) {
	e.groups.Forget(teamID)
	e.members.Forget(teamID)
}

func decode[T any](input json.RawMessage) (*T, error) {
	var value T

	err := json.Unmarshal(input, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode activity input: %w", err)
	}

	return &value, nil
}
