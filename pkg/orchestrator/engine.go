// Package orchestrator hosts the durable per-team sync loop: a replayable
// orchestration runtime, the singleton instance registry, and the sync and
// clear flows built on top of it.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftbridge/shiftbridge/pkg/eventbus"
	"github.com/shiftbridge/shiftbridge/pkg/events"
	"github.com/shiftbridge/shiftbridge/pkg/log"
	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
)

// StartResult is the outcome of a singleton start attempt. AlreadyRunning is
// a control signal, not an error.
type StartResult string

const (
	StartResultStarted        StartResult = "started"
	StartResultAlreadyRunning StartResult = "already_running"
)

type runHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns every orchestration instance of the process. One instance per
// team id: a start attempt is rejected while the latest instance is
// non-terminal.
type Engine struct {
	logger   *slog.Logger
	persist  persistence.Persistence
	executor ActivityExecutor
	eventBus eventbus.EventBus

	provisionAttempts int
	provisionInterval time.Duration

	mu      sync.Mutex
	running map[string]*runHandle
	wg      sync.WaitGroup
}

func NewEngine(logger *slog.Logger, persist persistence.Persistence, executor ActivityExecutor, bus eventbus.EventBus) *Engine {
	return &Engine{
		logger:            logger.With("module", "orchestrator"),
		persist:           persist,
		executor:          executor,
		eventBus:          bus,
		provisionAttempts: provisionPollAttempts,
		provisionInterval: provisionPollInterval,
		running:           make(map[string]*runHandle),
	}
}

// StartOrError attempts a singleton start for a team. Unknown teams surface
// the persistence not-found error; a non-terminal instance yields
// AlreadyRunning.
func (e *Engine) StartOrError(ctx context.Context, teamID string) (StartResult, error) {
	team, err := e.persist.TeamRepository().GetByID(ctx, teamID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.running[teamID]; exists {
		return StartResultAlreadyRunning, nil
	}

	instance, err := e.persist.InstanceRepository().Get(ctx, teamID)
	if err != nil {
		return "", err
	}

	if instance != nil && !instance.State.Terminal() {
		// Persisted as running but not in this process: a leftover from a
		// crash. Resume it by replay instead of rejecting.
		if carried := e.carriedTeam(instance); carried != nil {
			team = carried
		}

		e.launch(team, instance)

		return StartResultStarted, nil
	}

	instance, err = e.freshInstance(ctx, team)
	if err != nil {
		return "", err
	}

	e.launch(team, instance)

	return StartResultStarted, nil
}

// Terminate cancels a team's run and marks the instance terminated. An
// in-flight activity completes or fails on its own. Terminating a team with
// nothing running is a no-op.
func (e *Engine) Terminate(ctx context.Context, teamID string) error {
	e.mu.Lock()

	// The terminated state is persisted while holding the lock: a
	// concurrent start serialized behind it must never observe the old
	// instance as resumable.
	instance, err := e.persist.InstanceRepository().Get(ctx, teamID)
	if err != nil {
		e.mu.Unlock()

		return err
	}

	terminated := false

	if instance != nil && !instance.State.Terminal() {
		instance.State = models.InstanceStateTerminated

		err = e.persist.InstanceRepository().Save(ctx, instance)
		if err != nil {
			e.mu.Unlock()

			return err
		}

		terminated = true
	}

	handle, exists := e.running[teamID]
	if exists {
		delete(e.running, teamID)
	}
	e.mu.Unlock()

	if exists {
		handle.cancel()
		<-handle.done
	}

	if terminated {
		e.publish(ctx, teamID, events.SyncTerminated{
			BaseEvent: events.NewBaseEvent(events.SyncTerminatedEvent, teamID),
			RunID:     instance.RunID,
		})
	}

	return nil
}

// ResumeAll relaunches every persisted non-terminal instance via replay.
// Called once on boot.
func (e *Engine) ResumeAll(ctx context.Context) error {
	instances, err := e.persist.InstanceRepository().Running(ctx)
	if err != nil {
		return fmt.Errorf("failed to list running instances: %w", err)
	}

	for _, instance := range instances {
		team := e.carriedTeam(instance)
		if team == nil {
			team, err = e.persist.TeamRepository().GetByID(ctx, instance.TeamID)
			if err != nil {
				e.logger.ErrorContext(ctx, "Cannot resume instance, team lookup failed",
					"team_id", instance.TeamID, "error", err)

				continue
			}
		}

		e.mu.Lock()
		if _, exists := e.running[instance.TeamID]; !exists {
			e.logger.InfoContext(ctx, "Resuming sync instance",
				"team_id", instance.TeamID, "run_id", instance.RunID)
			e.launch(team, instance)
		}
		e.mu.Unlock()
	}

	return nil
}

// Shutdown cancels every run and waits for the goroutines to drain.
// Instances stay persisted as running and resume on the next boot.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for teamID, handle := range e.running {
		handle.cancel()
		delete(e.running, teamID)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (e *Engine) freshInstance(ctx context.Context, team *models.Team) (*models.Instance, error) {
	err := e.persist.InstanceRepository().ResetHistory(ctx, team.ID)
	if err != nil {
		return nil, err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}

	instance := &models.Instance{
		TeamID:    team.ID,
		RunID:     runID.String(),
		State:     models.InstanceStateRunning,
		StartedAt: time.Now().UTC(),
	}

	err = e.persist.InstanceRepository().Save(ctx, instance)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// launch starts the run goroutine. Caller holds e.mu or is otherwise sure
// no handle exists for the team.
func (e *Engine) launch(team *models.Team, instance *models.Instance) {
	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel, done: make(chan struct{})}
	e.running[team.ID] = handle

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer close(handle.done)

		e.run(runCtx, team, instance)

		e.mu.Lock()
		if e.running[team.ID] == handle {
			delete(e.running, team.ID)
		}
		e.mu.Unlock()
	}()
}

// run drives one instance through successive runs, continuing-as-new until
// the body completes, fails, or is canceled.
func (e *Engine) run(ctx context.Context, team *models.Team, instance *models.Instance) {
	logger := log.WithTeam(e.logger, team.ID)

	e.publish(ctx, team.ID, events.SyncStarted{
		BaseEvent: events.NewBaseEvent(events.SyncStartedEvent, team.ID),
		RunID:     instance.RunID,
	})

	for {
		recorded, err := e.persist.InstanceRepository().History(ctx, team.ID, instance.RunID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to load run history", "error", err)
			e.finish(ctx, instance, models.InstanceStateFailed, err)

			return
		}

		history := newHistoryLog(e.persist.InstanceRepository(), team.ID, instance.RunID, recorded)
		wc := newContext(ctx, logger.With("run_id", instance.RunID), e.executor, history)

		next, err := e.syncBody(wc, team)

		switch {
		case ctx.Err() != nil:
			// Terminated or shutting down; state is handled elsewhere.
			return

		case err != nil:
			logger.ErrorContext(ctx, "Sync instance failed", "error", err)
			e.finish(ctx, instance, models.InstanceStateFailed, err)

			return

		case next == nil:
			logger.InfoContext(ctx, "Sync instance completed")
			e.finish(ctx, instance, models.InstanceStateCompleted, nil)

			return

		default:
			// Continue-as-new: reset history, new run id, carry only the
			// team record.
			instance, err = e.continueAsNew(ctx, instance, next)
			if err != nil {
				logger.ErrorContext(ctx, "Continue-as-new failed", "error", err)
				e.finish(ctx, instance, models.InstanceStateFailed, err)

				return
			}

			team = next
		}
	}
}

func (e *Engine) continueAsNew(ctx context.Context, instance *models.Instance, team *models.Team) (*models.Instance, error) {
	err := e.persist.InstanceRepository().ResetHistory(ctx, instance.TeamID)
	if err != nil {
		return instance, err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return instance, fmt.Errorf("failed to generate run id: %w", err)
	}

	carried, err := json.Marshal(team)
	if err != nil {
		return instance, fmt.Errorf("failed to marshal carried team: %w", err)
	}

	instance.RunID = runID.String()
	instance.Carried = carried
	instance.State = models.InstanceStateRunning

	return instance, e.persist.InstanceRepository().Save(ctx, instance)
}

func (e *Engine) finish(ctx context.Context, instance *models.Instance, state models.InstanceState, cause error) {
	// The run context may already be canceled; persist with a fresh one.
	saveCtx := context.WithoutCancel(ctx)

	instance.State = state
	if cause != nil {
		instance.Error = cause.Error()
	}

	err := e.persist.InstanceRepository().Save(saveCtx, instance)
	if err != nil {
		e.logger.ErrorContext(saveCtx, "Failed to persist instance state",
			"team_id", instance.TeamID, "state", state, "error", err)
	}

	if state == models.InstanceStateFailed && cause != nil {
		e.publish(saveCtx, instance.TeamID, events.SyncFailed{
			BaseEvent: events.NewBaseEvent(events.SyncFailedEvent, instance.TeamID),
			RunID:     instance.RunID,
			Error:     cause.Error(),
		})
	}
}

func (e *Engine) carriedTeam(instance *models.Instance) *models.Team {
	if len(instance.Carried) == 0 {
		return nil
	}

	var team models.Team

	err := json.Unmarshal(instance.Carried, &team)
	if err != nil {
		return nil
	}

	return &team
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, key, event)
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
