package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
)

// ActivityError is a recorded activity failure. Replaying a run surfaces the
// same error without re-executing the side effect.
type ActivityError struct {
	Name    string
	StepID  string
	Message string
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s (%s): %s", e.Name, e.StepID, e.Message)
}

// historyLog is the persisted decision log of one run, shared by every
// branch of the orchestration. Access is serialized: fan-out branches record
// steps concurrently.
type historyLog struct {
	mu     sync.Mutex
	repo   persistence.InstanceRepository
	teamID string
	runID  string
	events map[string]*models.HistoryEvent
}

func newHistoryLog(repo persistence.InstanceRepository, teamID, runID string, recorded []*models.HistoryEvent) *historyLog {
	events := make(map[string]*models.HistoryEvent, len(recorded))
	for _, event := range recorded {
		events[event.StepID] = event
	}

	return &historyLog{repo: repo, teamID: teamID, runID: runID, events: events}
}

func (h *historyLog) lookup(stepID string) (*models.HistoryEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	event, ok := h.events[stepID]

	return event, ok
}

func (h *historyLog) record(ctx context.Context, event *models.HistoryEvent) error {
	event.RunID = h.runID
	event.RecordedAt = time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.repo.AppendHistory(ctx, h.teamID, event)
	if err != nil {
		return fmt.Errorf("failed to record step %s: %w", event.StepID, err)
	}

	h.events[event.StepID] = event

	return nil
}

// Context is the handle an orchestration body uses for every effect. The
// body re-executes from the start after restarts; each decision is keyed by
// a deterministic step id, recorded on first execution and replayed
// afterwards. The body must not touch the clock or the network directly.
type Context struct {
	ctx      context.Context
	logger   *slog.Logger
	teamID   string
	runID    string
	prefix   string
	executor ActivityExecutor
	history  *historyLog
}

func newContext(ctx context.Context, logger *slog.Logger, executor ActivityExecutor, history *historyLog) *Context {
	return &Context{
		ctx:      ctx,
		logger:   logger,
		teamID:   history.teamID,
		runID:    history.runID,
		executor: executor,
		history:  history,
	}
}

// Child returns a context whose step ids live under an extra prefix
// segment. Fan-out branches use distinct prefixes so concurrent recording
// never collides.
func (c *Context) Child(segment string) *Context {
	return &Context{
		ctx:      c.ctx,
		logger:   c.logger,
		teamID:   c.teamID,
		runID:    c.runID,
		prefix:   c.prefix + segment + "/",
		executor: c.executor,
		history:  c.history,
	}
}

func (c *Context) step(id string) string {
	return c.prefix + id
}

// Execute runs a named activity once per step id. A recorded outcome,
// success or failure, is returned on replay without re-execution.
func (c *Context) Execute(stepID, name string, input, result any) error {
	full := c.step(stepID)

	if event, ok := c.history.lookup(full); ok && event.Kind == models.HistoryKindActivity {
		if event.Error != "" {
			return &ActivityError{Name: name, StepID: full, Message: event.Error}
		}

		return decodeResult(event.Result, result)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal input for %s: %w", name, err)
	}

	output, execErr := c.executor.Execute(c.ctx, name, payload)
	if execErr != nil {
		if c.ctx.Err() != nil {
			// Cancellation is not an outcome; the step stays unrecorded and
			// re-executes on resume.
			return c.ctx.Err()
		}

		event := &models.HistoryEvent{
			StepID: full,
			Kind:   models.HistoryKindActivity,
			Name:   name,
			Error:  execErr.Error(),
		}
		if err := c.history.record(c.ctx, event); err != nil {
			return err
		}

		return &ActivityError{Name: name, StepID: full, Message: execErr.Error()}
	}

	event := &models.HistoryEvent{
		StepID: full,
		Kind:   models.HistoryKindActivity,
		Name:   name,
		Result: output,
	}
	if err := c.history.record(c.ctx, event); err != nil {
		return err
	}

	return decodeResult(output, result)
}

// Now returns a recorded instant for this step, the wall clock only on
// first execution.
func (c *Context) Now(stepID string) (time.Time, error) {
	full := c.step(stepID)

	if event, ok := c.history.lookup(full); ok && event.Kind == models.HistoryKindNow {
		var recorded time.Time

		err := json.Unmarshal(event.Result, &recorded)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to decode recorded time for %s: %w", full, err)
		}

		return recorded, nil
	}

	now := time.Now().UTC()

	payload, err := json.Marshal(now)
	if err != nil {
		return time.Time{}, err
	}

	event := &models.HistoryEvent{
		StepID: full,
		Kind:   models.HistoryKindNow,
		Result: payload,
	}
	if err := c.history.record(c.ctx, event); err != nil {
		return time.Time{}, err
	}

	return now, nil
}

// SleepUntil is a durable timer: the fire instant is recorded before
// waiting, so a restart resumes the wait for the remainder instead of
// starting over. A timer already marked fired returns immediately.
func (c *Context) SleepUntil(stepID string, fireAt time.Time) error {
	full := c.step(stepID)

	if event, ok := c.history.lookup(full); ok && event.Kind == models.HistoryKindTimer {
		if event.Fired {
			return nil
		}

		fireAt = event.FireAt
	} else {
		scheduled := &models.HistoryEvent{
			StepID: full,
			Kind:   models.HistoryKindTimer,
			FireAt: fireAt,
		}
		if err := c.history.record(c.ctx, scheduled); err != nil {
			return err
		}
	}

	if wait := time.Until(fireAt); wait > 0 {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-time.After(wait):
		}
	}

	fired := &models.HistoryEvent{
		StepID: full,
		Kind:   models.HistoryKindTimer,
		FireAt: fireAt,
		Fired:  true,
	}

	return c.history.record(c.ctx, fired)
}

// Sleep waits a duration from a recorded base instant.
func (c *Context) Sleep(stepID string, d time.Duration) error {
	base, err := c.Now(stepID + "/base")
	if err != nil {
		return err
	}

	return c.SleepUntil(stepID, base.Add(d))
}

// Err reports whether the run has been canceled.
func (c *Context) Err() error {
	return c.ctx.Err()
}

func decodeResult(payload json.RawMessage, result any) error {
	if result == nil || len(payload) == 0 {
		return nil
	}

	err := json.Unmarshal(payload, result)
	if err != nil {
		return fmt.Errorf("failed to decode activity result: %w", err)
	}

	return nil
}
