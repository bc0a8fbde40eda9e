package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
	"github.com/shiftbridge/shiftbridge/pkg/persistence/file"
)

func testEngine(t *testing.T, executor ActivityExecutor) (*Engine, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	engine := NewEngine(slog.Default(), p, executor, nil)

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = engine.Shutdown(shutdownCtx)
	})

	return engine, p
}

func saveTeam(t *testing.T, p persistence.Persistence, team *models.Team) {
	t.Helper()
	require.NoError(t, p.TeamRepository().Save(t.Context(), team))
}

func oneShotTeam(id string) *models.Team {
	return &models.Team{
		ID:                  id,
		Name:                "Store 42",
		WFMBuID:             "bu-42",
		TimeZone:            "UTC",
		Initialized:         true,
		PastWeeks:           0,
		FutureWeeks:         0,
		WeekStartDay:        time.Monday,
		SyncIntervalSeconds: -1,
		BatchSize:           20,
	}
}

func instanceState(t *testing.T, p persistence.Persistence, teamID string) models.InstanceState {
	t.Helper()

	instance, err := p.InstanceRepository().Get(t.Context(), teamID)
	require.NoError(t, err)

	if instance == nil {
		return ""
	}

	return instance.State
}

func TestEngine_StartUnknownTeam(t *testing.T) {
	engine, _ := testEngine(t, newCountingExecutor())

	_, err := engine.StartOrError(t.Context(), "nope")
	require.Error(t, err)
	assert.True(t, persistence.IsTeamNotFound(err))
}

func TestEngine_OneShotRunsToCompletion(t *testing.T) {
	executor := newCountingExecutor()
	executor.handle(ActivitySyncWeek, func(_ context.Context, _ json.RawMessage) (any, error) {
		return SyncWeekResult{Finished: true, Counts: models.SyncCounts{Created: 2}}, nil
	})

	engine, p := testEngine(t, executor)
	saveTeam(t, p, oneShotTeam("team-1"))

	result, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, StartResultStarted, result)

	require.Eventually(t, func() bool {
		return instanceState(t, p, "team-1") == models.InstanceStateCompleted
	}, 10*time.Second, 20*time.Millisecond)

	// Window is a single week in one-shot mode: exactly one batch applied.
	assert.Equal(t, 1, executor.count(ActivitySyncWeek))
}

func TestEngine_SingletonStart(t *testing.T) {
	release := make(chan struct{})
	executor := newCountingExecutor()
	executor.handle(ActivitySyncWeek, func(ctx context.Context, _ json.RawMessage) (any, error) {
		select {
		case <-release:
			return SyncWeekResult{Finished: true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	engine, p := testEngine(t, executor)
	saveTeam(t, p, oneShotTeam("team-1"))

	result, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, StartResultStarted, result)

	result, err = engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, StartResultAlreadyRunning, result)

	close(release)

	require.Eventually(t, func() bool {
		return instanceState(t, p, "team-1") == models.InstanceStateCompleted
	}, 10*time.Second, 20*time.Millisecond)

	// Terminal instance allows a fresh start.
	result, err = engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, StartResultStarted, result)
}

func TestEngine_StartAfterTerminate(t *testing.T) {
	executor := newCountingExecutor()
	executor.handle(ActivitySyncWeek, func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	})

	engine, p := testEngine(t, executor)
	saveTeam(t, p, oneShotTeam("team-1"))

	_, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return executor.count(ActivitySyncWeek) == 1
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, engine.Terminate(t.Context(), "team-1"))
	assert.Equal(t, models.InstanceStateTerminated, instanceState(t, p, "team-1"))

	result, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, StartResultStarted, result)
}

func TestEngine_FailedWeekFailsInstance(t *testing.T) {
	executor := newCountingExecutor()
	executor.handle(ActivitySyncWeek, func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("backend unavailable")
	})

	engine, p := testEngine(t, executor)
	saveTeam(t, p, oneShotTeam("team-1"))

	_, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return instanceState(t, p, "team-1") == models.InstanceStateFailed
	}, 10*time.Second, 20*time.Millisecond)

	instance, err := p.InstanceRepository().Get(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Contains(t, instance.Error, "backend unavailable")
}

func TestEngine_ContinueOnErrorCompletes(t *testing.T) {
	executor := newCountingExecutor()
	executor.handle(ActivitySyncWeek, func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("backend unavailable")
	})

	engine, p := testEngine(t, executor)

	team := oneShotTeam("team-1")
	team.ContinueOnError = true
	saveTeam(t, p, team)

	_, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return instanceState(t, p, "team-1") == models.InstanceStateCompleted
	}, 10*time.Second, 20*time.Millisecond)
}

// saveOnTeamSave wires the team.save activity to the test store so the
// persisted Initialized flag can be asserted.
func saveOnTeamSave(t *testing.T, executor *countingExecutor, p persistence.Persistence) {
	t.Helper()

	executor.handle(ActivityTeamSave, func(ctx context.Context, input json.RawMessage) (any, error) {
		var in TeamSaveInput

		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}

		if err := p.TeamRepository().Save(ctx, in.Team); err != nil {
			return nil, err
		}

		return TeamSaveResult{Team: in.Team}, nil
	})
}

func TestEngine_ProvisionTimeoutFailsInstance(t *testing.T) {
	executor := newCountingExecutor()
	executor.handle(ActivityProvisionEnsure, func(_ context.Context, _ json.RawMessage) (any, error) {
		return ProvisionEnsureResult{Provisioned: false}, nil
	})

	engine, p := testEngine(t, executor)
	engine.provisionInterval = time.Millisecond

	team := oneShotTeam("team-1")
	team.Initialized = false
	saveTeam(t, p, team)

	_, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return instanceState(t, p, "team-1") == models.InstanceStateFailed
	}, 10*time.Second, 20*time.Millisecond)

	instance, err := p.InstanceRepository().Get(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Contains(t, instance.Error, "provisioning timed out")

	// The budget is exhausted exactly once and nothing syncs afterwards.
	assert.Equal(t, provisionPollAttempts, executor.count(ActivityProvisionEnsure))
	assert.Equal(t, 0, executor.count(ActivitySyncWeek))
}

func TestEngine_InitializeFlipsAndPersistsInitialized(t *testing.T) {
	polls := 0
	executor := newCountingExecutor()
	executor.handle(ActivityProvisionEnsure, func(_ context.Context, _ json.RawMessage) (any, error) {
		polls++

		return ProvisionEnsureResult{Provisioned: polls > 1}, nil
	})
	executor.handle(ActivitySyncWeek, func(_ context.Context, _ json.RawMessage) (any, error) {
		return SyncWeekResult{Finished: true}, nil
	})

	engine, p := testEngine(t, executor)
	engine.provisionInterval = time.Millisecond
	saveOnTeamSave(t, executor, p)

	team := oneShotTeam("team-1")
	team.Initialized = false
	saveTeam(t, p, team)

	_, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return instanceState(t, p, "team-1") == models.InstanceStateCompleted
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, 2, executor.count(ActivityProvisionEnsure))

	// Without ClearOnFirstRun only the stale snapshots are dropped.
	assert.Equal(t, 1, executor.count(ActivitySnapshotDrop))
	assert.Equal(t, 0, executor.count(ActivityClearDay))

	saved, err := p.TeamRepository().GetByID(t.Context(), "team-1")
	require.NoError(t, err)
	assert.True(t, saved.Initialized)
}

func TestEngine_ClearOnFirstRunDrivesClearFlow(t *testing.T) {
	var (
		mu         sync.Mutex
		rangeInput ClearRangeInput
	)

	executor := newCountingExecutor()
	executor.handle(ActivityProvisionEnsure, func(_ context.Context, _ json.RawMessage) (any, error) {
		return ProvisionEnsureResult{Provisioned: true}, nil
	})
	executor.handle(ActivityClearRange, func(_ context.Context, input json.RawMessage) (any, error) {
		mu.Lock()
		defer mu.Unlock()

		if err := json.Unmarshal(input, &rangeInput); err != nil {
			return nil, err
		}

		return ClearResult{}, nil
	})
	executor.handle(ActivitySyncWeek, func(_ context.Context, _ json.RawMessage) (any, error) {
		return SyncWeekResult{Finished: true}, nil
	})

	engine, p := testEngine(t, executor)
	saveOnTeamSave(t, executor, p)

	team := oneShotTeam("team-1")
	team.Initialized = false
	team.ClearOnFirstRun = true
	saveTeam(t, p, team)

	_, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return instanceState(t, p, "team-1") == models.InstanceStateCompleted
	}, 10*time.Second, 20*time.Millisecond)

	// One-shot window is a single week: one clear.day per calendar day,
	// then the overflow pass, group removal and snapshot cleanup.
	assert.Equal(t, 7, executor.count(ActivityClearDay))
	assert.Equal(t, 1, executor.count(ActivityClearRange))
	assert.Equal(t, 1, executor.count(ActivityGroupsClear))
	assert.Equal(t, 1, executor.count(ActivitySnapshotDrop))

	// The range pass covers the window extended by one day so shifts
	// spanning the final midnight are caught.
	mu.Lock()
	assert.Equal(t, 8*24*time.Hour, rangeInput.To.Sub(rangeInput.From))
	mu.Unlock()

	saved, err := p.TeamRepository().GetByID(t.Context(), "team-1")
	require.NoError(t, err)
	assert.True(t, saved.Initialized)
}

func TestEngine_TerminatePersistsBeforeDraining(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	executor := newCountingExecutor()
	executor.handle(ActivitySyncWeek, func(ctx context.Context, _ json.RawMessage) (any, error) {
		close(entered)
		<-release

		return nil, ctx.Err()
	})

	engine, p := testEngine(t, executor)
	saveTeam(t, p, oneShotTeam("team-1"))

	_, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)
	<-entered

	terminated := make(chan error, 1)
	go func() {
		terminated <- engine.Terminate(context.Background(), "team-1")
	}()

	// The state transition lands before the run drains, so a start racing
	// the terminate can never resume the old instance.
	require.Eventually(t, func() bool {
		return instanceState(t, p, "team-1") == models.InstanceStateTerminated
	}, 10*time.Second, 20*time.Millisecond)

	select {
	case err := <-terminated:
		t.Fatalf("terminate returned before the run drained: %v", err)
	default:
	}

	close(release)
	require.NoError(t, <-terminated)

	result, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, StartResultStarted, result)
}

func TestEngine_ResumeReplaysWithoutReExecuting(t *testing.T) {
	executor := newCountingExecutor()
	executor.handle(ActivitySyncWeek, func(_ context.Context, _ json.RawMessage) (any, error) {
		return SyncWeekResult{Finished: true}, nil
	})

	dir := t.TempDir()
	p := file.NewPersistence(dir)

	team := oneShotTeam("team-1")
	team.SyncIntervalSeconds = 3600
	require.NoError(t, p.TeamRepository().Save(t.Context(), team))

	engine := NewEngine(slog.Default(), p, executor, nil)

	_, err := engine.StartOrError(t.Context(), "team-1")
	require.NoError(t, err)

	// Wait until the first iteration is done and the durable timer is
	// scheduled, then simulate a crash.
	require.Eventually(t, func() bool {
		instance, err := p.InstanceRepository().Get(t.Context(), "team-1")
		if err != nil || instance == nil {
			return false
		}

		events, err := p.InstanceRepository().History(t.Context(), "team-1", instance.RunID)
		if err != nil {
			return false
		}

		for _, event := range events {
			if event.Kind == models.HistoryKindTimer {
				return true
			}
		}

		return false
	}, 10*time.Second, 20*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, engine.Shutdown(shutdownCtx))

	applied := executor.count(ActivitySyncWeek)
	require.Positive(t, applied)

	// A new process resumes the instance by replay: recorded activities are
	// not re-executed, the run parks on the remaining timer.
	resumed := NewEngine(slog.Default(), file.NewPersistence(dir), executor, nil)
	require.NoError(t, resumed.ResumeAll(t.Context()))

	// Give the replay a moment to park on the timer.
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, models.InstanceStateRunning, instanceState(t, p, "team-1"))
	assert.Equal(t, applied, executor.count(ActivitySyncWeek))

	require.NoError(t, resumed.Shutdown(shutdownCtx))
}
