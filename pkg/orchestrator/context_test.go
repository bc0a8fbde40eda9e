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

	"github.com/shiftbridge/shiftbridge/pkg/persistence"
	"github.com/shiftbridge/shiftbridge/pkg/persistence/file"
)

type countingExecutor struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(ctx context.Context, input json.RawMessage) (any, error)
}

func newCountingExecutor() *countingExecutor {
	return &countingExecutor{
		calls:    make(map[string]int),
		handlers: make(map[string]func(ctx context.Context, input json.RawMessage) (any, error)),
	}
}

func (f *countingExecutor) handle(name string, handler func(ctx context.Context, input json.RawMessage) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[name] = handler
}

func (f *countingExecutor) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[name]
}

func (f *countingExecutor) Execute(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[name]++
	handler := f.handlers[name]
	f.mu.Unlock()

	if handler == nil {
		return json.RawMessage(`{}`), nil
	}

	result, err := handler(ctx, input)
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

func newTestContext(t *testing.T, repo persistence.InstanceRepository, executor ActivityExecutor) *Context {
	t.Helper()

	recorded, err := repo.History(t.Context(), "team-1", "run-1")
	require.NoError(t, err)

	history := newHistoryLog(repo, "team-1", "run-1", recorded)

	return newContext(t.Context(), slog.Default(), executor, history)
}

func TestContext_ExecuteRecordsAndReplays(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).InstanceRepository()
	executor := newCountingExecutor()
	executor.handle("sync.week", func(_ context.Context, _ json.RawMessage) (any, error) {
		return SyncWeekResult{Finished: true}, nil
	})

	wc := newTestContext(t, repo, executor)

	var first SyncWeekResult

	require.NoError(t, wc.Execute("sync:0", "sync.week", SyncWeekInput{}, &first))
	assert.True(t, first.Finished)
	assert.Equal(t, 1, executor.count("sync.week"))

	// A fresh context over the same history replays without re-executing.
	replayed := newTestContext(t, repo, executor)

	var second SyncWeekResult

	require.NoError(t, replayed.Execute("sync:0", "sync.week", SyncWeekInput{}, &second))
	assert.True(t, second.Finished)
	assert.Equal(t, 1, executor.count("sync.week"))
}

func TestContext_ExecuteReplaysRecordedFailure(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).InstanceRepository()
	executor := newCountingExecutor()
	executor.handle("schedule.share", func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("share rejected")
	})

	wc := newTestContext(t, repo, executor)

	err := wc.Execute("share", "schedule.share", ScheduleShareInput{}, nil)
	require.Error(t, err)

	var activityErr *ActivityError

	require.ErrorAs(t, err, &activityErr)
	assert.Equal(t, "share rejected", activityErr.Message)

	replayed := newTestContext(t, repo, executor)

	err = replayed.Execute("share", "schedule.share", ScheduleShareInput{}, nil)
	require.ErrorAs(t, err, &activityErr)
	assert.Equal(t, "share rejected", activityErr.Message)
	assert.Equal(t, 1, executor.count("schedule.share"))
}

func TestContext_NowIsStableAcrossReplay(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).InstanceRepository()
	executor := newCountingExecutor()

	wc := newTestContext(t, repo, executor)

	first, err := wc.Now("iter:0/started")
	require.NoError(t, err)

	replayed := newTestContext(t, repo, executor)

	second, err := replayed.Now("iter:0/started")
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestContext_FiredTimerReplaysInstantly(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).InstanceRepository()
	executor := newCountingExecutor()

	wc := newTestContext(t, repo, executor)
	require.NoError(t, wc.SleepUntil("iter:0/timer", time.Now().Add(10*time.Millisecond)))

	replayed := newTestContext(t, repo, executor)

	begun := time.Now()
	require.NoError(t, replayed.SleepUntil("iter:0/timer", time.Now().Add(time.Hour)))
	assert.Less(t, time.Since(begun), time.Second)
}

func TestContext_ChildStepsDoNotCollide(t *testing.T) {
	repo := file.NewPersistence(t.TempDir()).InstanceRepository()
	executor := newCountingExecutor()
	executor.handle("clear.day", func(_ context.Context, _ json.RawMessage) (any, error) {
		return ClearResult{Removed: 1}, nil
	})

	wc := newTestContext(t, repo, executor)

	var wg sync.WaitGroup

	for _, day := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		child := wc.Child("day:" + day)

		wg.Add(1)

		go func() {
			defer wg.Done()

			var result ClearResult

			assert.NoError(t, child.Execute("clear", "clear.day", ClearDayInput{}, &result))
		}()
	}

	wg.Wait()

	assert.Equal(t, 3, executor.count("clear.day"))

	events, err := repo.History(t.Context(), "team-1", "run-1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
