package retrypolicy

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

func fastPolicy(retryable Classifier) Policy {
	return Policy{Name: "test", Attempts: 3, Interval: time.Millisecond, Retryable: retryable}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(protocol.IsTransient).Do(t.Context(), func(context.Context) error {
		calls++

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(protocol.IsTransient).Do(t.Context(), func(context.Context) error {
		calls++
		if calls < 3 {
			return protocol.NewStatusError("share", http.StatusServiceUnavailable, "backend busy")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionSurfacesUnderlyingError(t *testing.T) {
	original := protocol.NewStatusError("share", http.StatusBadGateway, "still down")

	calls := 0
	err := fastPolicy(protocol.IsTransient).Do(t.Context(), func(context.Context) error {
		calls++

		return original
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")

	var statusErr *protocol.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(protocol.IsConflict).Do(t.Context(), func(context.Context) error {
		calls++

		return protocol.NewStatusError("group", http.StatusInternalServerError, "boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ConflictPolicyRetriesOnlyConflicts(t *testing.T) {
	conflict := Policy{Name: "conflict", Attempts: 2, Interval: time.Millisecond, Retryable: protocol.IsConflict}

	calls := 0
	err := conflict.Do(t.Context(), func(context.Context) error {
		calls++
		if calls == 1 {
			return protocol.NewStatusError("group", http.StatusConflict, "etag mismatch")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PlainErrorsAreNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(protocol.IsTransient).Do(t.Context(), func(context.Context) error {
		calls++

		return errors.New("not a status error")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancellationStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	slow := Policy{Name: "slow", Attempts: 5, Interval: time.Minute, Retryable: protocol.IsTransient}

	calls := 0
	done := make(chan error, 1)

	go func() {
		done <- slow.Do(ctx, func(context.Context) error {
			calls++

			return protocol.NewStatusError("share", http.StatusServiceUnavailable, "busy")
		})
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
