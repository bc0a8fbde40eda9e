// Package retrypolicy wraps fallible remote operations with bounded,
// fixed-interval retries classified by failure kind.
package retrypolicy

import (
	"context"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// Policy retries an idempotent operation a fixed number of times with a
// fixed wait between attempts. Policies hold no mutable state and are safe
// for concurrent use.
type Policy struct {
	Name      string
	Attempts  int
	Interval  time.Duration
	Retryable Classifier
}

// Conflict retries only optimistic-concurrency conflicts. Used when
// mutating a shared scheduling-group membership list that other team-sync
// instances may touch concurrently.
func Conflict() Policy {
	return Policy{
		Name:      "conflict",
		Attempts:  5,
		Interval:  2 * time.Second,
		Retryable: protocol.IsConflict,
	}
}

// Transient retries any error-class response. Used around long-running
// provisioning operations where transient backend unavailability is common.
func Transient() Policy {
	return Policy{
		Name:      "transient",
		Attempts:  4,
		Interval:  5 * time.Second,
		Retryable: protocol.IsTransient,
	}
}

// Do runs op, retrying per the policy. Exhausting retries surfaces the last
// error unchanged; callers decide whether that is fatal or means skipping
// the record.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Interval):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
