// Package scopedcache provides per-team memoized lookup tables with lazy,
// single-flight population. Used for scheduling-group ids by name and
// member records by login.
package scopedcache

import (
	"context"
	"strings"
	"sync"
)

// Loader performs the one bulk fetch that populates a team's table. Keys
// are lowercased on insertion.
type Loader[V any] func(ctx context.Context) (map[string]V, error)

type teamEntry[V any] struct {
	ready  chan struct{}
	mu     sync.RWMutex
	values map[string]V
	err    error
}

// Cache maps team id -> case-insensitive key -> value. Population happens
// once per team on first access; concurrent first accesses share a single
// bulk fetch. Entries live for the process lifetime and are never
// proactively invalidated except through Put and Forget.
type Cache[V any] struct {
	mu    sync.Mutex
	teams map[string]*teamEntry[V]
}

func New[V any]() *Cache[V] {
	return &Cache[V]{teams: make(map[string]*teamEntry[V])}
}

// GetOrLoad returns the value under key for the team, populating the
// team's table first if needed. The boolean reports whether the key was
// present after population. A failed population is not cached; the next
// access retries.
func (c *Cache[V]) GetOrLoad(ctx context.Context, teamID, key string, load Loader[V]) (V, bool, error) {
	c.mu.Lock()

	entry, exists := c.teams[teamID]
	if !exists {
		entry = &teamEntry[V]{ready: make(chan struct{})}
		c.teams[teamID] = entry
		c.mu.Unlock()

		values, err := load(ctx)
		if err != nil {
			c.mu.Lock()
			delete(c.teams, teamID)
			c.mu.Unlock()

			entry.err = err
			close(entry.ready)

			var zero V

			return zero, false, err
		}

		entry.values = make(map[string]V, len(values))
		for k, v := range values {
			entry.values[strings.ToLower(k)] = v
		}

		close(entry.ready)
	} else {
		c.mu.Unlock()
	}

	select {
	case <-ctx.Done():
		var zero V

		return zero, false, ctx.Err()
	case <-entry.ready:
	}

	if entry.err != nil {
		var zero V

		return zero, false, entry.err
	}

	entry.mu.RLock()
	value, ok := entry.values[strings.ToLower(key)]
	entry.mu.RUnlock()

	return value, ok, nil
}

// Put overwrites a single entry, typically after creating the entity
// out-of-band. Only that one key is refreshed, never the whole table.
func (c *Cache[V]) Put(teamID, key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.teams[teamID]
	if !exists {
		entry = &teamEntry[V]{ready: make(chan struct{}), values: make(map[string]V)}
		close(entry.ready)
		c.teams[teamID] = entry
	}

	select {
	case <-entry.ready:
	default:
		// Population in flight; the bulk fetch will carry the fresh state.
		return
	}

	entry.mu.Lock()
	entry.values[strings.ToLower(key)] = value
	entry.mu.Unlock()
}

// Forget drops a team's table entirely. Used on unsubscribe.
func (c *Cache[V]) Forget(teamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.teams, teamID)
}
