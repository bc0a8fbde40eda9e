// Package secrets provides the per-team credential stores backing the
// adapter clients.
package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

// MemoryStore keeps secrets in process memory. Development and tests only.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, teamID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[teamID][key]
	if !ok {
		return "", fmt.Errorf("secret %s for team %s: %w", key, teamID, protocol.ErrNotFound)
	}

	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, teamID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items[teamID] == nil {
		s.items[teamID] = make(map[string]string)
	}

	s.items[teamID][key] = value

	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, teamID)

	return nil
}
