// Package cmd provides common initialization for the command-line entry
// points.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shiftbridge/shiftbridge/pkg/adapters/secrets"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
	"github.com/shiftbridge/shiftbridge/pkg/persistence/file"
	"github.com/shiftbridge/shiftbridge/pkg/persistence/postgresql"
	"github.com/shiftbridge/shiftbridge/pkg/persistence/redisstore"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

// NewPersistence picks the backend from the URL scheme: postgres:// for
// PostgreSQL, anything else is treated as a file-store root path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch provider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func provider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}

// WithRedisSnapshots overrides the snapshot repository with a Redis-backed
// one. Teams and instance history stay in the base store.
func WithRedisSnapshots(ctx context.Context, logger *slog.Logger, base persistence.Persistence, redisURL string) persistence.Persistence {
	snapshots, err := redisstore.NewSnapshotRepository(ctx, logger, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to create Redis snapshot store: %w", err))
	}

	return &redisSnapshotPersistence{Persistence: base, snapshots: snapshots}
}

type redisSnapshotPersistence struct {
	persistence.Persistence

	snapshots *redisstore.SnapshotRepository
}

func (p *redisSnapshotPersistence) SnapshotRepository() persistence.SnapshotRepository {
	return p.snapshots
}

func (p *redisSnapshotPersistence) HealthCheck(ctx context.Context) error {
	err := p.Persistence.HealthCheck(ctx)
	if err != nil {
		return err
	}

	return p.snapshots.HealthCheck(ctx)
}

func (p *redisSnapshotPersistence) Close(ctx context.Context) error {
	err := p.snapshots.Close(ctx)
	if err != nil {
		return err
	}

	return p.Persistence.Close(ctx)
}

// NewSecrets returns a Redis-backed secrets store when a URL is configured,
// falling back to the in-memory store for development.
func NewSecrets(ctx context.Context, logger *slog.Logger, redisURL string) protocol.Secrets {
	if redisURL == "" {
		logger.WarnContext(ctx, "No redis url configured, keeping secrets in memory")

		return secrets.NewMemoryStore()
	}

	store, err := secrets.NewRedisStore(ctx, logger, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to create Redis secrets store: %w", err))
	}

	return store
}
