// Package redisstore provides a Redis-backed snapshot repository. Snapshots
// are a cache-of-record that can be rebuilt from the destination, which
// makes Redis a reasonable home for them even when teams live elsewhere.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

const (
	keyPrefix     = "shiftbridge:snapshot"
	weekKeyLayout = "2006-01-02"
)

// SnapshotRepository stores one Redis key per (team, week start).
type SnapshotRepository struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewSnapshotRepository connects to Redis using a redis:// URL.
func NewSnapshotRepository(ctx context.Context, logger *slog.Logger, redisURL string) (*SnapshotRepository, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return &SnapshotRepository{client: client, logger: logger}, nil
}

func snapshotKey(teamID string, weekStart time.Time) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, teamID, weekStart.Format(weekKeyLayout))
}

func (sr *SnapshotRepository) Get(ctx context.Context, teamID string, weekStart time.Time) ([]*models.ShiftRecord, error) {
	body, err := sr.client.Get(ctx, snapshotKey(teamID, weekStart)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*models.ShiftRecord{}, nil
		}

		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var records []*models.ShiftRecord

	err = json.Unmarshal(body, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return records, nil
}

func (sr *SnapshotRepository) Save(ctx context.Context, teamID string, weekStart time.Time, records []*models.ShiftRecord) error {
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = sr.client.Set(ctx, snapshotKey(teamID, weekStart), body, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

func (sr *SnapshotRepository) Delete(ctx context.Context, teamID string, weekStart time.Time) error {
	err := sr.client.Del(ctx, snapshotKey(teamID, weekStart)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}

func (sr *SnapshotRepository) DeleteRange(ctx context.Context, teamID string, from, to time.Time) error {
	keys, err := sr.teamKeys(ctx, teamID)
	if err != nil {
		return err
	}

	for _, key := range keys {
		weekStart, err := time.Parse(weekKeyLayout, key[len(keyPrefix)+len(teamID)+2:])
		if err != nil {
			continue
		}

		if weekStart.Before(from) || weekStart.After(to) {
			continue
		}

		if err := sr.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
		}
	}

	return nil
}

func (sr *SnapshotRepository) DeleteAll(ctx context.Context, teamID string) error {
	keys, err := sr.teamKeys(ctx, teamID)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	err = sr.client.Del(ctx, keys...).Err()
	if err != nil {
		return fmt.Errorf("failed to delete snapshots for team %s: %w", teamID, err)
	}

	return nil
}

func (sr *SnapshotRepository) teamKeys(ctx context.Context, teamID string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)

	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, teamID)

	for {
		batch, next, err := sr.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshots for team %s: %w", teamID, err)
		}

		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// HealthCheck verifies the Redis connection is healthy.
func (sr *SnapshotRepository) HealthCheck(ctx context.Context) error {
	err := sr.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (sr *SnapshotRepository) Close(_ context.Context) error {
	if sr.client != nil {
		err := sr.client.Close()
		if err != nil {
			return fmt.Errorf("failed to close Redis client: %w", err)
		}
	}

	return nil
}
