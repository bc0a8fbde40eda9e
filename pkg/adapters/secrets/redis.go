package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

const keyPrefix = "shiftbridge:secret"

// RedisStore keeps per-team secrets in Redis so credentials survive
// restarts.
type RedisStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedisStore connects to Redis using a redis:// URL.
func NewRedisStore(ctx context.Context, logger *slog.Logger, redisURL string) (*RedisStore, error) {
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

	return &RedisStore{client: client, logger: logger}, nil
}

func secretKey(teamID, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, teamID, key)
}

func (s *RedisStore) Get(ctx context.Context, teamID, key string) (string, error) {
	value, err := s.client.Get(ctx, secretKey(teamID, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("secret %s for team %s: %w", key, teamID, protocol.ErrNotFound)
		}

		return "", fmt.Errorf("failed to get secret: %w", err)
	}

	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, teamID, key, value string) error {
	err := s.client.Set(ctx, secretKey(teamID, key), value, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to save secret: %w", err)
	}

	return nil
}

func (s *RedisStore) DeleteAll(ctx context.Context, teamID string) error {
	var (
		keys   []string
		cursor uint64
	)

	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, teamID)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan secrets for team %s: %w", teamID, err)
		}

		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil
	}

	err := s.client.Del(ctx, keys...).Err()
	if err != nil {
		return fmt.Errorf("failed to delete secrets for team %s: %w", teamID, err)
	}

	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close(_ context.Context) error {
	if s.client != nil {
		return s.client.Close()
	}

	return nil
}
