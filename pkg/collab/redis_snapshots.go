package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/storycut/storycut/pkg/models"
)

const snapshotKeyPrefix = "storycut:snapshot:"

// RedisSnapshotStore keeps compacted document snapshots in Redis. A
// snapshot per document, overwritten on every compaction; the TTL
// bounds how long torn-down rooms stay resumable.
type RedisSnapshotStore struct {
	client redis.UniversalClient
	logger *slog.Logger
	ttl    time.Duration
}

type RedisSnapshotConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisSnapshotStore(ctx context.Context, config RedisSnapshotConfig, logger *slog.Logger) (*RedisSnapshotStore, error) {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis snapshot store",
		"addr", config.Addr, "db", config.DB)

	return &RedisSnapshotStore{
		client: client,
		logger: logger.With("module", "redis_snapshots"),
		ttl:    config.TTL,
	}, nil
}

func (s *RedisSnapshotStore) SaveSnapshot(ctx context.Context, snapshot models.DocumentSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := snapshotKeyPrefix + snapshot.DocumentID
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot for document %s: %w", snapshot.DocumentID, err)
	}

	return nil
}

func (s *RedisSnapshotStore) LoadSnapshot(ctx context.Context, documentID string) (models.DocumentSnapshot, error) {
	data, err := s.client.Get(ctx, snapshotKeyPrefix+documentID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.DocumentSnapshot{}, fmt.Errorf("%w: document %s", ErrSnapshotNotFound, documentID)
		}

		return models.DocumentSnapshot{}, fmt.Errorf("failed to load snapshot for document %s: %w", documentID, err)
	}

	var snapshot models.DocumentSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return models.DocumentSnapshot{}, fmt.Errorf("failed to unmarshal snapshot for document %s: %w", documentID, err)
	}

	return snapshot, nil
}

func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}

// HealthCheck verifies the Redis connection.
func (s *RedisSnapshotStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
