package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/moderation/internal/domain"
)

// RedisClient is the minimal Redis surface the review store needs. Any
// driver (go-redis, redigo) can satisfy it; cmd/server creates the concrete
// client and injects it.
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// RedisStore mirrors queue membership to Redis so a restarted pod can
// rebuild its queue. Task TTL covers the longest SLA window plus slack.
type RedisStore struct {
	client    RedisClient
	keyPrefix string
	taskTTL   time.Duration
	opTimeout time.Duration
}

// NewRedisStore creates a Redis-backed review store.
func NewRedisStore(client RedisClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "moderation:review:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		taskTTL:   48 * time.Hour, // low priority SLA is 24h
		opTimeout: 2 * time.Second,
	}
}

func (rs *RedisStore) taskKey(id uuid.UUID) string {
	return rs.keyPrefix + "task:" + id.String()
}

func (rs *RedisStore) indexKey() string {
	return rs.keyPrefix + "index"
}

// SaveTask persists a queued task and adds it to the membership index.
func (rs *RedisStore) SaveTask(task *domain.ReviewTask) error {
	ctx, cancel := context.WithTimeout(context.Background(), rs.opTimeout)
	defer cancel()

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal review task: %w", err)
	}
	if err := rs.client.Set(ctx, rs.taskKey(task.ID), data, rs.taskTTL); err != nil {
		return fmt.Errorf("redis SET task: %w", err)
	}
	if err := rs.client.SAdd(ctx, rs.indexKey(), task.ID.String()); err != nil {
		slog.Warn("[ReviewStore] Failed to index task", "task_id", task.ID, "error", err)
	}
	return nil
}

// RemoveTask drops a dequeued task from Redis.
func (rs *RedisStore) RemoveTask(id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), rs.opTimeout)
	defer cancel()

	_ = rs.client.SRem(ctx, rs.indexKey(), id.String())
	return rs.client.Del(ctx, rs.taskKey(id))
}

// LoadAll returns every persisted task, for queue rebuild on startup.
// Index entries whose task key has expired are skipped and pruned.
func (rs *RedisStore) LoadAll(ctx context.Context) ([]*domain.ReviewTask, error) {
	ids, err := rs.client.SMembers(ctx, rs.indexKey())
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS index: %w", err)
	}

	tasks := make([]*domain.ReviewTask, 0, len(ids))
	for _, id := range ids {
		taskID, err := uuid.Parse(id)
		if err != nil {
			slog.Warn("[ReviewStore] Skipping malformed index entry", "entry", id)
			continue
		}
		data, err := rs.client.Get(ctx, rs.taskKey(taskID))
		if err != nil {
			_ = rs.client.SRem(ctx, rs.indexKey(), id)
			continue
		}
		var task domain.ReviewTask
		if err := json.Unmarshal(data, &task); err != nil {
			slog.Warn("[ReviewStore] Skipping corrupt task", "task_id", id, "error", err)
			continue
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}
