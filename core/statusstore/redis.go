package statusstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/core/streamstatus"
	"github.com/redis/go-redis/v9"
)

// RedisStore stores each status as a hash under keyPrefix+id.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ streamstatus.Store = (*RedisStore)(nil)

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, keyPrefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis status store requires addr")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addr, err)
	}
	return NewRedisStoreWithClient(client, keyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) key(id string) string {
	return r.keyPrefix + id
}

func (r *RedisStore) CreateStatus(ctx context.Context, rc streamstatus.ReplicationContext, stream protocol.StreamKey, transitionedAt time.Time) (string, error) {
	rec := newRecord(uuid.NewString(), rc, stream, transitionedAt)
	err := r.client.HSet(ctx, r.key(rec.ID),
		"workspaceId", rec.WorkspaceID,
		"connectionId", rec.ConnectionID,
		"jobId", strconv.FormatInt(rec.JobID, 10),
		"attemptNumber", strconv.Itoa(rec.AttemptNumber),
		"jobType", string(rec.JobType),
		"streamName", rec.StreamName,
		"streamNamespace", rec.StreamNamespace,
		"runState", string(rec.RunState),
		"transitionedAt", strconv.FormatInt(rec.TransitionedAt.UnixMilli(), 10),
	).Err()
	if err != nil {
		return "", fmt.Errorf("failed to write stream status: %w", err)
	}
	return rec.ID, nil
}

func (r *RedisStore) UpdateStatus(ctx context.Context, update streamstatus.StatusUpdate) error {
	key := r.key(update.ID)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to read stream status %s: %w", update.ID, err)
	}
	if exists == 0 {
		return ErrStatusNotFound
	}

	quotaReset := ""
	if update.RateLimit != nil && update.RateLimit.QuotaReset != nil {
		quotaReset = strconv.FormatInt(update.RateLimit.QuotaReset.UnixMilli(), 10)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"runState", string(update.RunState),
			"incompleteCause", string(update.IncompleteCause),
			"quotaReset", quotaReset,
			"transitionedAt", strconv.FormatInt(update.TransitionedAt.UnixMilli(), 10),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update stream status %s: %w", update.ID, err)
	}
	return nil
}

func (r *RedisStore) Close(context.Context) error {
	return r.client.Close()
}
