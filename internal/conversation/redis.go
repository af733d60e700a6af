package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hyperjump/rfqrank/internal/models"
)

// DefaultRedisPrefix namespaces conversation keys.
const DefaultRedisPrefix = "rfqrank:conversation:"

// RedisStateStore keeps live state in Redis so several server instances can share
// conversations. Entries expire ttl after their last write.
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ StateStore = (*RedisStateStore)(nil)

// RedisOptions configures NewRedisStateStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStateStore connects to Redis and verifies the connection.
func NewRedisStateStore(ctx context.Context, opts RedisOptions) (*RedisStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStateStore{client: client, prefix: prefix, ttl: opts.TTL}, nil
}

func (r *RedisStateStore) key(briefingID string) string {
	return r.prefix + briefingID
}

func (r *RedisStateStore) Get(ctx context.Context, briefingID string) (*models.ConversationState, error) {
	data, err := r.client.Get(ctx, r.key(briefingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", briefingID, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", briefingID, err)
	}
	return &state, nil
}

func (r *RedisStateStore) Put(ctx context.Context, state *models.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", state.BriefingID, err)
	}
	if err := r.client.Set(ctx, r.key(state.BriefingID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write conversation %s: %w", state.BriefingID, err)
	}
	return nil
}

func (r *RedisStateStore) Delete(ctx context.Context, briefingID string) error {
	return r.client.Del(ctx, r.key(briefingID)).Err()
}

// Close closes the Redis client.
func (r *RedisStateStore) Close() error {
	return r.client.Close()
}
