package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a hash under "session:<id>". The TTL is
// renewed on every write.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
		ttl:    ttl,
	}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	if sessionID == "" {
		return "", false, ErrMissingID
	}

	val, err := r.client.HGet(ctx, r.key(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: get %s: %w", key, err)
	}

	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, sessionID string, values map[string]string) error {
	if sessionID == "" {
		return ErrMissingID
	}
	if len(values) == 0 {
		return nil
	}

	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key(sessionID), fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key(sessionID), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: set: %w", err)
	}

	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if sessionID == "" {
		return ErrMissingID
	}

	var err error
	if len(keys) == 0 {
		err = r.client.Del(ctx, r.key(sessionID)).Err()
	} else {
		err = r.client.HDel(ctx, r.key(sessionID), keys...).Err()
	}
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}

	return nil
}
