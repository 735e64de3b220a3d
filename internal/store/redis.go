package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	ckerrors "github.com/systmms/credkeeper/internal/errors"
)

// Redis stores credentials in a shared Redis instance, one key per
// credential type under a common prefix. Intended for service fleets that
// already distribute secrets through a cache.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a redis backend from a connection URL such as
// redis://localhost:6379/0.
func NewRedis(url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if prefix == "" {
		prefix = "credkeeper"
	}
	return &Redis{client: redis.NewClient(opts), prefix: prefix}, nil
}

// Name implements Store.
func (r *Redis) Name() string {
	return "redis:" + r.prefix
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) backupKey() string {
	return r.prefix + ":backup"
}

// Read implements Store. Current values live in one hash keyed by the
// prefix, field per credential type.
func (r *Redis) Read(ctx context.Context, typeID string) (string, error) {
	value, err := r.client.HGet(ctx, r.prefix, typeID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis hget %s: %w", typeID, err)
	}
	return value, nil
}

// Apply implements Store. The previous value is copied into a backup hash
// before the overwrite; HSET itself is atomic on the server side, so a
// failed write never leaves a partial value.
func (r *Redis) Apply(ctx context.Context, typeID, value string) error {
	prev, err := r.client.HGet(ctx, r.prefix, typeID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("redis hget %s: %w", typeID, err)}
	}
	if prev != "" {
		if err := r.client.HSet(ctx, r.backupKey(), typeID, prev).Err(); err != nil {
			return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("redis backup %s: %w", typeID, err)}
		}
	}

	if err := r.client.HSet(ctx, r.prefix, typeID, value).Err(); err != nil {
		return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("redis hset %s: %w", typeID, err)}
	}
	return nil
}
