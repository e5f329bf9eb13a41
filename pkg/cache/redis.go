package cache

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// RedisStore is the subset of the redis client the cache needs.
type RedisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	CacheKey(parts ...string) string
}

// Redis stores entries under the cache namespace of a shared redis instance.
type Redis struct {
	store RedisStore
}

// NewRedis wraps a redis store.
func NewRedis(store RedisStore) (*Redis, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	return &Redis{store: store}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.store.Get(ctx, r.store.CacheKey(key))
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.store.Set(ctx, r.store.CacheKey(key), value, effectiveTTL(ttl))
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, 0, len(keys))
	for _, key := range keys {
		namespaced = append(namespaced, r.store.CacheKey(key))
	}
	return r.store.Del(ctx, namespaced...)
}

func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := r.store.DeletePrefix(ctx, r.store.CacheKey(prefix))
	return err
}
