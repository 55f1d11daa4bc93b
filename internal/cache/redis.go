package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace = "wl"
	// Per-operation ceiling so a slow cache degrades to a miss instead of
	// blocking the request.
	opTimeout = 150 * time.Millisecond
)

// Redis implements Cache on top of a go-redis client with namespaced keys.
type Redis struct {
	client    *redis.Client
	namespace string
}

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithNamespace sets the key namespace prefix.
func WithNamespace(ns string) RedisOption {
	return func(r *Redis) {
		if ns != "" {
			r.namespace = ns
		}
	}
}

// NewRedis connects to redisURL (e.g. "redis://localhost:6379/0") and
// verifies connectivity before returning.
func NewRedis(redisURL string, opts ...RedisOption) (*Redis, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	r := &Redis{client: client, namespace: defaultNamespace}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Redis) key(k string) string {
	return r.namespace + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = r.key(k)
	}
	return r.client.Del(ctx, namespaced...).Err()
}

func (r *Redis) DeletePattern(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }
