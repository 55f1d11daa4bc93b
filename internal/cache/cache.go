// Package cache defines the external cache contract used as a strict
// optimization: callers must treat every error as a miss, never as a
// request failure.
package cache

import (
	"context"
	"time"
)

// Cache is the minimal surface needed by read-through caches.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key with the given prefix. Intended for
	// role-level invalidation where many principals share one role.
	DeletePattern(ctx context.Context, prefix string) error
}

// Noop satisfies Cache without storing anything. Used when no cache
// backend is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool, error)        { return "", false, nil }
func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }
func (Noop) Delete(context.Context, ...string) error                  { return nil }
func (Noop) DeletePattern(context.Context, string) error              { return nil }
