// Package cache provides the key-value cache used for judge status.
package cache

import (
	"context"
	"time"
)

// Cache is a minimal string key-value store with expiry.
type Cache interface {
	Ping(ctx context.Context) error
	Close() error

	// Get returns "" with a nil error when the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Counter operations back fixed-window rate limiting.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
