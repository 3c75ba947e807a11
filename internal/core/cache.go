package core

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Cache.Get for absent keys, so callers can
// tell misses from transport errors.
var ErrCacheMiss = errors.New("cache: miss")

// Cache is the distributed cache port (last message id, unread counts).
// Entries are invalidated synchronously by the operation that changes the
// underlying value; TTLs exist for hygiene, never for correctness.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
