package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by KV implementations when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// KV is a key-value store with native per-key expiry. Implementations must be
// safe for concurrent use; no client-side locking is layered on top.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// GetDel atomically reads and removes a key.
	GetDel(ctx context.Context, key string) ([]byte, error)
}
