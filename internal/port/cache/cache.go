// Package cache defines the port interface for byte-value caching, used
// to front precedent lookups with in-process and remote layers.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value byte caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
