// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ItemKey builds the cache key for a memory item. The namespace is already
// joined, so keys from different tenants never collide.
func ItemKey(namespace, key string) string {
	return "mem:" + namespace + ":" + key
}
