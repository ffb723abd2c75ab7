// Package memorystore defines the namespaced key/value store port backing
// the example and reflection stores.
package memorystore

import (
	"context"
	"encoding/json"

	"github.com/Strob0t/LLManager/internal/domain/memory"
)

// Store is the memory store contract.
type Store interface {
	// Get returns the item at (ns, key) or domain.ErrNotFound.
	Get(ctx context.Context, ns memory.Namespace, key string) (*memory.Item, error)

	// Put writes value unconditionally.
	Put(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage) error

	// Search returns up to limit items of ns ranked by relevance to query.
	Search(ctx context.Context, ns memory.Namespace, query string, limit int) ([]memory.Item, error)

	// CompareAndPut writes value only if the stored version equals expected.
	// An expected version of 0 means the key must not exist yet.
	// It returns the new version, or domain.ErrConflict on mismatch.
	CompareAndPut(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage, expected int64) (int64, error)
}
