// Package memcache decorates a memory store with a read-through item cache.
package memcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/memory"
	"github.com/Strob0t/LLManager/internal/port/cache"
	"github.com/Strob0t/LLManager/internal/port/memorystore"
)

// Store caches Get results of the wrapped store. Writes go to the backing
// store first and then evict the cached item. Search always hits the backing
// store since its ranking depends on the query.
//
// The reflection list is never served from cache: every replica appends to
// it by compare-and-put, and a per-node L1 copy would hide other nodes'
// lessons from context building and dedup until it expired.
type Store struct {
	next  memorystore.Store
	cache cache.Cache
	ttl   time.Duration
}

// New wraps next with c. Cached items expire after ttl.
func New(next memorystore.Store, c cache.Cache, ttl time.Duration) *Store {
	return &Store{next: next, cache: c, ttl: ttl}
}

var _ memorystore.Store = (*Store)(nil)

// Get implements memorystore.Store.
func (s *Store) Get(ctx context.Context, ns memory.Namespace, key string) (*memory.Item, error) {
	if key == memory.ReflectionsKey {
		return s.next.Get(ctx, ns, key)
	}
	ck := cache.ItemKey(ns.String(), key)
	if raw, ok, err := s.cache.Get(ctx, ck); err == nil && ok {
		var it memory.Item
		if err := json.Unmarshal(raw, &it); err == nil {
			return &it, nil
		}
		_ = s.cache.Delete(ctx, ck)
	}

	it, err := s.next.Get(ctx, ns, key)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(it); err == nil {
		if err := s.cache.Set(ctx, ck, raw, s.ttl); err != nil {
			slog.Warn("memory cache fill failed", "key", ck, "error", err)
		}
	}
	return it, nil
}

// Put implements memorystore.Store.
func (s *Store) Put(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage) error {
	if err := s.next.Put(ctx, ns, key, value); err != nil {
		return err
	}
	s.evict(ctx, ns, key)
	return nil
}

// CompareAndPut implements memorystore.Store. A conflict also evicts the
// item, since the caller's expected version most likely came from a stale
// cached read.
func (s *Store) CompareAndPut(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage, expected int64) (int64, error) {
	v, err := s.next.CompareAndPut(ctx, ns, key, value, expected)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return 0, err
	}
	s.evict(ctx, ns, key)
	return v, err
}

// Search implements memorystore.Store.
func (s *Store) Search(ctx context.Context, ns memory.Namespace, query string, limit int) ([]memory.Item, error) {
	return s.next.Search(ctx, ns, query, limit)
}

func (s *Store) evict(ctx context.Context, ns memory.Namespace, key string) {
	ck := cache.ItemKey(ns.String(), key)
	if err := s.cache.Delete(ctx, ck); err != nil {
		slog.Warn("memory cache evict failed", "key", ck, "error", err)
	}
}
