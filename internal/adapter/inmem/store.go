// Package inmem implements the memory store and checkpoint ports in process memory.
// State is lost on restart; it backs tests, the CLI and single-node development.
package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/memory"
)

// Store is a mutex-guarded map of namespaces to items.
type Store struct {
	mu    sync.Mutex
	items map[string]map[string]memory.Item
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]map[string]memory.Item), now: time.Now}
}

func clone(it memory.Item) memory.Item {
	it.Value = append(json.RawMessage(nil), it.Value...)
	it.Namespace = append(memory.Namespace(nil), it.Namespace...)
	return it
}

// Get implements memorystore.Store.
func (s *Store) Get(_ context.Context, ns memory.Namespace, key string) (*memory.Item, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[ns.String()][key]
	if !ok {
		return nil, fmt.Errorf("item %s/%s: %w", ns, key, domain.ErrNotFound)
	}
	out := clone(it)
	return &out, nil
}

// putLocked must be called with s.mu held.
func (s *Store) putLocked(ns memory.Namespace, key string, value json.RawMessage) int64 {
	bucket, ok := s.items[ns.String()]
	if !ok {
		bucket = make(map[string]memory.Item)
		s.items[ns.String()] = bucket
	}
	now := s.now().UTC()
	prev, exists := bucket[key]
	it := memory.Item{Namespace: ns, Key: key, Value: value, Version: 1, CreatedAt: now, UpdatedAt: now}
	if exists {
		it.Version = prev.Version + 1
		it.CreatedAt = prev.CreatedAt
	}
	bucket[key] = clone(it)
	return it.Version
}

// Put implements memorystore.Store.
func (s *Store) Put(_ context.Context, ns memory.Namespace, key string, value json.RawMessage) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(ns, key, value)
	return nil
}

// CompareAndPut implements memorystore.Store.
func (s *Store) CompareAndPut(_ context.Context, ns memory.Namespace, key string, value json.RawMessage, expected int64) (int64, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if it, ok := s.items[ns.String()][key]; ok {
		current = it.Version
	}
	if current != expected {
		return 0, fmt.Errorf("item %s/%s at version %d, expected %d: %w", ns, key, current, expected, domain.ErrConflict)
	}
	return s.putLocked(ns, key, value), nil
}

// Search implements memorystore.Store with lexical ranking.
func (s *Store) Search(_ context.Context, ns memory.Namespace, query string, limit int) ([]memory.Item, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	bucket := s.items[ns.String()]
	items := make([]memory.Item, 0, len(bucket))
	for _, it := range bucket {
		items = append(items, clone(it))
	}
	s.mu.Unlock()
	return memory.Rank(items, query, limit), nil
}

// Len returns the number of items in ns.
func (s *Store) Len(ns memory.Namespace) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[ns.String()])
}
