package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/domain/memory"
	"github.com/Strob0t/LLManager/internal/port/memorystore"
)

// ExampleStore persists reviewed decisions in the ["few-shot", tenant] namespace.
type ExampleStore struct {
	store memorystore.Store
}

// NewExampleStore wraps store. A nil store yields ErrStoreUnavailable on use.
func NewExampleStore(store memorystore.Store) *ExampleStore {
	return &ExampleStore{store: store}
}

// Add writes ex under key, or under a fresh uuid when key is empty, and
// returns the key used.
func (s *ExampleStore) Add(ctx context.Context, tenantID, key string, ex decision.Example) (string, error) {
	if s == nil || s.store == nil {
		return "", domain.ErrStoreUnavailable
	}
	ns, err := memory.FewShot(tenantID)
	if err != nil {
		return "", err
	}
	value, err := json.Marshal(ex)
	if err != nil {
		return "", fmt.Errorf("encode example: %w", err)
	}
	if key == "" {
		key = uuid.NewString()
	}
	if err := s.store.Put(ctx, ns, key, value); err != nil {
		return "", fmt.Errorf("write few-shot example: %w", err)
	}
	return key, nil
}

// Search returns up to limit examples ranked by relevance to query.
// A non-positive limit returns every example.
func (s *ExampleStore) Search(ctx context.Context, tenantID, query string, limit int) ([]decision.Example, error) {
	if s == nil || s.store == nil {
		return nil, domain.ErrStoreUnavailable
	}
	ns, err := memory.FewShot(tenantID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Search(ctx, ns, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search few-shot examples: %w", err)
	}
	out := make([]decision.Example, 0, len(items))
	for _, it := range items {
		var ex decision.Example
		if err := json.Unmarshal(it.Value, &ex); err != nil {
			slog.Warn("skipping undecodable example", "key", it.Key, "error", err)
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

// ReflectionStore keeps a tenant's lessons as one list under the
// "reflections" key of ["reflection", tenant]. Appends are compare-and-swap
// with a bounded retry budget.
type ReflectionStore struct {
	store   memorystore.Store
	retries int
	onRetry func(ctx context.Context)
}

// NewReflectionStore wraps store. retries bounds how often an append is
// re-attempted after losing a version race.
func NewReflectionStore(store memorystore.Store, retries int) *ReflectionStore {
	if retries < 1 {
		retries = 1
	}
	return &ReflectionStore{store: store, retries: retries}
}

// List returns the tenant's lessons in insertion order.
func (s *ReflectionStore) List(ctx context.Context, tenantID string) ([]string, error) {
	list, _, err := s.load(ctx, tenantID)
	return list, err
}

func (s *ReflectionStore) load(ctx context.Context, tenantID string) ([]string, int64, error) {
	if s == nil || s.store == nil {
		return nil, 0, domain.ErrStoreUnavailable
	}
	ns, err := memory.Reflection(tenantID)
	if err != nil {
		return nil, 0, err
	}
	it, err := s.store.Get(ctx, ns, memory.ReflectionsKey)
	if errors.Is(err, domain.ErrNotFound) {
		return []string{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read reflections: %w", err)
	}
	var list memory.ReflectionList
	if err := json.Unmarshal(it.Value, &list); err != nil {
		return nil, 0, fmt.Errorf("decode reflections: %w", err)
	}
	if list.Reflections == nil {
		list.Reflections = []string{}
	}
	return list.Reflections, it.Version, nil
}

// Append adds lessons not already present (compared after NormalizeLesson)
// and returns the ones actually written. The stored list becomes
// existing ++ added.
func (s *ReflectionStore) Append(ctx context.Context, tenantID string, lessons []string) ([]string, error) {
	ns, err := memory.Reflection(tenantID)
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < s.retries; attempt++ {
		existing, version, err := s.load(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		added := newLessons(existing, lessons)
		if len(added) == 0 {
			return nil, nil
		}
		next := make([]string, 0, len(existing)+len(added))
		next = append(append(next, existing...), added...)
		value, err := json.Marshal(memory.ReflectionList{Reflections: next})
		if err != nil {
			return nil, fmt.Errorf("encode reflections: %w", err)
		}
		_, err = s.store.CompareAndPut(ctx, ns, memory.ReflectionsKey, value, version)
		if err == nil {
			return added, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("write reflections: %w", err)
		}
		slog.Debug("reflection write conflict, retrying", "tenant_id", tenantID, "attempt", attempt+1)
		if s.onRetry != nil {
			s.onRetry(ctx)
		}
	}
	return nil, fmt.Errorf("append reflections: %d attempts lost the version race: %w", s.retries, domain.ErrConflict)
}

// newLessons filters blanks, exact duplicates of existing lessons and
// duplicates within the batch.
func newLessons(existing, candidates []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, e := range existing {
		seen[memory.NormalizeLesson(e)] = struct{}{}
	}
	var out []string
	for _, c := range candidates {
		n := memory.NormalizeLesson(c)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, strings.TrimSpace(c))
	}
	return out
}
