package inmem

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/memory"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
)

func TestStoreGetPut(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ns := memory.Namespace{memory.PrefixFewShot, "a1"}

	if _, err := s.Get(ctx, ns, "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, ns, "k", json.RawMessage(`{"input":"q"}`)); err != nil {
		t.Fatal(err)
	}
	it, err := s.Get(ctx, ns, "k")
	if err != nil {
		t.Fatal(err)
	}
	if it.Version != 1 || string(it.Value) != `{"input":"q"}` {
		t.Errorf("unexpected item %+v", it)
	}

	// Returned items are copies.
	it.Value[2] = 'X'
	again, _ := s.Get(ctx, ns, "k")
	if string(again.Value) != `{"input":"q"}` {
		t.Error("mutation of a returned item leaked into the store")
	}

	if err := s.Put(ctx, memory.Namespace{}, "k", nil); err == nil {
		t.Error("expected empty namespace to be rejected")
	}
}

func TestStoreSearchThenGetIsStable(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ns := memory.Namespace{memory.PrefixFewShot, "a1"}
	_ = s.Put(ctx, ns, "k1", json.RawMessage(`{"input":"buy a $30 book for work"}`))
	_ = s.Put(ctx, ns, "k2", json.RawMessage(`{"input":"team dinner"}`))
	_ = s.Put(ctx, ns, "k3", json.RawMessage(`{"input":"book a conference ticket"}`))

	first, err := s.Search(ctx, ns, "book for work", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range first {
		if _, err := s.Get(ctx, ns, it.Key); err != nil {
			t.Fatalf("get %s: %v", it.Key, err)
		}
	}
	second, _ := s.Search(ctx, ns, "book for work", 10)
	if len(first) != len(second) {
		t.Fatalf("result sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Key != second[i].Key {
			t.Fatalf("ranking changed at %d: %s vs %s", i, first[i].Key, second[i].Key)
		}
	}
	if first[0].Key != "k1" {
		t.Errorf("expected k1 first, got %s", first[0].Key)
	}
}

func TestStoreCompareAndPutRace(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ns := memory.Namespace{memory.PrefixReflection, "a1"}

	const writers = 8
	var wg sync.WaitGroup
	var wins, conflicts int
	var mu sync.Mutex
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CompareAndPut(ctx, ns, memory.ReflectionsKey, json.RawMessage(`{"reflections":[]}`), 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("expected exactly one winner, got %d wins and %d conflicts", wins, conflicts)
	}
}

func TestCheckpoints(t *testing.T) {
	c := NewCheckpoints()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	r := &workflow.Run{ID: "r1", TenantID: "a1", State: workflow.StateAwaitingReview, CreatedAt: t0}
	if err := c.Save(ctx, r); err != nil {
		t.Fatal(err)
	}
	if r.Version != 1 {
		t.Fatalf("expected version 1, got %d", r.Version)
	}

	stale, _ := c.Load(ctx, "r1")
	r.State = workflow.StateCompleted
	if err := c.Save(ctx, r); err != nil {
		t.Fatal(err)
	}
	stale.State = workflow.StateIgnored
	if err := c.Save(ctx, stale); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for a stale resume, got %v", err)
	}

	_ = c.Save(ctx, &workflow.Run{ID: "r2", TenantID: "a1", State: workflow.StateAwaitingReview, CreatedAt: t0.Add(time.Hour)})
	_ = c.Save(ctx, &workflow.Run{ID: "r0", TenantID: "a1", State: workflow.StateAwaitingReview, CreatedAt: t0})
	_ = c.Save(ctx, &workflow.Run{ID: "r3", TenantID: "a2", State: workflow.StateAwaitingReview, CreatedAt: t0})

	pending, err := c.ListPending(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ID != "r0" || pending[1].ID != "r2" {
		t.Fatalf("unexpected pending runs %+v", pending)
	}
}
