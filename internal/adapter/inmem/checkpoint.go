package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
)

// Checkpoints stores serialized runs so callers never share a mutable pointer.
type Checkpoints struct {
	mu   sync.Mutex
	runs map[string][]byte
	vers map[string]int64
}

// NewCheckpoints creates an empty checkpoint store.
func NewCheckpoints() *Checkpoints {
	return &Checkpoints{runs: make(map[string][]byte), vers: make(map[string]int64)}
}

// Save implements checkpoint.Store.
func (c *Checkpoints) Save(_ context.Context, r *workflow.Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vers[r.ID] != r.Version {
		return fmt.Errorf("run %s at version %d, expected %d: %w", r.ID, c.vers[r.ID], r.Version, domain.ErrConflict)
	}
	next := r.Version + 1
	snapshot := *r
	snapshot.Version = next
	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.ID, err)
	}
	c.runs[r.ID] = data
	c.vers[r.ID] = next
	r.Version = next
	return nil
}

// Load implements checkpoint.Store.
func (c *Checkpoints) Load(_ context.Context, id string) (*workflow.Run, error) {
	c.mu.Lock()
	data, ok := c.runs[id]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	var r workflow.Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &r, nil
}

// ListPending implements checkpoint.Store.
func (c *Checkpoints) ListPending(_ context.Context, tenantID string) ([]workflow.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []workflow.Run
	for id, data := range c.runs {
		var r workflow.Run
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		if r.TenantID == tenantID && r.State == workflow.StateAwaitingReview {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
