package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
)

// Checkpoints implements checkpoint.Store on a JetStream KV bucket keyed by run id.
type Checkpoints struct {
	kv jetstream.KeyValue
}

// NewCheckpoints creates a KV-backed checkpoint store.
func NewCheckpoints(kv jetstream.KeyValue) *Checkpoints {
	return &Checkpoints{kv: kv}
}

// Save implements checkpoint.Store. The KV revision is the run version.
func (c *Checkpoints) Save(ctx context.Context, r *workflow.Run) error {
	expected := r.Version
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.ID, err)
	}
	var rev uint64
	if expected == 0 {
		rev, err = c.kv.Create(ctx, r.ID, data)
	} else {
		rev, err = c.kv.Update(ctx, r.ID, data, uint64(expected))
	}
	if err != nil {
		if isRevisionConflict(err) {
			return fmt.Errorf("run %s at version %d: %w", r.ID, expected, domain.ErrConflict)
		}
		return fmt.Errorf("kv save run %s: %w", r.ID, err)
	}
	r.Version = int64(rev)
	return nil
}

// Load implements checkpoint.Store.
func (c *Checkpoints) Load(ctx context.Context, id string) (*workflow.Run, error) {
	entry, err := c.kv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrInvalidKey) {
			return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("kv load run %s: %w", id, err)
	}
	var r workflow.Run
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	r.Version = int64(entry.Revision())
	return &r, nil
}

// ListPending implements checkpoint.Store with a full bucket scan.
func (c *Checkpoints) ListPending(ctx context.Context, tenantID string) ([]workflow.Run, error) {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var out []workflow.Run
	for k := range lister.Keys() {
		r, err := c.Load(ctx, k)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if r.TenantID == tenantID && r.State == workflow.StateAwaitingReview {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
