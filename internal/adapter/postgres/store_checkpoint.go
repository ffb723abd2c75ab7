package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/LLManager/internal/domain/workflow"
)

// Checkpoints implements checkpoint.Store on the workflow_runs table.
type Checkpoints struct {
	pool *pgxpool.Pool
}

// NewCheckpoints creates a checkpoint store backed by the given pool.
func NewCheckpoints(pool *pgxpool.Pool) *Checkpoints {
	return &Checkpoints{pool: pool}
}

// Save implements checkpoint.Store.
func (c *Checkpoints) Save(ctx context.Context, r *workflow.Run) error {
	next := r.Version + 1
	snapshot := *r
	snapshot.Version = next
	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.ID, err)
	}

	var stored int64
	if r.Version == 0 {
		err = c.pool.QueryRow(ctx,
			`INSERT INTO workflow_runs (id, tenant_id, state, data, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING
			 RETURNING version`,
			r.ID, r.TenantID, string(r.State), data, next, r.CreatedAt, r.UpdatedAt).Scan(&stored)
	} else {
		err = c.pool.QueryRow(ctx,
			`UPDATE workflow_runs
			 SET state = $2, data = $3, version = $4, updated_at = $5
			 WHERE id = $1 AND version = $6
			 RETURNING version`,
			r.ID, string(r.State), data, next, r.UpdatedAt, r.Version).Scan(&stored)
	}
	if err != nil {
		return conflictWrap(err, "save run %s at version %d", r.ID, r.Version)
	}
	r.Version = stored
	return nil
}

func scanRun(row scannable) (*workflow.Run, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	var r workflow.Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &r, nil
}

// Load implements checkpoint.Store.
func (c *Checkpoints) Load(ctx context.Context, id string) (*workflow.Run, error) {
	r, err := scanRun(c.pool.QueryRow(ctx, `SELECT data FROM workflow_runs WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "load run %s", id)
	}
	return r, nil
}

// ListPending implements checkpoint.Store.
func (c *Checkpoints) ListPending(ctx context.Context, tenantID string) ([]workflow.Run, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT data FROM workflow_runs
		 WHERE tenant_id = $1 AND state = $2
		 ORDER BY created_at ASC`,
		tenantID, string(workflow.StateAwaitingReview))
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	defer rows.Close()

	var runs []workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
