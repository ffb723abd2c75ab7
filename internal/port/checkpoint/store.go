// Package checkpoint defines the durable run checkpoint port.
package checkpoint

import (
	"context"

	"github.com/Strob0t/LLManager/internal/domain/workflow"
)

// Store persists run checkpoints with optimistic versioning.
type Store interface {
	// Save writes r if its stored version equals r.Version (0 for a new run)
	// and sets r.Version to the new stored version. A mismatch returns
	// domain.ErrConflict.
	Save(ctx context.Context, r *workflow.Run) error

	// Load returns the run or domain.ErrNotFound.
	Load(ctx context.Context, id string) (*workflow.Run, error)

	// ListPending returns the tenant's runs suspended at the review gate, oldest first.
	ListPending(ctx context.Context, tenantID string) ([]workflow.Run, error)
}
