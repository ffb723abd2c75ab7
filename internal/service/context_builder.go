package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/decision"
)

// DefaultExampleLimit caps how many examples ground one run.
const DefaultExampleLimit = 10

// PromptContext is the memory retrieved for one request.
type PromptContext struct {
	Examples    []decision.Example
	Reflections []string
}

// ContextBuilder fetches the examples and reflections that ground a run.
type ContextBuilder struct {
	examples    *ExampleStore
	reflections *ReflectionStore
	limit       int
}

// NewContextBuilder creates a builder returning at most limit examples.
func NewContextBuilder(examples *ExampleStore, reflections *ReflectionStore, limit int) *ContextBuilder {
	if limit < 1 {
		limit = DefaultExampleLimit
	}
	return &ContextBuilder{examples: examples, reflections: reflections, limit: limit}
}

// Build retrieves the top examples for query and every reflection of the
// tenant. Both reads run concurrently.
func (b *ContextBuilder) Build(ctx context.Context, query, tenantID string) (*PromptContext, error) {
	if b == nil || b.examples == nil || b.reflections == nil {
		return nil, domain.ErrStoreUnavailable
	}
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}

	var pc PromptContext
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ex, err := b.examples.Search(gctx, tenantID, query, b.limit)
		if err != nil {
			return fmt.Errorf("build context: %w", err)
		}
		pc.Examples = ex
		return nil
	})
	g.Go(func() error {
		refl, err := b.reflections.List(gctx, tenantID)
		if err != nil {
			return fmt.Errorf("build context: %w", err)
		}
		pc.Reflections = refl
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &pc, nil
}
