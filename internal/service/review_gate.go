package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/domain/review"
)

// Resolution is the result of a reviewer response at the gate.
type Resolution struct {
	Outcome    review.Outcome
	Edited     *decision.Decision
	ChangeType decision.ChangeType
	ExampleKey string
}

// ReviewGate builds the interrupt for a proposed decision and applies the
// reviewer's verdict.
type ReviewGate struct {
	examples *ExampleStore
}

// NewReviewGate creates a gate persisting examples into examples.
func NewReviewGate(examples *ExampleStore) *ReviewGate {
	return &ReviewGate{examples: examples}
}

// Suspend returns the payload presented to the reviewer.
func (g *ReviewGate) Suspend(query string, proposed decision.Decision) review.Interrupt {
	return review.NewInterrupt(query, proposed)
}

// Resolve validates resp before touching any store. Accepted decisions are
// stored verbatim; edits store the replacement and carry the change type on
// to reflection; ignore stores nothing. The example is written under
// exampleKey, so resolving the same run twice rewrites one entry.
func (g *ReviewGate) Resolve(ctx context.Context, tenantID, exampleKey, query string, proposed decision.Decision, resp review.Response) (Resolution, error) {
	outcome, err := resp.Validate()
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Outcome: outcome}

	var stored decision.Decision
	switch outcome {
	case review.OutcomeIgnored:
		slog.InfoContext(ctx, "review ignored", "stage", "review")
		return res, nil
	case review.OutcomeAccepted:
		stored = proposed
	case review.OutcomeEdited:
		edited := resp.Edited()
		res.Edited = &edited
		res.ChangeType = decision.Classify(proposed, edited)
		stored = edited
	}

	key, err := g.examples.Add(ctx, tenantID, exampleKey, decision.ExampleFrom(query, stored))
	if err != nil {
		return Resolution{}, fmt.Errorf("review gate: %w", err)
	}
	res.ExampleKey = key
	slog.InfoContext(ctx, "review resolved", "stage", "review", "outcome", outcome, "change_type", res.ChangeType, "example_key", key)
	return res, nil
}
