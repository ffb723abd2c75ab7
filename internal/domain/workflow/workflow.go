// Package workflow defines the decision run state machine and its durable checkpoint.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/domain/review"
)

// State is the position of a run in the decision workflow.
type State string

const (
	StatePending        State = "pending"
	StateReasoning      State = "reasoning"
	StateDeciding       State = "deciding"
	StateAwaitingReview State = "awaiting_review"
	StateResolving      State = "resolving"
	StateReflecting     State = "reflecting"
	StateExtracting     State = "extracting"
	StateCompleted      State = "completed"
	StateIgnored        State = "ignored"
	StateFailed         State = "failed"
)

// IsTerminal reports whether no further event can be applied.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateIgnored || s == StateFailed
}

// Event drives a transition.
type Event string

const (
	EventStart     Event = "start"
	EventReasoned  Event = "reasoned"
	EventDecided   Event = "decided"
	EventClaimed   Event = "claimed"
	EventAccepted  Event = "accepted"
	EventIgnored   Event = "ignored"
	EventEdited    Event = "edited"
	EventReflected Event = "reflected"
	EventExtracted Event = "extracted"
	EventFail      Event = "fail"
)

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StatePending, EventStart}:          StateReasoning,
	{StateReasoning, EventReasoned}:     StateDeciding,
	{StateDeciding, EventDecided}:       StateAwaitingReview,
	{StateAwaitingReview, EventClaimed}: StateResolving,
	{StateResolving, EventAccepted}:     StateCompleted,
	{StateResolving, EventIgnored}:      StateIgnored,
	{StateResolving, EventEdited}:       StateReflecting,
	{StateReflecting, EventReflected}:   StateExtracting,
	{StateExtracting, EventExtracted}:   StateCompleted,
}

// Next returns the state reached from s on ev.
// Fail is legal from every non-terminal state.
func Next(s State, ev Event) (State, error) {
	if ev == EventFail && !s.IsTerminal() {
		return StateFailed, nil
	}
	next, ok := transitions[transitionKey{s, ev}]
	if !ok {
		return "", fmt.Errorf("illegal transition %s --%s-->: %w", s, ev, domain.ErrValidation)
	}
	return next, nil
}

// EventForOutcome maps a review gate outcome to the workflow event it triggers.
func EventForOutcome(o review.Outcome) (Event, error) {
	switch o {
	case review.OutcomeAccepted:
		return EventAccepted, nil
	case review.OutcomeIgnored:
		return EventIgnored, nil
	case review.OutcomeEdited:
		return EventEdited, nil
	default:
		return "", fmt.Errorf("outcome %q does not resume a run: %w", o, domain.ErrInvalidHumanResponse)
	}
}

// Run is the checkpointed working state of one decision workflow.
type Run struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	ThreadID   string            `json:"thread_id,omitempty"`
	State      State             `json:"state"`
	Query      string            `json:"query"`
	Config     decision.Criteria `json:"config"`
	Version    int64             `json:"version"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`

	PromptContext string             `json:"prompt_context,omitempty"`
	Reasoning     string             `json:"reasoning,omitempty"`
	Proposed      *decision.Decision `json:"proposed,omitempty"`
	Interrupt     *review.Interrupt  `json:"interrupt,omitempty"`

	Outcome    review.Outcome      `json:"outcome,omitempty"`
	Edited     *decision.Decision  `json:"edited,omitempty"`
	ChangeType decision.ChangeType `json:"change_type,omitempty"`
	ExampleKey string              `json:"example_key,omitempty"`
	Summary    string              `json:"reflection_summary,omitempty"`
	Lessons    []string            `json:"lessons,omitempty"`
}

// Apply advances the run on ev and stamps the transition time.
func (r *Run) Apply(ev Event, now time.Time) error {
	next, err := Next(r.State, ev)
	if err != nil {
		return fmt.Errorf("run %s: %w", r.ID, err)
	}
	r.State = next
	r.UpdatedAt = now
	if next.IsTerminal() {
		t := now
		r.FinishedAt = &t
	}
	return nil
}

// Fail moves the run to failed and records the cause. Terminal runs are left untouched.
func (r *Run) Fail(cause error, now time.Time) {
	if r.State.IsTerminal() {
		return
	}
	r.State = StateFailed
	r.Error = cause.Error()
	r.UpdatedAt = now
	t := now
	r.FinishedAt = &t
}

// StartRequest holds the input of a new decision run.
type StartRequest struct {
	TenantID string            `json:"tenant_id"`
	ThreadID string            `json:"thread_id,omitempty"`
	Query    string            `json:"query,omitempty"`
	Messages []Message         `json:"messages,omitempty"`
	Config   decision.Criteria `json:"config"`
}

// Validate checks tenant presence and resolves the query text.
func (r *StartRequest) Validate() error {
	if r.TenantID == "" {
		return domain.ErrMissingTenant
	}
	if strings.TrimSpace(r.Query) == "" && len(r.Messages) > 0 {
		q, err := QueryFromMessages(r.Messages)
		if err != nil {
			return err
		}
		r.Query = q
	}
	if strings.TrimSpace(r.Query) == "" {
		return domain.ErrEmptyQuery
	}
	return nil
}
