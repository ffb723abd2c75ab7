package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/LLManager/internal/adapter/otel"
	"github.com/Strob0t/LLManager/internal/adapter/ws"
	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/domain/review"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
	"github.com/Strob0t/LLManager/internal/logger"
	"github.com/Strob0t/LLManager/internal/port/broadcast"
	"github.com/Strob0t/LLManager/internal/port/checkpoint"
	"github.com/Strob0t/LLManager/internal/port/llm"
	"github.com/Strob0t/LLManager/internal/port/memorystore"
	"github.com/Strob0t/LLManager/internal/port/messagequeue"
)

// WorkflowConfig tunes the decision workflow.
type WorkflowConfig struct {
	DefaultModel        string
	Temperature         float64
	DecisionMaxTokens   int
	ReflectionMaxTokens int
	ExampleLimit        int
	CASRetries          int
	MaxQueryLength      int // 0 disables the check
	Criteria            decision.Criteria
}

// WorkflowDeps are the collaborators of a WorkflowService. Queue, Hub and
// Metrics are optional.
type WorkflowDeps struct {
	Model       llm.Model
	Memory      memorystore.Store
	Checkpoints checkpoint.Store
	Queue       messagequeue.Queue
	Hub         broadcast.Broadcaster
	Metrics     *cfotel.Metrics
}

// WorkflowService runs decision requests up to the review gate, suspends
// them as checkpoints and resumes them with the reviewer's verdict.
type WorkflowService struct {
	cfg         WorkflowConfig
	checkpoints checkpoint.Store
	queue       messagequeue.Queue
	hub         broadcast.Broadcaster
	metrics     *cfotel.Metrics

	examples    *ExampleStore
	reflections *ReflectionStore
	context     *ContextBuilder
	reasoning   *ReasoningStage
	decision    *DecisionStage
	gate        *ReviewGate
	reflection  *ReflectionService

	now func() time.Time
}

// NewWorkflowService wires the stages over deps.
func NewWorkflowService(cfg WorkflowConfig, deps WorkflowDeps) *WorkflowService {
	if cfg.Criteria.ModelID == "" {
		cfg.Criteria.ModelID = cfg.DefaultModel
	}

	examples := NewExampleStore(deps.Memory)
	reflections := NewReflectionStore(deps.Memory, cfg.CASRetries)
	if deps.Metrics != nil {
		reflections.onRetry = deps.Metrics.CASRetry
	}

	s := &WorkflowService{
		cfg:         cfg,
		checkpoints: deps.Checkpoints,
		queue:       deps.Queue,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
		examples:    examples,
		reflections: reflections,
		context:     NewContextBuilder(examples, reflections, cfg.ExampleLimit),
		reasoning:   NewReasoningStage(deps.Model, cfg.Temperature),
		decision:    NewDecisionStage(deps.Model, cfg.Temperature, cfg.DecisionMaxTokens),
		gate:        NewReviewGate(examples),
		reflection:  NewReflectionService(deps.Model, reflections, cfg.ReflectionMaxTokens),
		now:         func() time.Time { return time.Now().UTC() },
	}
	s.reasoning.caller.metrics = deps.Metrics
	s.decision.caller.metrics = deps.Metrics
	s.reflection.caller.metrics = deps.Metrics
	return s
}

// Start validates req, creates a run and drives it to the review gate.
// A run that fails after creation is returned together with the error.
func (s *WorkflowService) Start(ctx context.Context, req workflow.StartRequest) (*workflow.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.cfg.MaxQueryLength > 0 && len(req.Query) > s.cfg.MaxQueryLength {
		return nil, fmt.Errorf("query exceeds %d bytes: %w", s.cfg.MaxQueryLength, domain.ErrValidation)
	}
	if s.checkpoints == nil {
		return nil, domain.ErrStoreUnavailable
	}

	now := s.now()
	run := &workflow.Run{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		ThreadID:  req.ThreadID,
		State:     workflow.StatePending,
		Query:     req.Query,
		Config:    req.Config.WithDefaults(s.cfg.Criteria),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx = logger.WithTenant(logger.WithRunID(ctx, run.ID), run.TenantID)
	ctx, span := cfotel.StartRunSpan(ctx, "start", run.ID, run.TenantID)

	if err := s.checkpoints.Save(ctx, run); err != nil {
		cfotel.EndSpan(span, err)
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.metrics.RunStarted(ctx)
	slog.InfoContext(ctx, "run started", "model", run.Config.ModelID, "thread_id", run.ThreadID)

	err := s.runToGate(ctx, run)
	if err != nil {
		s.fail(ctx, run, err)
	}
	cfotel.EndSpan(span, err)
	return run, err
}

func (s *WorkflowService) runToGate(ctx context.Context, run *workflow.Run) error {
	if err := s.transition(ctx, run, workflow.EventStart); err != nil {
		return err
	}

	pc, err := s.context.Build(ctx, run.Query, run.TenantID)
	if err != nil {
		return err
	}
	block := FormatContext(pc.Examples, pc.Reflections, run.Config)
	reasoning, systemPrompt, err := s.reasoning.Reason(ctx, run.Query, block, run.Config.ModelID)
	if err != nil {
		return err
	}
	run.Reasoning = reasoning
	run.PromptContext = systemPrompt
	if err := s.transition(ctx, run, workflow.EventReasoned); err != nil {
		return err
	}

	proposed, err := s.decision.Decide(ctx, run.PromptContext, run.Reasoning, run.Query, run.Config.ModelID)
	if err != nil {
		return err
	}
	interrupt := s.gate.Suspend(run.Query, proposed)
	run.Proposed = &proposed
	run.Interrupt = &interrupt
	run.Outcome = review.OutcomeProposed
	if err := s.transition(ctx, run, workflow.EventDecided); err != nil {
		return err
	}

	slog.InfoContext(ctx, "run awaiting review", "status", proposed.Status, "examples", len(pc.Examples), "reflections", len(pc.Reflections))
	s.publish(ctx, messagequeue.SubjectRunSuspended, run)
	s.broadcast(ctx, broadcast.EventReviewPending, ws.ReviewPendingEvent{
		RunID:     run.ID,
		TenantID:  run.TenantID,
		Query:     run.Query,
		Interrupt: run.Interrupt,
	})
	return nil
}

// Resume applies the reviewer's response to a suspended run of tenantID.
// An invalid response fails the run without writing to memory. Of two
// concurrent resumes exactly one claims the run; the other gets ErrConflict.
func (s *WorkflowService) Resume(ctx context.Context, tenantID, runID string, resp review.Response) (*workflow.Run, error) {
	run, err := s.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.State != workflow.StateAwaitingReview {
		return run, fmt.Errorf("run %s is %s, not awaiting review: %w", run.ID, run.State, domain.ErrConflict)
	}

	ctx = logger.WithTenant(logger.WithRunID(ctx, run.ID), run.TenantID)
	ctx, span := cfotel.StartRunSpan(ctx, "resume", run.ID, run.TenantID)

	err = s.resume(ctx, run, resp)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		s.fail(ctx, run, err)
	}
	cfotel.EndSpan(span, err)
	return run, err
}

func (s *WorkflowService) resume(ctx context.Context, run *workflow.Run, resp review.Response) error {
	if run.Proposed == nil {
		return fmt.Errorf("run %s has no proposed decision: %w", run.ID, domain.ErrValidation)
	}
	if _, err := resp.Validate(); err != nil {
		return err
	}
	waited := s.now().Sub(run.UpdatedAt).Seconds()

	// Claim the run before the gate writes memory; a concurrent resume
	// loses the checkpoint CAS here and leaves the stores untouched.
	if err := s.transition(ctx, run, workflow.EventClaimed); err != nil {
		return err
	}
	res, err := s.gate.Resolve(ctx, run.TenantID, run.ID, run.Query, *run.Proposed, resp)
	if err != nil {
		return err
	}
	ev, err := workflow.EventForOutcome(res.Outcome)
	if err != nil {
		return err
	}
	run.Outcome = res.Outcome
	run.Edited = res.Edited
	run.ChangeType = res.ChangeType
	run.ExampleKey = res.ExampleKey
	if err := s.transition(ctx, run, ev); err != nil {
		return err
	}
	s.metrics.ReviewResolved(ctx, string(res.Outcome), waited)

	if res.Outcome == review.OutcomeEdited {
		if err := s.reflect(ctx, run); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "run finished", "state", run.State, "outcome", run.Outcome, "lessons", len(run.Lessons))
	s.finished(ctx, messagequeue.SubjectRunCompleted, broadcast.EventRunCompleted, run)
	return nil
}

func (s *WorkflowService) reflect(ctx context.Context, run *workflow.Run) error {
	c := Correction{
		Original:   *run.Proposed,
		Edited:     *run.Edited,
		Reasoning:  run.Reasoning,
		ChangeType: run.ChangeType,
		ModelID:    run.Config.ModelID,
	}
	summary, err := s.reflection.Reflect(ctx, run.TenantID, c)
	if err != nil {
		return err
	}
	run.Summary = summary
	if err := s.transition(ctx, run, workflow.EventReflected); err != nil {
		return err
	}

	lessons, err := s.reflection.Extract(ctx, run.TenantID, c, summary)
	if err != nil {
		return err
	}
	run.Lessons = lessons
	s.metrics.Lessons(ctx, len(lessons))
	return s.transition(ctx, run, workflow.EventExtracted)
}

// transition applies ev and checkpoints the run.
func (s *WorkflowService) transition(ctx context.Context, run *workflow.Run, ev workflow.Event) error {
	from := run.State
	if err := run.Apply(ev, s.now()); err != nil {
		return err
	}
	if err := s.checkpoints.Save(ctx, run); err != nil {
		return fmt.Errorf("checkpoint %s: %w", run.State, err)
	}
	slog.DebugContext(ctx, "run transition", "from", from, "event", ev, "to", run.State, "version", run.Version)
	return nil
}

// fail records cause on the run. The checkpoint write is best effort; a
// version conflict means another writer already owns the run.
func (s *WorkflowService) fail(ctx context.Context, run *workflow.Run, cause error) {
	slog.ErrorContext(ctx, "run failed", "state", run.State, "error", cause)
	run.Fail(cause, s.now())
	if err := s.checkpoints.Save(ctx, run); err != nil {
		slog.ErrorContext(ctx, "checkpoint failed run", "error", err)
	}
	s.finished(ctx, messagequeue.SubjectRunFailed, broadcast.EventRunFailed, run)
}

func (s *WorkflowService) finished(ctx context.Context, subject, event string, run *workflow.Run) {
	s.metrics.RunFinished(ctx, string(run.State))
	s.publish(ctx, subject, run)
	s.broadcast(ctx, event, ws.RunFinishedEvent{
		RunID:    run.ID,
		TenantID: run.TenantID,
		State:    string(run.State),
		Outcome:  string(run.Outcome),
		Error:    run.Error,
	})
}

func (s *WorkflowService) publish(ctx context.Context, subject string, run *workflow.Run) {
	if s.queue == nil {
		return
	}
	p := messagequeue.RunEventPayload{
		RunID:    run.ID,
		TenantID: run.TenantID,
		State:    string(run.State),
		Outcome:  string(run.Outcome),
		Lessons:  len(run.Lessons),
		Error:    run.Error,
	}
	if run.Proposed != nil {
		p.Status = string(run.Proposed.Status)
	}
	if run.Edited != nil {
		p.Status = string(run.Edited.Status)
	}
	data, err := json.Marshal(p)
	if err != nil {
		slog.ErrorContext(ctx, "encode run event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "publish run event", "subject", subject, "error", err)
	}
}

func (s *WorkflowService) broadcast(ctx context.Context, event string, payload any) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, event, payload)
	}
}

// Get returns the run when it belongs to tenantID. Runs of other tenants
// are reported as not found.
func (s *WorkflowService) Get(ctx context.Context, tenantID, runID string) (*workflow.Run, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if s.checkpoints == nil {
		return nil, domain.ErrStoreUnavailable
	}
	run, err := s.checkpoints.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.TenantID != tenantID {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return run, nil
}

// ListPending returns the tenant's runs waiting at the review gate.
func (s *WorkflowService) ListPending(ctx context.Context, tenantID string) ([]workflow.Run, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if s.checkpoints == nil {
		return nil, domain.ErrStoreUnavailable
	}
	runs, err := s.checkpoints.ListPending(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []workflow.Run{}
	}
	return runs, nil
}

// ListExamples returns the tenant's few-shot examples, best matches for
// query first. An empty query lists every example.
func (s *WorkflowService) ListExamples(ctx context.Context, tenantID, query string, limit int) ([]decision.Example, error) {
	return s.examples.Search(ctx, tenantID, query, limit)
}

// ListReflections returns the tenant's lessons in insertion order.
func (s *WorkflowService) ListReflections(ctx context.Context, tenantID string) ([]string, error) {
	return s.reflections.List(ctx, tenantID)
}

// StartIntakeSubscriber starts runs from runs.start messages. Input
// errors and failed runs are acknowledged; only a run that could not be
// created is retried by the queue.
func (s *WorkflowService) StartIntakeSubscriber(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return nil, fmt.Errorf("intake requires a message queue: %w", domain.ErrValidation)
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectRunStart, s.handleIntake)
}

func (s *WorkflowService) handleIntake(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.RunStartPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.WarnContext(ctx, "drop undecodable intake message", "error", err)
		return nil
	}
	run, err := s.Start(ctx, workflow.StartRequest{
		TenantID: p.TenantID,
		ThreadID: p.ThreadID,
		Query:    p.Query,
		Config: decision.Criteria{
			ApprovalCriteria:  p.ApprovalCriteria,
			RejectionCriteria: p.RejectionCriteria,
			ModelID:           p.ModelID,
		},
	})
	switch {
	case err == nil:
		return nil
	case run != nil:
		return nil
	case errors.Is(err, domain.ErrMissingTenant), errors.Is(err, domain.ErrEmptyQuery), errors.Is(err, domain.ErrValidation):
		slog.WarnContext(ctx, "drop invalid intake request", "tenant_id", p.TenantID, "error", err)
		return nil
	default:
		return err
	}
}
