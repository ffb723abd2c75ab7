package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "llmanager"

// Metrics holds the workflow instruments. A nil *Metrics records nothing.
type Metrics struct {
	RunsStarted     metric.Int64Counter
	RunsFinished    metric.Int64Counter
	ReviewOutcomes  metric.Int64Counter
	LessonsAdded    metric.Int64Counter
	ModelCalls      metric.Int64Counter
	ModelDuration   metric.Float64Histogram
	ReviewLatency   metric.Float64Histogram
	ReflectionRetry metric.Int64Counter
}

// NewMetrics creates all instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.RunsStarted, err = meter.Int64Counter("llmanager.runs.started",
		metric.WithDescription("Decision runs started")); err != nil {
		return nil, err
	}
	if m.RunsFinished, err = meter.Int64Counter("llmanager.runs.finished",
		metric.WithDescription("Decision runs reaching a terminal state, by state")); err != nil {
		return nil, err
	}
	if m.ReviewOutcomes, err = meter.Int64Counter("llmanager.review.outcomes",
		metric.WithDescription("Reviewer responses, by outcome")); err != nil {
		return nil, err
	}
	if m.LessonsAdded, err = meter.Int64Counter("llmanager.reflections.added",
		metric.WithDescription("Lessons appended to reflection memory")); err != nil {
		return nil, err
	}
	if m.ModelCalls, err = meter.Int64Counter("llmanager.llm.calls",
		metric.WithDescription("Model invocations, by purpose and result")); err != nil {
		return nil, err
	}
	if m.ModelDuration, err = meter.Float64Histogram("llmanager.llm.duration_seconds",
		metric.WithDescription("Model invocation latency"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ReviewLatency, err = meter.Float64Histogram("llmanager.review.latency_seconds",
		metric.WithDescription("Time a run spent waiting for review"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ReflectionRetry, err = meter.Int64Counter("llmanager.reflections.cas_retries",
		metric.WithDescription("Reflection writes retried after a version conflict")); err != nil {
		return nil, err
	}
	return m, nil
}

// RunStarted counts a new run.
func (m *Metrics) RunStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsStarted.Add(ctx, 1)
}

// RunFinished counts a run reaching state.
func (m *Metrics) RunFinished(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.RunsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// ReviewResolved counts an outcome and records how long the run waited.
func (m *Metrics) ReviewResolved(ctx context.Context, outcome string, waitedSeconds float64) {
	if m == nil {
		return
	}
	m.ReviewOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.ReviewLatency.Record(ctx, waitedSeconds)
}

// Lessons counts lessons appended to memory.
func (m *Metrics) Lessons(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.LessonsAdded.Add(ctx, int64(n))
}

// ModelCall records one model invocation.
func (m *Metrics) ModelCall(ctx context.Context, purpose string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(attribute.String("purpose", purpose), attribute.String("result", result))
	m.ModelCalls.Add(ctx, 1, attrs)
	m.ModelDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("purpose", purpose)))
}

// CASRetry counts a reflection write retried after a conflict.
func (m *Metrics) CASRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReflectionRetry.Add(ctx, 1)
}
