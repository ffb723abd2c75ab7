package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "llmanager"

// StartRunSpan starts a span covering one workflow step of a run.
func StartRunSpan(ctx context.Context, step, runID, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "workflow."+step,
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("tenant.id", tenantID),
		),
	)
}

// StartModelSpan starts a span for a single model invocation.
func StartModelSpan(ctx context.Context, purpose, modelID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "llm."+purpose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("llm.model", modelID)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
