package service

import (
	"context"
	"encoding/json"
	"time"

	cfotel "github.com/Strob0t/LLManager/internal/adapter/otel"
	"github.com/Strob0t/LLManager/internal/port/llm"
)

// modelCaller wraps llm.Model with a span and metrics per invocation.
type modelCaller struct {
	model   llm.Model
	metrics *cfotel.Metrics
}

func (c modelCaller) complete(ctx context.Context, purpose string, req llm.Request) (*llm.Response, error) {
	ctx, span := cfotel.StartModelSpan(ctx, purpose, req.ModelID)
	start := time.Now()
	resp, err := c.model.Complete(ctx, req)
	c.metrics.ModelCall(ctx, purpose, time.Since(start).Seconds(), err)
	cfotel.EndSpan(span, err)
	return resp, err
}

func (c modelCaller) structured(ctx context.Context, purpose string, req llm.Request, tool llm.Tool) (json.RawMessage, error) {
	ctx, span := cfotel.StartModelSpan(ctx, purpose, req.ModelID)
	start := time.Now()
	raw, err := c.model.CompleteStructured(ctx, req, tool)
	c.metrics.ModelCall(ctx, purpose, time.Since(start).Seconds(), err)
	cfotel.EndSpan(span, err)
	return raw, err
}
