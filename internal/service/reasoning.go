package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/port/llm"
)

// ReasoningStage weighs a request against its context without deciding.
type ReasoningStage struct {
	caller      modelCaller
	temperature float64
}

// NewReasoningStage creates the stage. Decision-critical stages run at a
// fixed temperature, normally 0.
func NewReasoningStage(model llm.Model, temperature float64) *ReasoningStage {
	return &ReasoningStage{caller: modelCaller{model: model}, temperature: temperature}
}

// Reason returns the model's reasoning and the rendered system prompt.
func (s *ReasoningStage) Reason(ctx context.Context, query, contextBlock, modelID string) (reasoning, systemPrompt string, err error) {
	if strings.TrimSpace(query) == "" {
		return "", "", domain.ErrEmptyQuery
	}
	systemPrompt, err = render(tmplReasoning, reasoningPromptData{Context: contextBlock})
	if err != nil {
		return "", "", err
	}

	resp, err := s.caller.complete(ctx, "reasoning", llm.Request{
		ModelID:     modelID,
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: sanitizePromptInput(query)}},
		Temperature: llm.Temperature(s.temperature),
	})
	if err != nil {
		return "", "", fmt.Errorf("reasoning: %w", err)
	}
	slog.DebugContext(ctx, "reasoning generated", "stage", "reasoning", "chars", len(resp.Content), "tokens_out", resp.TokensOut)
	return resp.Content, systemPrompt, nil
}
