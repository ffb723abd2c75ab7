package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/port/llm"
)

// finalAnswerTool forces the model to return exactly {status, explanation}.
var finalAnswerTool = llm.Tool{
	Name:        "finalAnswer",
	Description: "The explanation behind your final decision, along with the final decision itself.",
	Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "explanation": {
      "type": "string",
      "description": "The explanation for your final decision. Ensure this is detailed, and clear. It should cover everything you considered when making your final decision."
    },
    "status": {
      "type": "string",
      "enum": ["approved", "rejected"],
      "description": "The final decision. This should be either 'approved' or 'rejected'."
    }
  },
  "required": ["explanation", "status"],
  "additionalProperties": false
}`),
}

// DecisionStage turns the reasoning report into a structured decision.
type DecisionStage struct {
	caller      modelCaller
	temperature float64
	maxTokens   int
}

// NewDecisionStage creates the stage.
func NewDecisionStage(model llm.Model, temperature float64, maxTokens int) *DecisionStage {
	return &DecisionStage{caller: modelCaller{model: model}, temperature: temperature, maxTokens: maxTokens}
}

// Decide asks for the finalAnswer tool and validates its arguments.
func (s *DecisionStage) Decide(ctx context.Context, promptContext, reasoning, query, modelID string) (decision.Decision, error) {
	prompt, err := render(tmplDecision, decisionPromptData{
		Context:   promptContext,
		Reasoning: reasoning,
		Request:   sanitizePromptInput(query),
	})
	if err != nil {
		return decision.Decision{}, err
	}

	raw, err := s.caller.structured(ctx, "decision", llm.Request{
		ModelID:     modelID,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: llm.Temperature(s.temperature),
		MaxTokens:   s.maxTokens,
	}, finalAnswerTool)
	if err != nil {
		return decision.Decision{}, fmt.Errorf("decision: %w", err)
	}
	return parseDecision(raw)
}

// parseDecision decodes strictly: unknown fields, a bad status or an empty
// explanation are schema violations.
func parseDecision(raw json.RawMessage) (decision.Decision, error) {
	var d decision.Decision
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return decision.Decision{}, fmt.Errorf("decode finalAnswer arguments: %v: %w", err, domain.ErrSchemaValidation)
	}
	if err := d.Validate(); err != nil {
		return decision.Decision{}, fmt.Errorf("finalAnswer arguments: %v: %w", err, domain.ErrSchemaValidation)
	}
	return d, nil
}
