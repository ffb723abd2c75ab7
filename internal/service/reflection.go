package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/port/llm"
)

// Correction is a reviewer edit handed to reflection.
type Correction struct {
	Original   decision.Decision
	Edited     decision.Decision
	Reasoning  string
	ChangeType decision.ChangeType
	ModelID    string
}

// Route names a reflection generator.
type Route string

const (
	RouteExplanation Route = "explanation_reflection"
	RouteFull        Route = "full_reflection"
)

// RouteReflection picks the generator for a change type.
func RouteReflection(ct decision.ChangeType) (Route, error) {
	switch ct {
	case decision.ChangeExplanation:
		return RouteExplanation, nil
	case decision.ChangeAll:
		return RouteFull, nil
	default:
		return "", fmt.Errorf("change type %q: %w", ct, domain.ErrInvalidChangeType)
	}
}

// generateReflectionsTool forces the extraction output shape.
var generateReflectionsTool = llm.Tool{
	Name:        "generate_reflections",
	Description: "Generate new reflections (or a single reflection) on your mistake, which you can use in future decision-making to avoid the mistake you made in this instance.",
	Parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "reflections": {
      "type": "array",
      "items": {"type": "string"},
      "description": "New reflections on your mistake. You can generate a single reflection, or multiple reflections if you failed in multiple ways."
    }
  },
  "required": ["reflections"],
  "additionalProperties": false
}`),
}

// ReflectionService turns a correction into new lessons in reflection memory.
type ReflectionService struct {
	caller    modelCaller
	store     *ReflectionStore
	maxTokens int
}

// NewReflectionService creates the service. maxTokens bounds the summary
// generators; extraction runs at temperature 0.
func NewReflectionService(model llm.Model, store *ReflectionStore, maxTokens int) *ReflectionService {
	return &ReflectionService{caller: modelCaller{model: model}, store: store, maxTokens: maxTokens}
}

// Reflect routes c to its generator and returns the reflection summary.
func (s *ReflectionService) Reflect(ctx context.Context, tenantID string, c Correction) (string, error) {
	route, err := RouteReflection(c.ChangeType)
	if err != nil {
		return "", err
	}
	prior, err := s.store.List(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("reflect: %w", err)
	}

	tmpl := tmplFullReflection
	if route == RouteExplanation {
		tmpl = tmplExplanationReflection
	}
	prompt, err := render(tmpl, reflectionPromptData{
		Original:    c.Original,
		Edited:      sanitizedDecision(c.Edited),
		Reasoning:   c.Reasoning,
		Reflections: prior,
	})
	if err != nil {
		return "", err
	}

	resp, err := s.caller.complete(ctx, string(route), llm.Request{
		ModelID:   c.ModelID,
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", route, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%s returned an empty summary: %w", route, domain.ErrNoReflectionGenerated)
	}
	slog.InfoContext(ctx, "reflection summary generated", "stage", route, "chars", len(resp.Content))
	return resp.Content, nil
}

// Extract pulls discrete lessons out of summary and appends the new ones to
// the tenant's reflections. Zero new lessons is ErrNoReflectionGenerated.
func (s *ReflectionService) Extract(ctx context.Context, tenantID string, c Correction, summary string) ([]string, error) {
	prior, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("extract reflections: %w", err)
	}
	prompt, err := render(tmplExtractReflections, reflectionPromptData{
		Original:    c.Original,
		Edited:      sanitizedDecision(c.Edited),
		Reflections: prior,
		Summary:     summary,
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.caller.structured(ctx, "extract_reflections", llm.Request{
		ModelID:     c.ModelID,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: llm.Temperature(0),
	}, generateReflectionsTool)
	if err != nil {
		return nil, fmt.Errorf("extract reflections: %w", err)
	}
	lessons, err := parseLessons(raw)
	if err != nil {
		return nil, err
	}

	added, err := s.store.Append(ctx, tenantID, lessons)
	if err != nil {
		return nil, fmt.Errorf("extract reflections: %w", err)
	}
	if len(added) == 0 {
		return nil, fmt.Errorf("all %d extracted lessons already exist: %w", len(lessons), domain.ErrNoReflectionGenerated)
	}
	slog.InfoContext(ctx, "reflections added", "stage", "extract_reflections", "added", len(added), "total", len(prior)+len(added))
	return added, nil
}

type lessonsArgs struct {
	Reflections []string `json:"reflections"`
}

func parseLessons(raw json.RawMessage) ([]string, error) {
	var args lessonsArgs
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("decode generate_reflections arguments: %v: %w", err, domain.ErrSchemaValidation)
	}
	var out []string
	for _, l := range args.Reflections {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no new reflections generated: %w", domain.ErrNoReflectionGenerated)
	}
	return out, nil
}

// sanitizedDecision cleans reviewer-typed text before it enters a prompt.
func sanitizedDecision(d decision.Decision) decision.Decision {
	d.Explanation = sanitizePromptInput(d.Explanation)
	return d
}
