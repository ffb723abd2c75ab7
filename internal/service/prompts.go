package service

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/Strob0t/LLManager/internal/domain/decision"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// prompts holds every stage prompt. Partials are shared through partials.tmpl.
var prompts = template.Must(template.New("prompts").ParseFS(templateFS, "templates/*.tmpl"))

const (
	tmplReasoning             = "reasoning_system.tmpl"
	tmplDecision              = "decision.tmpl"
	tmplExplanationReflection = "explanation_reflection.tmpl"
	tmplFullReflection        = "full_reflection.tmpl"
	tmplExtractReflections    = "extract_reflections.tmpl"
)

// noneProvided stands in for an absent criterion.
const noneProvided = "None provided."

type reasoningPromptData struct {
	Context string
}

type decisionPromptData struct {
	Context   string
	Reasoning string
	Request   string
}

// reflectionPromptData feeds the reflection and extraction prompts.
type reflectionPromptData struct {
	Original    decision.Decision
	Edited      decision.Decision
	Reasoning   string
	Reflections []string
	Summary     string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// FormatContext renders examples, reflections and criteria into the tagged
// context block embedded into the reasoning prompt. Empty lists render as
// empty sections.
func FormatContext(examples []decision.Example, reflections []string, criteria decision.Criteria) string {
	var b strings.Builder

	b.WriteString("<all-examples>\n")
	for i, ex := range examples {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(`<example index="` + strconv.Itoa(i) + `">` + "\n")
		b.WriteString("  Request: " + sanitizePromptInput(ex.Input) + "\n\n")
		b.WriteString("  Explanation: " + sanitizePromptInput(ex.Explanation) + "\n\n")
		b.WriteString("  Final Answer: " + string(ex.Answer) + "\n")
		b.WriteString("</example>")
	}
	b.WriteString("</all-examples>\n\n")

	b.WriteString("<reflections>\n")
	for i, r := range reflections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + r)
	}
	b.WriteString("</reflections>\n\n")

	b.WriteString("<approval-criteria>\n" + orNone(criteria.ApprovalCriteria) + "</approval-criteria>\n\n")
	b.WriteString("<rejection-criteria>\n" + orNone(criteria.RejectionCriteria) + "</rejection-criteria>")
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return noneProvided
	}
	return sanitizePromptInput(s)
}

// roleMarkers are line prefixes that could pass user text off as a new
// conversation turn.
var roleMarkers = []string{
	"system:", "assistant:", "user:", "human:", "[system]", "[assistant]",
	"<|system|>", "<|assistant|>", "<|im_start|>",
	"### system", "### assistant", "### instruction",
}

// sanitizePromptInput strips control characters and defuses role markers at
// line starts. It never shortens the text: length is bounded where input
// enters the service (limits.max_query_length, max_request_body_bytes).
func sanitizePromptInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.ToLower(line))
		for _, prefix := range roleMarkers {
			if strings.HasPrefix(trimmed, prefix) {
				lines[i] = "[sanitized] " + line
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
