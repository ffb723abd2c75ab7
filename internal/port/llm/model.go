// Package llm defines the model invocation port.
package llm

import (
	"context"
	"encoding/json"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single model invocation. An empty ModelID selects the configured default.
type Request struct {
	ModelID     string
	System      string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Response is a text completion.
type Response struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
}

// Tool describes a structured output the model is forced to produce.
// Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Model sends prompts to a language model.
type Model interface {
	// Complete returns free text.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteStructured forces tool and returns its raw arguments, or
	// domain.ErrNoStructuredResult when the model did not call it.
	CompleteStructured(ctx context.Context, req Request, tool Tool) (json.RawMessage, error)
}

// Temperature returns a pointer to t for Request.Temperature.
func Temperature(t float64) *float64 { return &t }
