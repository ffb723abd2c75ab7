package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ChatMessage is one OpenAI-style message.
type ChatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDefinition declares a function tool.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the function part of a tool definition.
type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolChoice forces a specific function.
type ToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// ForceTool returns a ToolChoice selecting the named function.
func ForceTool(name string) *ToolChoice {
	tc := &ToolChoice{Type: "function"}
	tc.Function.Name = name
	return tc
}

// ToolCall is a function call returned by the model.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ChatCompletionRequest is the body of POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []ChatMessage    `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  *ToolChoice      `json:"tool_choice,omitempty"`
}

// ChatCompletionResponse is the flattened first choice of a completion.
type ChatCompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Model        string
	TokensIn     int
	TokensOut    int
}

type chatCompletionWire struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// ChatCompletion sends a chat completion through the pool and breaker.
func (c *Client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat completion: %w", err)
	}

	var raw []byte
	call := func() error {
		raw, err = c.do(ctx, c.httpClient, http.MethodPost, "/chat/completions", body)
		return err
	}
	err = c.pool.Run(ctx, func() error {
		if c.breaker != nil {
			return c.breaker.Execute(call)
		}
		return call()
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	var wire chatCompletionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal chat completion: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}
	choice := wire.Choices[0]
	return &ChatCompletionResponse{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Model:        wire.Model,
		TokensIn:     wire.Usage.PromptTokens,
		TokensOut:    wire.Usage.CompletionTokens,
	}, nil
}
