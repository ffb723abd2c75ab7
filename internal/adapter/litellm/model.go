package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/port/llm"
)

// Model adapts the client to the llm.Model port.
type Model struct {
	client       *Client
	defaultModel string
}

// NewModel returns an llm.Model that falls back to defaultModel when a request names none.
func NewModel(client *Client, defaultModel string) *Model {
	return &Model{client: client, defaultModel: defaultModel}
}

var _ llm.Model = (*Model)(nil)

func (m *Model) build(req llm.Request) ChatCompletionRequest {
	modelID := req.ModelID
	if modelID == "" {
		modelID = m.defaultModel
	}
	msgs := make([]ChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, ChatMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		msgs = append(msgs, ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return ChatCompletionRequest{
		Model:       modelID,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// Complete implements llm.Model.
func (m *Model) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := m.client.ChatCompletion(ctx, m.build(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelInvocation, err)
	}
	slog.DebugContext(ctx, "model completion", "model", resp.Model, "tokens_in", resp.TokensIn, "tokens_out", resp.TokensOut)
	return &llm.Response{
		Content:   resp.Content,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
	}, nil
}

// CompleteStructured implements llm.Model by forcing a single function tool.
func (m *Model) CompleteStructured(ctx context.Context, req llm.Request, tool llm.Tool) (json.RawMessage, error) {
	creq := m.build(req)
	creq.Tools = []ToolDefinition{{
		Type: "function",
		Function: FunctionSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		},
	}}
	creq.ToolChoice = ForceTool(tool.Name)

	resp, err := m.client.ChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelInvocation, err)
	}
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name != tool.Name {
			continue
		}
		if !json.Valid([]byte(tc.Function.Arguments)) {
			return nil, fmt.Errorf("tool %s arguments are not JSON: %w", tool.Name, domain.ErrSchemaValidation)
		}
		slog.DebugContext(ctx, "model structured completion", "model", resp.Model, "tool", tool.Name,
			"tokens_in", resp.TokensIn, "tokens_out", resp.TokensOut)
		return json.RawMessage(tc.Function.Arguments), nil
	}
	return nil, fmt.Errorf("model did not call %s (finish_reason=%s): %w", tool.Name, resp.FinishReason, domain.ErrNoStructuredResult)
}
