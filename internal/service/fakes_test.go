package service_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/port/llm"
	"github.com/Strob0t/LLManager/internal/port/messagequeue"
)

// fakeModel answers by call shape: a system prompt means reasoning, a bare
// completion means a reflection summary, and structured calls are keyed by
// tool name.
type fakeModel struct {
	mu         sync.Mutex
	reasoning  string
	summary    string
	structured map[string]string
	err        error
	requests   []llm.Request
	tools      []string
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		reasoning: "The purchase is small and work related.",
		summary:   "I overlooked the rejection criteria on gifts.",
		structured: map[string]string{
			"finalAnswer":          `{"status":"approved","explanation":"Within budget and work related."}`,
			"generate_reflections": `{"reflections":["Check gift rules before approving purchases."]}`,
		},
	}
}

func (m *fakeModel) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if req.System != "" {
		return &llm.Response{Content: m.reasoning}, nil
	}
	return &llm.Response{Content: m.summary}, nil
}

func (m *fakeModel) CompleteStructured(_ context.Context, req llm.Request, tool llm.Tool) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.tools = append(m.tools, tool.Name)
	if m.err != nil {
		return nil, m.err
	}
	raw, ok := m.structured[tool.Name]
	if !ok {
		return nil, domain.ErrNoStructuredResult
	}
	return json.RawMessage(raw), nil
}

func (m *fakeModel) setStructured(tool, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structured[tool] = raw
}

func (m *fakeModel) lastRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func (m *fakeModel) systemPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.requests {
		if r.System != "" {
			out = append(out, r.System)
		}
	}
	return out
}

type published struct {
	subject string
	data    []byte
}

// fakeQueue records publishes and keeps subscribed handlers for direct delivery.
type fakeQueue struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: make(map[string]messagequeue.Handler)}
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, published{subject: subject, data: data})
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = handler
	return func() {}, nil
}

func (q *fakeQueue) deliver(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	h := q.handlers[subject]
	q.mu.Unlock()
	return h(ctx, subject, data)
}

func (q *fakeQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.messages))
	for i, m := range q.messages {
		out[i] = m.subject
	}
	return out
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

type fakeHub struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}
