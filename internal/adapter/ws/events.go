package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/LLManager/internal/domain/review"
	"github.com/Strob0t/LLManager/internal/logger"
)

// ReviewPendingEvent announces a run waiting at the review gate.
type ReviewPendingEvent struct {
	RunID     string            `json:"run_id"`
	TenantID  string            `json:"tenant_id"`
	Query     string            `json:"query"`
	Interrupt *review.Interrupt `json:"interrupt"`
}

// RunFinishedEvent announces a completed, ignored or failed run.
type RunFinishedEvent struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id"`
	State    string `json:"state"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BroadcastEvent implements broadcast.Broadcaster. Events are delivered to
// the tenant carried by ctx, or to everyone when ctx has none.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	msg := Message{Type: eventType, Payload: json.RawMessage(data)}
	if tenantID := logger.Tenant(ctx); tenantID != "" {
		h.BroadcastToTenant(ctx, tenantID, msg)
		return
	}
	h.Broadcast(ctx, msg)
}
