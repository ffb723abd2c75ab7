package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/LLManager/internal/logger"
	"github.com/Strob0t/LLManager/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

func dial(t *testing.T, srv *httptest.Server, tenant string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?assistant_id=" + tenant
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func waitForConns(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want %d", h.ConnectionCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast(context.Background(), Message{Type: "test", Payload: []byte(`{"key":"value"}`)})
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub(nil)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, tenantID: "a1"})
}

func TestHandleWSRequiresTenant(t *testing.T) {
	hub := NewHub(nil)
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws", http.NoBody))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBroadcastEventIsTenantScoped(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	mine := dial(t, srv, "a1")
	theirs := dial(t, srv, "a2")
	waitForConns(t, hub, 2)

	ctx := logger.WithTenant(context.Background(), "a1")
	hub.BroadcastEvent(ctx, broadcast.EventReviewPending, ReviewPendingEvent{RunID: "r1", TenantID: "a1"})

	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := mine.Read(rctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != broadcast.EventReviewPending {
		t.Errorf("type = %q", msg.Type)
	}
	var ev ReviewPendingEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.RunID != "r1" {
		t.Errorf("payload = %s", msg.Payload)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelShort()
	if _, _, err := theirs.Read(short); err == nil {
		t.Error("other tenant received the event")
	}
}
