package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/LLManager/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Notifier = (*Notifier)(nil)

func pendingNotification() notifier.Notification {
	return notifier.Notification{
		Event:    "review.pending",
		TenantID: "acme",
		RunID:    "run-1",
		Title:    "Review needed: approved",
		Message:  "Buy a standing desk",
		Level:    notifier.LevelInfo,
	}
}

func TestSendNotConfigured(t *testing.T) {
	err := NewNotifier("").Send(context.Background(), pendingNotification())
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendSuccess(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if err := NewNotifier(srv.URL).Send(context.Background(), pendingNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(got.Blocks))
	}
	if got.Blocks[0].Text.Text != "[REVIEW] Review needed: approved" {
		t.Errorf("header = %q", got.Blocks[0].Text.Text)
	}
	if ctx := got.Blocks[2].Elements[0].Text; !strings.Contains(ctx, "`acme`") || !strings.Contains(ctx, "`run-1`") {
		t.Errorf("context = %q", ctx)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("invalid_payload"))
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL).Send(context.Background(), pendingNotification())
	if err == nil || !strings.Contains(err.Error(), "invalid_payload") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestRegistered(t *testing.T) {
	n, err := notifier.New("slack", "https://hooks.slack.invalid/x")
	if err != nil {
		t.Fatal(err)
	}
	if n.Name() != "slack" {
		t.Errorf("name = %q", n.Name())
	}
}
