package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/domain/review"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
	"github.com/Strob0t/LLManager/internal/middleware"
)

// fakeServer serves the review endpoints the client commands use.
type fakeServer struct {
	mu      sync.Mutex
	pending []workflow.Run
	resumed map[string]review.Response
	tenants []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = append(f.tenants, r.Header.Get(middleware.HeaderAssistantID))
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/reviews":
		_ = json.NewEncoder(w).Encode(f.pending)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/resume"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/resume")
		var resp review.Response
		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		f.resumed[id] = resp
		_ = json.NewEncoder(w).Encode(workflow.Run{ID: id, State: workflow.StateCompleted})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"run not found"}`))
	}
}

func newFakeServer(t *testing.T, runs ...workflow.Run) (*fakeServer, *apiClient) {
	t.Helper()
	f := &fakeServer{pending: runs, resumed: make(map[string]review.Response)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, &apiClient{base: srv.URL, tenantID: "acme", http: srv.Client()}
}

func pendingRun(id string, status decision.Status) workflow.Run {
	d := decision.Decision{Status: status, Explanation: "because"}
	in := review.NewInterrupt("Buy a desk", d)
	return workflow.Run{ID: id, State: workflow.StateAwaitingReview, Query: "Buy a desk", Proposed: &d, Interrupt: &in}
}

func TestDispatchUnknownCommand(t *testing.T) {
	if err := dispatch([]string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := dispatch([]string{"help"}); err != nil {
		t.Fatalf("help: %v", err)
	}
}

func TestReviewLoop(t *testing.T) {
	f, c := newFakeServer(t, pendingRun("run-1", decision.StatusApproved), pendingRun("run-2", decision.StatusApproved))

	in := strings.NewReader("e\nrejected\nToo expensive.\nbogus\na\n")
	var out bytes.Buffer
	if err := reviewLoop(context.Background(), c, "", in, &out); err != nil {
		t.Fatal(err)
	}

	edit := f.resumed["run-1"]
	if edit.Type != review.ResponseEdit || edit.Args == nil ||
		edit.Args.Status != decision.StatusRejected || edit.Args.Explanation != "Too expensive." {
		t.Errorf("run-1 response = %+v", edit)
	}
	if f.resumed["run-2"].Type != review.ResponseAccept {
		t.Errorf("run-2 response = %+v", f.resumed["run-2"])
	}
	if !strings.Contains(out.String(), "# Approval Request") {
		t.Error("interrupt description not printed")
	}
	for _, tid := range f.tenants {
		if tid != "acme" {
			t.Errorf("tenant header = %q", tid)
		}
	}
}

func TestReviewLoopEditKeepsStatusAndSkips(t *testing.T) {
	f, c := newFakeServer(t, pendingRun("run-1", decision.StatusRejected), pendingRun("run-2", decision.StatusApproved))

	in := strings.NewReader("edit\n\nOver the limit.\ns\n")
	if err := reviewLoop(context.Background(), c, "", in, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if got := f.resumed["run-1"]; got.Args == nil || got.Args.Status != decision.StatusRejected {
		t.Errorf("empty status should keep the proposal: %+v", got)
	}
	if _, ok := f.resumed["run-2"]; ok {
		t.Error("skipped run was resolved")
	}
}

func TestReviewLoopQuitAndFilter(t *testing.T) {
	f, c := newFakeServer(t, pendingRun("run-1", decision.StatusApproved), pendingRun("run-2", decision.StatusApproved))

	if err := reviewLoop(context.Background(), c, "run-2", strings.NewReader("i\n"), &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.resumed["run-1"]; ok {
		t.Error("filtered run was resolved")
	}
	if f.resumed["run-2"].Type != review.ResponseIgnore {
		t.Errorf("run-2 response = %+v", f.resumed["run-2"])
	}

	f2, c2 := newFakeServer(t, pendingRun("run-3", decision.StatusApproved))
	if err := reviewLoop(context.Background(), c2, "", strings.NewReader("q\n"), &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if len(f2.resumed) != 0 {
		t.Errorf("quit resolved runs: %v", f2.resumed)
	}
}

func TestAPIClientError(t *testing.T) {
	_, c := newFakeServer(t)
	err := c.do(context.Background(), http.MethodGet, "/api/v1/runs/missing", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "run not found") {
		t.Errorf("err = %v", err)
	}
}

func TestPrintPending(t *testing.T) {
	var out bytes.Buffer
	if err := printPending(&out, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No pending reviews.") {
		t.Errorf("empty output = %q", out.String())
	}

	out.Reset()
	if err := printPending(&out, []workflow.Run{pendingRun("run-9", decision.StatusRejected)}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"RUN_ID", "run-9", "rejected", "Buy a desk"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("line one\nline two", 10); got != "line on..." {
		t.Errorf("got %q", got)
	}
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:3000", "localhost:3000"},
		{"https://review.example.com", "review.example.com"},
		{"*", "*"},
		{"", "*"},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			got := originPatterns(tt.origin)
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("originPatterns(%q) = %v, want %s", tt.origin, got, tt.want)
			}
		})
	}
}
