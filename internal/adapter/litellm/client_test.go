package litellm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/LLManager/internal/adapter/litellm"
	"github.com/Strob0t/LLManager/internal/resilience"
)

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/model/info" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("unexpected auth: %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string][]litellm.ModelInfo{
			"data": {
				{ModelName: "anthropic/claude-3-7-sonnet-latest", Provider: "anthropic"},
				{ModelName: "gpt-4o", Provider: "openai"},
			},
		})
	}))
	defer srv.Close()

	models, err := litellm.NewClient(srv.URL, "test-key").ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[1].ModelName != "gpt-4o" {
		t.Fatalf("unexpected models %+v", models)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health/liveliness":
			_, _ = w.Write([]byte(`"I'm alive!"`))
		case "/health":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"healthy_endpoints":   []map[string]string{{"model": "gpt-4o", "api_base": "https://api.openai.com"}},
				"unhealthy_endpoints": []map[string]string{{"model": "ollama/llama3.2", "error": "ConnectionError"}},
				"healthy_count":       1,
				"unhealthy_count":     1,
			})
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := litellm.NewClient(srv.URL, "")
	healthy, err := client.Health(context.Background())
	if err != nil || !healthy {
		t.Fatalf("expected healthy, got %v %v", healthy, err)
	}

	report, err := client.HealthDetailed(context.Background())
	if err != nil {
		t.Fatalf("HealthDetailed failed: %v", err)
	}
	if report.UnhealthyCount != 1 || report.UnhealthyEndpoints[0].Error != "ConnectionError" {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestHealthUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	healthy, err := litellm.NewClient(srv.URL, "").Health(context.Background())
	if healthy {
		t.Fatal("expected unhealthy")
	}
	var apiErr *litellm.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected APIError 503, got %v", err)
	}
}

func TestChatCompletionBreakerIgnoresClientErrors(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer srv.Close()

	client := litellm.NewClient(srv.URL, "")
	client.SetBreaker(resilience.NewBreaker(1, time.Minute))
	client.SetPool(resilience.NewPool(2))
	req := litellm.ChatCompletionRequest{Model: "m", Messages: []litellm.ChatMessage{{Role: "user", Content: "hi"}}}

	for range 3 {
		_, _ = client.ChatCompletion(context.Background(), req)
	}
	if client.BreakerState() != "closed" {
		t.Fatalf("4xx must not open the breaker, got %s", client.BreakerState())
	}

	status = http.StatusBadGateway
	_, _ = client.ChatCompletion(context.Background(), req)
	if client.BreakerState() != "open" {
		t.Fatalf("5xx must open the breaker, got %s", client.BreakerState())
	}
	if _, err := client.ChatCompletion(context.Background(), req); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestKeySourceRotation(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	key := "first"
	c := litellm.NewClient(srv.URL, "static")
	c.SetKeySource(func() string { return key })

	for _, k := range []string{"first", "second"} {
		key = k
		if _, err := c.ListModels(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 2 || seen[0] != "Bearer first" || seen[1] != "Bearer second" {
		t.Errorf("authorization headers = %v", seen)
	}
}
