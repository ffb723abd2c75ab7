package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/LLManager/internal/logger"
	"github.com/Strob0t/LLManager/internal/middleware"
)

func TestTenantFromHeader(t *testing.T) {
	var got string
	handler := middleware.Tenant(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = logger.Tenant(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(middleware.HeaderAssistantID, "assistant-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "assistant-abc" {
		t.Fatalf("expected assistant-abc, got %q", got)
	}
}

func TestTenantMissingIsRejected(t *testing.T) {
	called := false
	handler := middleware.Tenant(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if called {
		t.Fatal("next handler ran without a tenant")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no assistant id provided") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
