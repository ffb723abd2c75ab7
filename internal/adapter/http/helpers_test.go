package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/LLManager/internal/domain"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("load run x: %w", domain.ErrNotFound), http.StatusNotFound, "run not found"},
		{"conflict", domain.ErrConflict, http.StatusConflict, domain.ErrConflict.Error()},
		{"missing tenant", domain.ErrMissingTenant, http.StatusBadRequest, "no assistant id provided"},
		{"empty query", domain.ErrEmptyQuery, http.StatusBadRequest, "no query found"},
		{"validation", fmt.Errorf("query exceeds 10 bytes: %w", domain.ErrValidation), http.StatusBadRequest, "query exceeds 10 bytes"},
		{"human response", fmt.Errorf("bad: %w", domain.ErrInvalidHumanResponse), http.StatusUnprocessableEntity, "bad: invalid human response"},
		{"schema", fmt.Errorf("decision: %w", domain.ErrSchemaValidation), http.StatusBadGateway, "model stage failed: " + domain.ErrSchemaValidation.Error()},
		{"no reflection", domain.ErrNoReflectionGenerated, http.StatusBadGateway, "model stage failed: " + domain.ErrNoReflectionGenerated.Error()},
		{"store", domain.ErrStoreUnavailable, http.StatusServiceUnavailable, domain.ErrStoreUnavailable.Error()},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDomainError(w, tt.err, "run not found")
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body errorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tt.message {
				t.Errorf("message = %q, want %q", body.Error, tt.message)
			}
		})
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 7},
		{"3", 3},
		{"0", 0},
		{"-1", 7},
		{"abc", 7},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?limit="+tt.raw, http.NoBody)
		if got := queryInt(r, "limit", 7); got != tt.want {
			t.Errorf("queryInt(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
