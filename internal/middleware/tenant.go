package middleware

import (
	"net/http"

	"github.com/Strob0t/LLManager/internal/domain"
	"github.com/Strob0t/LLManager/internal/logger"
)

// HeaderAssistantID names the tenant. Every memory namespace is keyed by it.
const HeaderAssistantID = "X-Assistant-ID"

// Tenant requires X-Assistant-ID and stores it in the context. There is no
// default tenant: a missing header is rejected with 400.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get(HeaderAssistantID)
		if tid == "" {
			writeError(w, http.StatusBadRequest, domain.ErrMissingTenant.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(logger.WithTenant(r.Context(), tid)))
	})
}

// writeError writes a JSON error body. Messages are fixed strings, so no
// encoder is needed.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
