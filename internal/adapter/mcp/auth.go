package mcp

import (
	"net/http"
	"strings"
)

// AuthMiddleware wraps next and validates the Authorization header, either
// "Bearer <key>" or the bare key. A nil authorize passes every request
// through.
func AuthMiddleware(authorize func(key string) bool, next http.Handler) http.Handler {
	if authorize == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if !authorize(token) {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
