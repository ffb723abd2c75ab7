package middleware

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HeaderAPIKey carries a reviewer API key. "Authorization: Bearer <key>" is
// accepted as well.
const HeaderAPIKey = "X-API-Key"

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// APIKeyAuth checks presented keys against bcrypt hashes. Verified keys are
// remembered by their SHA-256 digest so bcrypt runs once per key.
type APIKeyAuth struct {
	mu       sync.RWMutex
	hashes   [][]byte
	verified *sync.Map // [32]byte -> struct{}
}

// NewAPIKeyAuth creates an authenticator for the given bcrypt hashes.
func NewAPIKeyAuth(hashes []string) *APIKeyAuth {
	a := &APIKeyAuth{}
	a.SetHashes(hashes)
	return a
}

// SetHashes replaces the accepted hashes and forgets verified keys, so a
// revoked key stops working immediately.
func (a *APIKeyAuth) SetHashes(hashes []string) {
	parsed := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			parsed = append(parsed, []byte(h))
		}
	}
	a.mu.Lock()
	a.hashes = parsed
	a.verified = &sync.Map{}
	a.mu.Unlock()
}

// Valid reports whether key matches one of the configured hashes.
func (a *APIKeyAuth) Valid(key string) bool {
	if key == "" {
		return false
	}
	a.mu.RLock()
	hashes, verified := a.hashes, a.verified
	a.mu.RUnlock()

	digest := sha256.Sum256([]byte(key))
	if _, ok := verified.Load(digest); ok {
		return true
	}
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			verified.Store(digest, struct{}{})
			return true
		}
	}
	return false
}

// Handler rejects requests without a valid key. Health probes pass through.
func (a *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				key = token
			}
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}
		if !a.Valid(key) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HashAPIKey returns the bcrypt hash to configure for key.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
