package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/LLManager/internal/middleware"
)

// MountRoutes registers the decision API on r. Every route except /models
// requires the X-Assistant-ID tenant header. idempotent wraps the POST
// routes and may be nil.
func MountRoutes(r chi.Router, h *Handlers, idempotent func(http.Handler) http.Handler) {
	if idempotent == nil {
		idempotent = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})
		r.Get("/models", h.ListModels)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Tenant)

			// Runs
			r.With(idempotent).Post("/runs", h.StartRun)
			r.Get("/runs/{id}", h.GetRun)
			r.With(idempotent).Post("/runs/{id}/resume", h.ResumeRun)

			// Review queue
			r.Get("/reviews", h.ListReviews)

			// Memory
			r.Get("/examples", h.ListExamples)
			r.Get("/reflections", h.ListReflections)
		})
	})
}
