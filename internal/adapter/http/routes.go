package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Decisions
		r.Post("/decisions", h.DecideCase)
		r.Get("/decisions/{id}", h.GetDecision)

		// Precedents
		r.Get("/precedents/{fingerprint}", h.LookupPrecedents)

		// Critic registry
		r.Get("/critics", h.ListCritics)

		// Operations
		r.Post("/config/reload", h.ReloadConfig)
		r.Post("/cache/invalidate", h.InvalidateCache)
	})
}
