/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/reports/*       Report lifecycle, batch commit, validation
  /api/sync/*          Flagged-day apply/remove for approval workflows
  /api/categories      Category registry (read-only)
  /api/special-days    Calendar data (read-only)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Subject", "X-Admin", "X-Edit-Intent"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.GetReport)
			r.Post("/{id}/commit", h.Commit)
			r.Get("/{id}/validation", h.Validation)
			r.Post("/{id}/submit", h.Submit)
			r.Post("/{id}/reopen", h.Reopen)
			r.Post("/{id}/close", h.Close)
			r.Post("/{id}/reset", h.Reset)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/apply", h.SyncApply)
			r.Post("/remove", h.SyncRemove)
		})

		r.Get("/categories", h.ListCategories)
		r.Get("/special-days", h.ListSpecialDays)
	})

	return r
}
