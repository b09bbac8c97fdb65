package web

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes(deps Deps) {
	assetsHandler := NewAssetsHandler(deps.Assets, deps.Store, deps.Matches, s.log)
	scansHandler := NewScansHandler(deps.Runner, deps.Store, s.jobs, s.log)
	matchesHandler := NewMatchesHandler(deps.Matches, s.log)
	alertsHandler := NewAlertsHandler(deps.Alerts, s.log)
	healthHandler := NewHealthHandler(deps.Embedder)

	// Health check (no API key required)
	s.router.Get("/api/v1/health", healthHandler.Get)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RequireAPIKey(s.cfg.Web.APIKey))

			// Protected assets
			r.Post("/assets", assetsHandler.Create)
			r.Get("/assets", assetsHandler.List)
			r.Get("/assets/{id}", assetsHandler.Get)
			r.Get("/assets/{id}/similar", assetsHandler.Similar)
			r.Get("/assets/{id}/matches", assetsHandler.Matches)

			// Scan runs (long-running, tracked by the job manager)
			r.Post("/scans", scansHandler.Start)
			r.Get("/scans", scansHandler.List)
			r.Get("/scans/{jobId}", scansHandler.Status)
			r.Delete("/scans/{jobId}", scansHandler.Cancel)

			// Match records
			r.Get("/matches", matchesHandler.List)
			r.Get("/matches/{id}", matchesHandler.Get)

			// Owner alerts
			r.Get("/alerts", alertsHandler.List)
		})
	})
}
