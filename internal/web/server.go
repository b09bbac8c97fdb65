// Package web serves the HTTP API: asset registration, scan trigger and
// status, match and alert listing, health.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/photo-sentry/internal/assets"
	"github.com/kozaktomas/photo-sentry/internal/config"
	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
	jobs       *JobManager
	log        *logging.Logger
}

// Deps carries the services the API exposes. Runner and Embedder are small
// interfaces so tests can fake them; the rest are the store interfaces and
// the intake service.
type Deps struct {
	Assets   *assets.Service
	Runner   ScanRunner
	Store    store.AssetStore
	Matches  store.MatchStore
	Alerts   store.AlertStore
	Embedder HealthChecker
	Log      *logging.Logger
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, host string, port int, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		cfg:    cfg,
		router: r,
		jobs:   NewJobManager(),
		log:    deps.Log,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
