package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/labshot/labshot/internal/app/compose"
	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/app/submit"
	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/log"
)

// ServerConfig is the configuration of Server.
type ServerConfig struct {
	Submit  *submit.Service
	Status  *status.Service
	Compose *compose.Service
	Store   *artifact.Store
	Logger  log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.Submit == nil {
		return fmt.Errorf("submit service is required")
	}
	if c.Status == nil {
		return fmt.Errorf("status service is required")
	}
	if c.Compose == nil {
		return fmt.Errorf("compose service is required")
	}
	if c.Store == nil {
		return fmt.Errorf("artifact store is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.Server"})
	return nil
}

// Server is the HTTP API of the service.
type Server struct {
	submit  *submit.Service
	status  *status.Service
	compose *compose.Service
	store   *artifact.Store
	router  chi.Router
	http    *http.Server
	logger  log.Logger
}

// New creates a new Server.
func New(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		submit:  cfg.Submit,
		status:  cfg.Status,
		compose: cfg.Compose,
		store:   cfg.Store,
		router:  chi.NewRouter(),
		logger:  cfg.Logger,
	}
	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Post("/batches", s.handleSubmitBatch)
		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{id}", s.handleGetBatch)
		r.Post("/batches/{id}/cancel", s.handleCancelBatch)
		r.Post("/batches/{id}/compose", s.handleComposeBatch)

		// No JSON content-type, artifacts are raw bytes.
		r.Get("/artifacts/*", s.handleGetArtifact)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts listening on the given address and blocks until the
// server stops.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Infof("HTTP server listening on %s", addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
