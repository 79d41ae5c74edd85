package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensurvey/kestrel/internal/analysis"
	"github.com/opensurvey/kestrel/internal/composite"
	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, analyzer *analysis.Analyzer, scorer *composite.Scorer, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, analyzer, scorer, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Session analysis
		r.Post("/analyze", handler.Analyze)

		// Verdict retrieval
		r.Get("/verdicts/{id}", handler.GetVerdict)

		// Session retrieval
		r.Get("/sessions/{id}", handler.GetSession)
		r.Get("/sessions/{id}/fraud", handler.GetSessionFraud)

		// Scoring profile
		r.Get("/profile", handler.GetProfile)

		// Flag rule management
		r.Get("/flag-rules", handler.ListFlagRules)
		r.Get("/flag-rules/{id}", handler.GetFlagRule)
		r.Post("/flag-rules", handler.CreateFlagRule)
		r.Post("/flag-rules/reload", handler.ReloadFlagRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
