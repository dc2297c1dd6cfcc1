// Package api serves the operator UI and its JSON endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/pagesend/internal/api/static"
	"github.com/foxzi/pagesend/internal/config"
	"github.com/foxzi/pagesend/internal/directory"
	"github.com/foxzi/pagesend/internal/dispatch"
	"github.com/foxzi/pagesend/internal/mail"
	"github.com/foxzi/pagesend/internal/matcher"
	"github.com/foxzi/pagesend/internal/metrics"
	"github.com/foxzi/pagesend/internal/session"
)

// Deps are the services behind the HTTP surface
type Deps struct {
	Directory *directory.Directory
	Resolver  *matcher.Resolver
	Sessions  *session.Store
	Engine    *dispatch.Engine
	Sandbox   *mail.SandboxStore // nil unless mail.mode is sandbox
	Metrics   *metrics.Metrics   // nil when metrics are disabled
	Version   string
}

// Server is the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.Config
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	// Health check and metrics (no auth required)
	s.router.Get("/health", s.handleHealth)
	if s.config.Metrics.Enabled && s.deps.Metrics != nil {
		s.router.Handle(s.config.Metrics.Path, metrics.Handler(s.deps.Metrics, s.config.Metrics.AllowedIPs, s.logger))
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/terceros", s.handleListRecipients)
			r.Post("/terceros", s.handleSaveRecipient)
			r.Delete("/terceros/{id}", s.handleDeleteRecipient)

			r.Post("/upload-pdf", s.handleUpload)
			r.Post("/send", s.handleSend)
			r.Post("/reimport-excel", s.handleReimport)

			if s.deps.Sandbox != nil {
				NewSandboxServer(s.deps.Sandbox).RegisterRoutes(r)
			}
		})

		r.Handle("/*", static.Handler())
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
