// Package server sets up the HTTP server, router, and all route definitions.
//
// It is the wiring layer: which URL patterns map to which handlers, what
// middleware runs, the background janitor, and graceful shutdown.
// main.go builds the store, the GitHub client and the WorldService and
// hands them in.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/profileworld/internal/handler"
	"github.com/sakif/profileworld/internal/metrics"
	"github.com/sakif/profileworld/internal/middleware"
	"github.com/sakif/profileworld/internal/service"
)

const (
	shutdownTimeout = 30 * time.Second
	// floor for WriteTimeout; generation can spend a while on GitHub
	// before it writes anything
	minWriteTimeout = 90 * time.Second
	// room left after the upstream budget for enrichment, commit and encoding
	writeTimeoutSlack = 15 * time.Second
)

type Config struct {
	Addr string
	// GenerateBudget is the longest a generate request may wait on GitHub.
	// WriteTimeout never drops below it.
	GenerateBudget time.Duration
	// PurgeInterval of zero disables the janitor.
	PurgeInterval  time.Duration
	PurgeRetention time.Duration
}

type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	worlds  *service.WorldService
	metrics *metrics.Metrics
}

func New(cfg Config, worlds *service.WorldService, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		worlds:  worlds,
		metrics: m,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures middleware and routes.
//
//	POST /api/world/generate   → create or reuse a World
//	GET  /api/world/{id}       → full World graph
//	GET  /api/world/{id}/share → graph + share token, 403 if inactive
//	GET  /healthz              → store liveness
//	GET  /metrics              → Prometheus exposition
//
// Middleware runs in the order it is added.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	worldHandler := handler.NewWorldHandler(s.worlds, s.logger)

	s.router.Get("/healthz", worldHandler.HandleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/world", func(r chi.Router) {
		r.Post("/generate", worldHandler.HandleGenerate)
		r.Get("/{id}", worldHandler.HandleGet)
		r.Get("/{id}/share", worldHandler.HandleShare)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until SIGINT/SIGTERM, then drains in-flight requests
// and stops the janitor.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.writeTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runJanitor(janitorCtx)
	}()
	defer func() {
		stopJanitor()
		wg.Wait()
	}()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) writeTimeout() time.Duration {
	return max(minWriteTimeout, s.config.GenerateBudget+writeTimeoutSlack)
}

// runJanitor purges long-expired Worlds every PurgeInterval until ctx is done.
func (s *Server) runJanitor(ctx context.Context) {
	interval := s.config.PurgeInterval
	if interval <= 0 {
		s.logger.Info("janitor disabled")
		return
	}

	s.logger.Info("janitor started",
		slog.Duration("interval", interval),
		slog.Duration("retention", s.config.PurgeRetention),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.purgeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			s.purgeOnce(ctx)
		}
	}
}

func (s *Server) purgeOnce(ctx context.Context) {
	if _, err := s.worlds.PurgeExpired(ctx, s.config.PurgeRetention); err != nil && ctx.Err() == nil {
		s.logger.Warn("janitor purge failed", slog.String("error", err.Error()))
	}
}
