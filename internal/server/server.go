// Package server implements the HTTP server for the application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/server/handler"
)

// QuotaService is the quota gate as seen by the HTTP layer.
type QuotaService interface {
	handler.QuotaReader
	handler.QuotaAdmin
}

// Services bundles the components the routes call into.
type Services struct {
	Reviews    handler.ReviewService
	Quota      QuotaService
	Usage      handler.UsageReporter
	Dispatcher core.BatchDispatcher
}

// Server wraps an HTTP server with graceful shutdown capabilities.
type Server struct {
	ctx      context.Context
	server   *http.Server
	throttle *ClientThrottle
	logger   *slog.Logger
}

// NewServer creates the HTTP server. WriteTimeout leaves room for a full
// model call on the review endpoint.
func NewServer(ctx context.Context, cfg *config.Config, svc Services, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	throttle := NewClientThrottle(cfg.Server.ClientRPS, cfg.Server.ClientBurst)
	router := NewRouter(cfg, svc, throttle, gatherer, logger)

	return &Server{
		ctx: ctx,
		server: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.AI.RequestTimeout + 20*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		throttle: throttle,
		logger:   logger,
	}
}

// Start starts the HTTP server and blocks until shutdown or error.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)
	s.throttle.StartJanitor(s.ctx, 2*time.Minute)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server with a 30-second timeout.
func (s *Server) Stop() error {
	s.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
