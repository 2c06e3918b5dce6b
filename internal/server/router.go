package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/server/handler"
)

// NewRouter creates and configures the HTTP router with middleware and API routes.
func NewRouter(cfg *config.Config, svc Services, throttle *ClientThrottle, gatherer prometheus.Gatherer, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Review requests wait on the model; leave room above its timeout.
	r.Use(middleware.Timeout(cfg.AI.RequestTimeout + 15*time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	reviews := handler.NewReviewHandler(svc.Reviews, svc.Quota, logger)
	admin := handler.NewAdminHandler(svc.Quota, svc.Usage, svc.Dispatcher, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/submissions", reviews.Create)
		r.Get("/submissions/{id}", reviews.Get)
		r.With(throttle.Middleware).Post("/submissions/{id}/review", reviews.RequestReview)
		r.Get("/quota", reviews.Quota)

		r.Route("/admin", func(r chi.Router) {
			r.Use(handler.RequireToken(cfg.Server.AdminToken))
			r.Put("/quota/enabled", admin.SetEnabled)
			r.Put("/quota/limits", admin.UpdateLimits)
			r.Get("/ratelimit/usage", admin.Usage)
			r.Post("/reviews/batch", admin.Batch)
		})
	})

	return r
}
