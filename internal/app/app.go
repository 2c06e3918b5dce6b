// Package app ties the review gate's components together and runs them.
package app

import (
	"context"
	"log/slog"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/quota"
	"github.com/sevigo/learnlog/internal/ratelimit"
	"github.com/sevigo/learnlog/internal/review"
	"github.com/sevigo/learnlog/internal/server"
)

// App holds the main application components. The exported fields are used
// directly by the admin CLI.
type App struct {
	Cfg        *config.Config
	Reviews    *review.Orchestrator
	Quota      *quota.Gate
	Limiter    *ratelimit.Limiter
	Dispatcher core.BatchDispatcher
	Logger     *slog.Logger

	ctx    context.Context
	server *server.Server
}

func NewApp(
	ctx context.Context,
	cfg *config.Config,
	srv *server.Server,
	reviews *review.Orchestrator,
	gate *quota.Gate,
	limiter *ratelimit.Limiter,
	dispatcher core.BatchDispatcher,
	logger *slog.Logger,
) *App {
	return &App{
		Cfg:        cfg,
		Reviews:    reviews,
		Quota:      gate,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Logger:     logger,
		ctx:        ctx,
		server:     srv,
	}
}

// Start runs the HTTP server and blocks until it stops. Batch outcomes are
// logged in the background until the dispatcher is stopped.
func (a *App) Start() error {
	a.Logger.Info("starting learnlog",
		"server_port", a.Cfg.Server.Port,
		"llm_provider", a.Cfg.AI.LLMProvider,
		"review_store", a.Cfg.Storage.Reviews,
		"counter_store", a.Cfg.Storage.Counters,
	)

	go a.logBatchOutcomes()
	return a.server.Start()
}

func (a *App) logBatchOutcomes() {
	for o := range a.Dispatcher.Results() {
		if o.Err != nil {
			a.Logger.Warn("batch review finished with error", "submission_id", o.SubmissionID, "error", o.Err)
			continue
		}
		a.Logger.Info("batch review finished", "submission_id", o.SubmissionID, "status", o.Result.Status)
	}
}

// Stop shuts the server down first so no new work arrives, then lets queued
// batch reviews finish.
func (a *App) Stop() error {
	a.Logger.Info("shutting down learnlog services")

	serverErr := a.server.Stop()
	if serverErr != nil {
		a.Logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	a.Dispatcher.Stop()

	if serverErr != nil {
		return serverErr
	}
	a.Logger.Info("learnlog stopped")
	return nil
}
