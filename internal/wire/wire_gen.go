// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"

	"github.com/sevigo/learnlog/internal/app"
	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/llm"
	"github.com/sevigo/learnlog/internal/review"
)

// InitializeApp creates and wires all application dependencies.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slogLogger := provideSlogLogger(cfg)
	registry := provideRegistry()
	m := provideMetrics(registry)

	reviewStore, storeCleanup, err := provideReviewStore(cfg, slogLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open review store: %w", err)
	}
	counterStore, countersCleanup, err := provideCounterStore(cfg, slogLogger)
	if err != nil {
		storeCleanup()
		return nil, nil, fmt.Errorf("failed to open counter store: %w", err)
	}
	cleanup := func() {
		countersCleanup()
		storeCleanup()
	}

	model, err := provideGeneratorLLM(ctx, cfg, slogLogger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create generator LLM: %w", err)
	}

	gate, err := provideGate(counterStore, cfg, slogLogger, m)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create quota gate: %w", err)
	}
	limiter := provideLimiter(counterStore, cfg, slogLogger, m)
	generator := provideGenerator(model, gate, limiter, slogLogger, m)

	promptMgr, err := llm.NewPromptManager()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create prompt manager: %w", err)
	}

	orchestrator := review.NewOrchestrator(reviewStore, generator, promptMgr, cfg, slogLogger, m)
	dispatcher := provideDispatcher(orchestrator, cfg, slogLogger)
	services := provideServices(orchestrator, gate, limiter, dispatcher)
	srv := provideServer(ctx, cfg, services, registry, slogLogger)

	application := app.NewApp(ctx, cfg, srv, orchestrator, gate, limiter, dispatcher, slogLogger)
	return application, cleanup, nil
}
