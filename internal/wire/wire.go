//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"github.com/sevigo/learnlog/internal/app"
	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/llm"
	"github.com/sevigo/learnlog/internal/review"
)

func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	wire.Build(
		app.NewApp,
		config.LoadConfig,
		llm.NewPromptManager,
		review.NewOrchestrator,
		provideSlogLogger,
		provideRegistry,
		provideMetrics,
		provideReviewStore,
		provideCounterStore,
		provideGeneratorLLM,
		provideGate,
		provideLimiter,
		provideGenerator,
		provideDispatcher,
		provideServices,
		provideServer,
	)
	return &app.App{}, nil, nil
}
