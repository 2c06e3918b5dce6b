package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/jobs"
	"github.com/sevigo/learnlog/internal/llm"
	"github.com/sevigo/learnlog/internal/metrics"
	"github.com/sevigo/learnlog/internal/quota"
	"github.com/sevigo/learnlog/internal/ratelimit"
	"github.com/sevigo/learnlog/internal/review"
	"github.com/sevigo/learnlog/internal/server"
	"github.com/sevigo/learnlog/internal/storage"
	"github.com/sevigo/learnlog/mocks"
)

func TestApp_StartStop(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0"},
		AI:        config.AIConfig{LLMProvider: "ollama", RequestTimeout: time.Second},
		Quota:     config.QuotaConfig{Enabled: true, GlobalDailyLimit: 10, UserDailyLimit: 5, Timezone: "UTC"},
		RateLimit: config.RateLimitConfig{Provider: "test", RequestsPerMinute: 10, RequestsPerDay: 100},
		Review:    config.ReviewConfig{LockTTL: time.Minute, MinContentLength: 5, MaxContentLength: 1000, BatchWorkers: 1},
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	store := storage.NewMemoryStore()
	counters := storage.NewMemoryCounterStore(nil)
	gate, err := quota.NewGate(counters, &cfg.Quota, logger, m)
	require.NoError(t, err)
	limiter := ratelimit.NewLimiter(counters, &cfg.RateLimit, logger, m)
	pm, err := llm.NewPromptManager()
	require.NoError(t, err)

	gen := mocks.NewMockGenerator(gomock.NewController(t))
	gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("Clear and tidy.", nil)

	orch := review.NewOrchestrator(store, gen, pm, cfg, logger, m)
	dispatcher := jobs.NewDispatcher(orch, cfg.Review.BatchWorkers, logger)
	svc := server.Services{Reviews: orch, Quota: gate, Usage: limiter, Dispatcher: dispatcher}
	srv := server.NewServer(ctx, cfg, svc, reg, logger)

	a := NewApp(ctx, cfg, srv, orch, gate, limiter, dispatcher, logger)

	sub, err := a.Reviews.Submit(ctx, "u1", "go", "fmt.Println(1)")
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() { started <- a.Start() }()

	require.NoError(t, a.Dispatcher.Dispatch(ctx, sub.ID))
	require.Eventually(t, func() bool {
		got, err := store.GetSubmission(ctx, sub.ID)
		return err == nil && got.Review.Phase() == core.PhaseCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Stop())
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	// Results is closed once the dispatcher stops, so this drain ends.
	for range a.Dispatcher.Results() {
	}
}
