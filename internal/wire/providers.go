package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/db"
	"github.com/sevigo/learnlog/internal/jobs"
	"github.com/sevigo/learnlog/internal/llm"
	"github.com/sevigo/learnlog/internal/logger"
	"github.com/sevigo/learnlog/internal/metrics"
	"github.com/sevigo/learnlog/internal/quota"
	"github.com/sevigo/learnlog/internal/ratelimit"
	"github.com/sevigo/learnlog/internal/review"
	"github.com/sevigo/learnlog/internal/server"
	"github.com/sevigo/learnlog/internal/storage"
)

func provideSlogLogger(cfg *config.Config) *slog.Logger {
	return logger.NewLogger(cfg.Logging, nil)
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// provideReviewStore opens the configured submission store. The memory
// backend is only correct for a single instance.
func provideReviewStore(cfg *config.Config, logger *slog.Logger) (core.ReviewStore, func(), error) {
	switch cfg.Storage.Reviews {
	case config.BackendPostgres:
		conn, cleanup, err := db.NewDatabase(&cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewStore(conn.DB), cleanup, nil
	case config.BackendMemory:
		logger.Warn("using in-memory review store; submissions are lost on restart")
		return storage.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported review storage %q", cfg.Storage.Reviews)
	}
}

func provideCounterStore(cfg *config.Config, logger *slog.Logger) (core.CounterStore, func(), error) {
	switch cfg.Storage.Counters {
	case config.BackendRedis:
		rdb, cleanup, err := storage.NewRedisClient(&cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisCounterStore(rdb), cleanup, nil
	case config.BackendMemory:
		logger.Warn("using in-memory counters; quotas are per process")
		return storage.NewMemoryCounterStore(nil), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported counter storage %q", cfg.Storage.Counters)
	}
}

func provideGeneratorLLM(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llms.Model, error) {
	switch cfg.AI.LLMProvider {
	case "gemini":
		if cfg.AI.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return gemini.New(ctx, gemini.WithModel(cfg.AI.GeneratorModel), gemini.WithAPIKey(cfg.AI.GeminiAPIKey))
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.AI.OllamaHost),
			ollama.WithHTTPClient(newOllamaHTTPClient(cfg.AI.RequestTimeout)),
			ollama.WithModel(cfg.AI.GeneratorModel),
			ollama.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.AI.LLMProvider)
	}
}

// The client timeout is a backstop; the generator enforces the real deadline.
func newOllamaHTTPClient(requestTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        20,
			MaxConnsPerHost:     4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: requestTimeout + 10*time.Second,
	}
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.NewMetrics(reg)
}

func provideGate(store core.CounterStore, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*quota.Gate, error) {
	return quota.NewGate(store, &cfg.Quota, logger, m)
}

func provideLimiter(store core.CounterStore, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ratelimit.Limiter {
	return ratelimit.NewLimiter(store, &cfg.RateLimit, logger, m)
}

func provideGenerator(model llms.Model, gate *quota.Gate, limiter *ratelimit.Limiter, logger *slog.Logger, m *metrics.Metrics) core.Generator {
	return llm.NewGuardedGenerator(llm.NewCompleter(model), gate, limiter, logger, m)
}

func provideDispatcher(orch *review.Orchestrator, cfg *config.Config, logger *slog.Logger) core.BatchDispatcher {
	return jobs.NewDispatcher(orch, cfg.Review.BatchWorkers, logger)
}

func provideServices(orch *review.Orchestrator, gate *quota.Gate, limiter *ratelimit.Limiter, dispatcher core.BatchDispatcher) server.Services {
	return server.Services{
		Reviews:    orch,
		Quota:      gate,
		Usage:      limiter,
		Dispatcher: dispatcher,
	}
}

func provideServer(ctx context.Context, cfg *config.Config, svc server.Services, reg *prometheus.Registry, logger *slog.Logger) *server.Server {
	return server.NewServer(ctx, cfg, svc, reg, logger)
}
