package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/metrics"
)

const defaultGenerationTimeout = 30 * time.Second

var errEmptyCompletion = errors.New("model returned an empty review")

// QuotaChecker is the part of the quota gate the generator needs.
type QuotaChecker interface {
	CheckAvailability(ctx context.Context, userID string) (core.QuotaStatus, error)
	IncrementUsage(ctx context.Context, userID string) error
}

// CallLimiter guards each outgoing provider call.
type CallLimiter interface {
	CheckAndIncrement(ctx context.Context) error
}

// GuardedGenerator is the only path to the external model. Every call passes
// the quota gate and the provider limiter first and is counted against the
// quota only when it succeeds.
type GuardedGenerator struct {
	completer Completer
	quota     QuotaChecker
	limiter   CallLimiter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewGuardedGenerator(c Completer, q QuotaChecker, l CallLimiter, logger *slog.Logger, m *metrics.Metrics) *GuardedGenerator {
	return &GuardedGenerator{
		completer: c,
		quota:     q,
		limiter:   l,
		logger:    logger,
		metrics:   m,
	}
}

var _ core.Generator = (*GuardedGenerator)(nil)

func (g *GuardedGenerator) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	if _, err := g.quota.CheckAvailability(ctx, req.UserID); err != nil {
		return "", err
	}
	if err := g.limiter.CheckAndIncrement(ctx); err != nil {
		return "", err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}

	prompt := req.SystemPrompt + "\n\n" + req.UserPrompt
	start := time.Now()
	text, err := g.generateWithTimeout(ctx, prompt, timeout)
	elapsed := time.Since(start)

	if err == nil {
		text = singleLine(text)
		if text == "" {
			err = errEmptyCompletion
		}
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			err = fmt.Errorf("model call gave up after %s: %w", timeout, err)
		}
		g.metrics.RecordGeneration(outcome, elapsed.Seconds())
		g.logger.Warn("model call failed", "user_id", req.UserID, "outcome", outcome, "duration", elapsed, "error", err)
		return "", err
	}
	g.metrics.RecordGeneration("success", elapsed.Seconds())

	// The call has already been paid for, so a failed increment is logged and
	// the review is still returned.
	if err := g.quota.IncrementUsage(context.WithoutCancel(ctx), req.UserID); err != nil {
		g.logger.Error("failed to record review usage", "user_id", req.UserID, "error", err)
	}

	g.logger.Debug("model call succeeded", "user_id", req.UserID, "duration", elapsed)
	return text, nil
}

// generateWithTimeout stops waiting once timeout passes. The provider call
// keeps running in its goroutine and its result is dropped.
func (g *GuardedGenerator) generateWithTimeout(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp string
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := g.completer.Complete(ctx, prompt)
		resultCh <- result{resp, err}
	}()

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
