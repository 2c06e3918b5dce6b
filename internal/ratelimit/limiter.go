// Package ratelimit keeps calls to the external model inside the provider's
// per-minute, per-day and minimum spacing limits. State is shared through
// the CounterStore so every instance sees the same windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/metrics"
)

const (
	minuteWindow   = time.Minute
	dayWindow      = 24 * time.Hour
	minuteLayout   = "200601021504"
	dayLayout      = "20060102"
	lastCallMaxAge = dayWindow
)

// Limiter enforces the provider limits from config.RateLimitConfig.
type Limiter struct {
	store   core.CounterStore
	cfg     config.RateLimitConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewLimiter(store core.CounterStore, cfg *config.RateLimitConfig, logger *slog.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{
		store:   store,
		cfg:     *cfg,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// CheckAndIncrement must run immediately before every provider call. Buckets
// are incremented before they are compared, so a rejected call still uses a
// slot in the window it was rejected from.
func (l *Limiter) CheckAndIncrement(ctx context.Context) error {
	now := l.now().UTC()

	if l.cfg.MinInterval > 0 {
		last, err := l.store.GetInt(ctx, l.lastCallKey())
		if err != nil {
			return storeErr(err)
		}
		if last > 0 {
			elapsed := now.Sub(time.UnixMilli(last))
			if elapsed < l.cfg.MinInterval {
				return l.reject("min_interval", core.ErrTooSoon, ceilSeconds(l.cfg.MinInterval-elapsed))
			}
		}
	}

	rpm, err := l.store.IncrWithExpiry(ctx, l.minuteKey(now), minuteWindow)
	if err != nil {
		return storeErr(err)
	}
	if rpm > l.cfg.RequestsPerMinute {
		return l.reject("rpm", core.ErrRPMExceeded, ceilSeconds(now.Truncate(minuteWindow).Add(minuteWindow).Sub(now)))
	}

	rpd, err := l.store.IncrWithExpiry(ctx, l.dayKey(now), dayWindow)
	if err != nil {
		return storeErr(err)
	}
	l.metrics.SetProviderDailyUsage(l.cfg.Provider, rpd)
	if rpd > l.cfg.RequestsPerDay {
		return l.reject("rpd", core.ErrRPDExceeded, ceilSeconds(nextUTCMidnight(now).Sub(now)))
	}

	if err := l.store.Set(ctx, l.lastCallKey(), strconv.FormatInt(now.UnixMilli(), 10), lastCallMaxAge); err != nil {
		return storeErr(err)
	}
	return nil
}

// DailyUsage returns the number of calls counted in today's bucket.
func (l *Limiter) DailyUsage(ctx context.Context) (int64, error) {
	n, err := l.store.GetInt(ctx, l.dayKey(l.now().UTC()))
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// IsNearDailyLimit reports whether today's usage reached threshold (0, 1] of
// the daily cap.
func (l *Limiter) IsNearDailyLimit(ctx context.Context, threshold float64) (bool, error) {
	if threshold <= 0 || threshold > 1 {
		return false, fmt.Errorf("%w: threshold must be in (0, 1], got %v", core.ErrValidation, threshold)
	}
	used, err := l.DailyUsage(ctx)
	if err != nil {
		return false, err
	}
	return float64(used) >= threshold*float64(l.cfg.RequestsPerDay), nil
}

// Limits returns the configured caps.
func (l *Limiter) Limits() config.RateLimitConfig {
	return l.cfg
}

func (l *Limiter) reject(limitType string, reason error, retryAfter time.Duration) error {
	l.metrics.RecordRateLimitHit(l.cfg.Provider, limitType)
	l.logger.Warn("provider rate limit hit", "provider", l.cfg.Provider, "limit", limitType, "retry_after", retryAfter)
	return &core.RateLimitError{Reason: reason, RetryAfter: retryAfter}
}

func (l *Limiter) minuteKey(now time.Time) string {
	return "ai:ratelimit:" + l.cfg.Provider + ":rpm:" + now.Format(minuteLayout)
}

func (l *Limiter) dayKey(now time.Time) string {
	return "ai:ratelimit:" + l.cfg.Provider + ":rpd:" + now.Format(dayLayout)
}

func (l *Limiter) lastCallKey() string {
	return "ai:ratelimit:" + l.cfg.Provider + ":last_call"
}

func nextUTCMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}

func storeErr(err error) error {
	if errors.Is(err, core.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
}
