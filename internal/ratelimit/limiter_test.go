package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig, at time.Time) (*Limiter, *storage.MemoryCounterStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: at}
	store := storage.NewMemoryCounterStore(clock.now)
	l := NewLimiter(store, &cfg, slog.Default(), nil)
	l.now = clock.now
	return l, store, clock
}

func geminiLimits() config.RateLimitConfig {
	return config.RateLimitConfig{Provider: "gemini", RequestsPerMinute: 15, RequestsPerDay: 1500, MinInterval: 4 * time.Second}
}

func TestLimiter_MinInterval(t *testing.T) {
	ctx := context.Background()
	l, _, clock := newTestLimiter(t, geminiLimits(), time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	require.NoError(t, l.CheckAndIncrement(ctx))

	clock.advance(2 * time.Second)
	err := l.CheckAndIncrement(ctx)
	require.ErrorIs(t, err, core.ErrTooSoon)
	require.ErrorIs(t, err, core.ErrRateLimited)

	var rle *core.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 2*time.Second, rle.RetryAfter)

	clock.advance(2 * time.Second)
	assert.NoError(t, l.CheckAndIncrement(ctx))
}

func TestLimiter_RetryAfterRoundsUp(t *testing.T) {
	ctx := context.Background()
	l, _, clock := newTestLimiter(t, geminiLimits(), time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	require.NoError(t, l.CheckAndIncrement(ctx))
	clock.advance(2500 * time.Millisecond)

	var rle *core.RateLimitError
	require.True(t, errors.As(l.CheckAndIncrement(ctx), &rle))
	assert.Equal(t, 2*time.Second, rle.RetryAfter)
}

func TestLimiter_RPM(t *testing.T) {
	ctx := context.Background()
	cfg := geminiLimits()
	cfg.MinInterval = 0
	cfg.RequestsPerMinute = 3
	l, store, clock := newTestLimiter(t, cfg, time.Date(2026, 10, 14, 9, 0, 15, 0, time.UTC))

	for range 3 {
		require.NoError(t, l.CheckAndIncrement(ctx))
	}
	err := l.CheckAndIncrement(ctx)
	require.ErrorIs(t, err, core.ErrRPMExceeded)

	var rle *core.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 45*time.Second, rle.RetryAfter)

	n, err := store.GetInt(ctx, "ai:ratelimit:gemini:rpm:202610140900")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "rejected call still consumed a slot")
	assert.Equal(t, time.Minute, store.TTL("ai:ratelimit:gemini:rpm:202610140900"))

	clock.advance(time.Minute)
	assert.NoError(t, l.CheckAndIncrement(ctx), "next minute bucket starts empty")
}

func TestLimiter_RPD(t *testing.T) {
	ctx := context.Background()
	cfg := geminiLimits()
	cfg.MinInterval = 0
	cfg.RequestsPerDay = 2
	l, _, clock := newTestLimiter(t, cfg, time.Date(2026, 10, 14, 22, 0, 0, 0, time.UTC))

	require.NoError(t, l.CheckAndIncrement(ctx))
	clock.advance(2 * time.Minute)
	require.NoError(t, l.CheckAndIncrement(ctx))
	clock.advance(2 * time.Minute)

	err := l.CheckAndIncrement(ctx)
	require.ErrorIs(t, err, core.ErrRPDExceeded)
	var rle *core.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 116*time.Minute, rle.RetryAfter)
}

func TestLimiter_RejectionDoesNotMoveLastCall(t *testing.T) {
	ctx := context.Background()
	cfg := geminiLimits()
	cfg.RequestsPerMinute = 1
	cfg.MinInterval = time.Second
	l, store, clock := newTestLimiter(t, cfg, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	require.NoError(t, l.CheckAndIncrement(ctx))
	first, err := store.GetInt(ctx, "ai:ratelimit:gemini:last_call")
	require.NoError(t, err)

	clock.advance(2 * time.Second)
	require.ErrorIs(t, l.CheckAndIncrement(ctx), core.ErrRPMExceeded)

	last, err := store.GetInt(ctx, "ai:ratelimit:gemini:last_call")
	require.NoError(t, err)
	assert.Equal(t, first, last)
}

func TestLimiter_DailyUsage(t *testing.T) {
	ctx := context.Background()
	cfg := geminiLimits()
	cfg.MinInterval = 0
	cfg.RequestsPerDay = 10
	l, _, _ := newTestLimiter(t, cfg, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	for range 8 {
		require.NoError(t, l.CheckAndIncrement(ctx))
	}

	used, err := l.DailyUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), used)

	near, err := l.IsNearDailyLimit(ctx, 0.8)
	require.NoError(t, err)
	assert.True(t, near)

	near, err = l.IsNearDailyLimit(ctx, 0.9)
	require.NoError(t, err)
	assert.False(t, near)

	_, err = l.IsNearDailyLimit(ctx, 1.5)
	assert.ErrorIs(t, err, core.ErrValidation)

	again, err := l.DailyUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, used, again, "usage reads are side-effect free")
}

func TestLimiter_ConcurrentCallersRespectRPM(t *testing.T) {
	ctx := context.Background()
	cfg := geminiLimits()
	cfg.MinInterval = 0
	cfg.RequestsPerMinute = 5
	l, _, _ := newTestLimiter(t, cfg, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndIncrement(ctx) == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed.Load())
}
