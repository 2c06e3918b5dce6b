// Package quota enforces the global and per-user daily review quotas.
package quota

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
	keyPrefix         = "ai:review:"
	keyEnabled        = keyPrefix + "config:enabled"
	keyGlobalLimit    = keyPrefix + "config:global_limit"
	keyUserLimit      = keyPrefix + "config:user_limit"
	dayLayout         = "2006-01-02"
	minCounterTTL     = time.Second
	reasonDisabled    = "disabled"
	reasonGlobalLimit = "global_limit"
	reasonUserLimit   = "user_limit"
)

// Gate decides whether a review may spend quota today. Usage counters and
// admin overrides live in the shared CounterStore; config values are used
// when no override has been stored.
type Gate struct {
	store    core.CounterStore
	defaults config.QuotaConfig
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewGate creates a quota gate counting days in cfg.Timezone.
func NewGate(store core.CounterStore, cfg *config.QuotaConfig, logger *slog.Logger, m *metrics.Metrics) (*Gate, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Gate{
		store:    store,
		defaults: *cfg,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}, nil
}

// Status returns today's usage and effective limits without rejecting.
func (g *Gate) Status(ctx context.Context, userID string) (core.QuotaStatus, error) {
	day := g.day(g.now())

	enabled, err := g.enabled(ctx)
	if err != nil {
		return core.QuotaStatus{}, err
	}
	globalLimit, err := g.limit(ctx, keyGlobalLimit, g.defaults.GlobalDailyLimit)
	if err != nil {
		return core.QuotaStatus{}, err
	}
	userLimit, err := g.limit(ctx, keyUserLimit, g.defaults.UserDailyLimit)
	if err != nil {
		return core.QuotaStatus{}, err
	}
	globalUsed, err := g.store.GetInt(ctx, globalUsageKey(day))
	if err != nil {
		return core.QuotaStatus{}, storeErr(err)
	}

	var userUsed int64
	if userID != "" {
		userUsed, err = g.store.GetInt(ctx, userUsageKey(userID, day))
		if err != nil {
			return core.QuotaStatus{}, storeErr(err)
		}
	}

	return core.QuotaStatus{
		Enabled:     enabled,
		GlobalUsed:  globalUsed,
		GlobalLimit: globalLimit,
		UserUsed:    userUsed,
		UserLimit:   userLimit,
	}, nil
}

// CheckAvailability is read-only. It rejects with a *core.QuotaError when the
// service is disabled or either daily limit is spent.
func (g *Gate) CheckAvailability(ctx context.Context, userID string) (core.QuotaStatus, error) {
	st, err := g.Status(ctx, userID)
	if err != nil {
		return st, err
	}

	var reason error
	var label string
	switch {
	case !st.Enabled:
		reason, label = core.ErrServiceDisabled, reasonDisabled
	case st.GlobalUsed >= st.GlobalLimit:
		reason, label = core.ErrGlobalLimitExceeded, reasonGlobalLimit
	case st.UserUsed >= st.UserLimit:
		reason, label = core.ErrUserLimitExceeded, reasonUserLimit
	default:
		return st, nil
	}

	g.metrics.RecordQuotaRejection(label)
	g.logger.Info("review quota rejected", "user_id", userID, "reason", label,
		"global_used", st.GlobalUsed, "user_used", st.UserUsed)
	return st, &core.QuotaError{Reason: reason, Status: st}
}

// IncrementUsage counts one successful generation against today's global and
// user buckets. Both keys expire at the next local midnight.
func (g *Gate) IncrementUsage(ctx context.Context, userID string) error {
	now := g.now()
	day := g.day(now)
	ttl := g.untilMidnight(now)

	if _, err := g.store.IncrAndExpire(ctx, globalUsageKey(day), ttl); err != nil {
		return storeErr(err)
	}
	if _, err := g.store.IncrAndExpire(ctx, userUsageKey(userID, day), ttl); err != nil {
		return storeErr(err)
	}
	return nil
}

// SetServiceEnabled toggles review generation for every user.
func (g *Gate) SetServiceEnabled(ctx context.Context, enabled bool) error {
	if err := g.store.Set(ctx, keyEnabled, strconv.FormatBool(enabled), 0); err != nil {
		return storeErr(err)
	}
	g.logger.Info("review service toggled", "enabled", enabled)
	return nil
}

// UpdateLimits overrides both daily limits.
func (g *Gate) UpdateLimits(ctx context.Context, global, user int64) error {
	if global <= 0 || user <= 0 {
		return fmt.Errorf("%w: limits must be positive, got global=%d user=%d", core.ErrValidation, global, user)
	}
	if err := g.store.Set(ctx, keyGlobalLimit, strconv.FormatInt(global, 10), 0); err != nil {
		return storeErr(err)
	}
	if err := g.store.Set(ctx, keyUserLimit, strconv.FormatInt(user, 10), 0); err != nil {
		return storeErr(err)
	}
	g.logger.Info("review limits updated", "global", global, "user", user)
	return nil
}

func (g *Gate) enabled(ctx context.Context) (bool, error) {
	v, ok, err := g.store.Get(ctx, keyEnabled)
	if err != nil {
		return false, storeErr(err)
	}
	if !ok {
		return g.defaults.Enabled, nil
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		g.logger.Warn("ignoring malformed enabled flag", "key", keyEnabled, "value", v)
		return g.defaults.Enabled, nil
	}
	return enabled, nil
}

func (g *Gate) limit(ctx context.Context, key string, fallback int64) (int64, error) {
	v, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return 0, storeErr(err)
	}
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		g.logger.Warn("ignoring malformed limit override", "key", key, "value", v)
		return fallback, nil
	}
	return n, nil
}

func (g *Gate) day(now time.Time) string {
	return now.In(g.loc).Format(dayLayout)
}

// untilMidnight rounds up to whole seconds and never returns less than one.
func (g *Gate) untilMidnight(now time.Time) time.Duration {
	local := now.In(g.loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, g.loc)
	ttl := next.Sub(local)
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	return max(ttl, minCounterTTL)
}

func globalUsageKey(day string) string {
	return keyPrefix + "usage:global:" + day
}

func userUsageKey(userID, day string) string {
	return keyPrefix + "usage:user:" + userID + ":" + day
}

func storeErr(err error) error {
	if errors.Is(err, core.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
}
