// Package metrics holds the Prometheus collectors for review gating.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reviewRequests   *prometheus.CounterVec
	quotaRejections  *prometheus.CounterVec
	rateLimitHits    *prometheus.CounterVec
	generations      *prometheus.CounterVec
	generationTime   *prometheus.HistogramVec
	lockContention   prometheus.Counter
	completionRaces  prometheus.Counter
	providerDailyUse *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reviewRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnlog_review_requests_total",
				Help: "Review requests by result status",
			},
			[]string{"status"},
		),
		quotaRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnlog_quota_rejections_total",
				Help: "Requests rejected by the daily quota gate",
			},
			[]string{"reason"},
		),
		rateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnlog_ratelimit_hits_total",
				Help: "Provider calls rejected by the external rate limiter",
			},
			[]string{"provider", "limit_type"},
		),
		generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnlog_generations_total",
				Help: "Calls to the external model by outcome",
			},
			[]string{"outcome"},
		),
		generationTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "learnlog_generation_duration_seconds",
				Help:    "Latency of external model calls",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"outcome"},
		),
		lockContention: f.NewCounter(prometheus.CounterOpts{
			Name: "learnlog_review_lock_contention_total",
			Help: "Review requests that found the generation lock held",
		}),
		completionRaces: f.NewCounter(prometheus.CounterOpts{
			Name: "learnlog_review_completion_races_total",
			Help: "Generated reviews discarded because another writer completed first",
		}),
		providerDailyUse: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "learnlog_ratelimit_daily_usage",
				Help: "Provider calls counted in today's RPD bucket",
			},
			[]string{"provider"},
		),
	}
}

func (m *Metrics) RecordReview(status string) {
	if m == nil {
		return
	}
	m.reviewRequests.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordQuotaRejection(reason string) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordRateLimitHit(provider, limitType string) {
	if m == nil {
		return
	}
	m.rateLimitHits.WithLabelValues(provider, limitType).Inc()
}

// RecordGeneration records one provider call and its latency in seconds.
func (m *Metrics) RecordGeneration(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
	m.generationTime.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) RecordLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *Metrics) RecordCompletionRace() {
	if m == nil {
		return
	}
	m.completionRaces.Inc()
}

func (m *Metrics) SetProviderDailyUsage(provider string, n int64) {
	if m == nil {
		return
	}
	m.providerDailyUse.WithLabelValues(provider).Set(float64(n))
}
