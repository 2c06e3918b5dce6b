package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordReview("generated")
	m.RecordReview("generated")
	m.RecordQuotaRejection("user_limit")
	m.RecordRateLimitHit("gemini", "rpm")
	m.RecordGeneration("success", 0.4)
	m.RecordLockContention()
	m.SetProviderDailyUsage("gemini", 12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reviewRequests.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotaRejections.WithLabelValues("user_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitHits.WithLabelValues("gemini", "rpm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockContention))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.providerDailyUse.WithLabelValues("gemini")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordReview("cached")
		m.RecordGeneration("error", 1)
		m.RecordCompletionRace()
	})
}
