package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AdapterAttempt("LeetCode", "ok")
	m.AdapterAttempt("LeetCode", "ok")
	m.FetchResult("fallback")
	m.PoolTask("fetch", "panic")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.adapterAttempts.WithLabelValues("LeetCode", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchOutcomes.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.poolTasks.WithLabelValues("fetch", "panic")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AdapterAttempt("x", "y")
		m.RankingCache("hit")
		m.RefreshDecision("denied")
		m.ReportDelivery("email", "ok")
		m.BatchDuration("weekly", 1)
	})
}
