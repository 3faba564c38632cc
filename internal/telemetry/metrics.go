package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's domain counters. All methods are safe on a nil
// receiver so components can run without metrics in tests.
type Metrics struct {
	adapterAttempts  *prometheus.CounterVec
	fetchOutcomes    *prometheus.CounterVec
	rankingCache     *prometheus.CounterVec
	refreshDecisions *prometheus.CounterVec
	reportDeliveries *prometheus.CounterVec
	poolTasks        *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		adapterAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skilltracker_adapter_attempts_total",
				Help: "Source adapter calls by platform and outcome",
			},
			[]string{"platform", "outcome"},
		),
		fetchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skilltracker_fetch_results_total",
				Help: "Profile fetch results by source (live, fallback, not_found)",
			},
			[]string{"source"},
		),
		rankingCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skilltracker_ranking_cache_total",
				Help: "Ranking cache lookups by result (hit, miss, invalidate)",
			},
			[]string{"result"},
		),
		refreshDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skilltracker_refresh_limiter_total",
				Help: "Single-profile refresh limiter decisions",
			},
			[]string{"decision"},
		),
		reportDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skilltracker_report_deliveries_total",
				Help: "Report deliveries by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		poolTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skilltracker_pool_tasks_total",
				Help: "Worker pool task outcomes",
			},
			[]string{"pool", "outcome"},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skilltracker_batch_duration_seconds",
				Help:    "Duration of batch jobs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"job"},
		),
	}

	reg.MustRegister(
		m.adapterAttempts,
		m.fetchOutcomes,
		m.rankingCache,
		m.refreshDecisions,
		m.reportDeliveries,
		m.poolTasks,
		m.batchDuration,
	)
	return m
}

func (m *Metrics) AdapterAttempt(platform, outcome string) {
	if m == nil {
		return
	}
	m.adapterAttempts.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) FetchResult(source string) {
	if m == nil {
		return
	}
	m.fetchOutcomes.WithLabelValues(source).Inc()
}

func (m *Metrics) RankingCache(result string) {
	if m == nil {
		return
	}
	m.rankingCache.WithLabelValues(result).Inc()
}

func (m *Metrics) RefreshDecision(decision string) {
	if m == nil {
		return
	}
	m.refreshDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ReportDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.reportDeliveries.WithLabelValues(channel, outcome).Inc()
}

// PoolTask matches the workers.Config Observe hook.
func (m *Metrics) PoolTask(pool, outcome string) {
	if m == nil {
		return
	}
	m.poolTasks.WithLabelValues(pool, outcome).Inc()
}

func (m *Metrics) BatchDuration(job string, seconds float64) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(job).Observe(seconds)
}
