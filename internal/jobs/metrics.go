package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	staleOpen  *prometheus.GaugeVec
	warmedDays *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetStaleOpen publishes how many registers of a unit are still open for a
// past business date, replacing the previous snapshot.
func (m *Metrics) SetStaleOpen(counts map[int64]int) {
	if m == nil {
		return
	}
	m.staleOpen.Reset()
	for unitID, n := range counts {
		m.staleOpen.WithLabelValues(formatInt(unitID)).Set(float64(n))
	}
}

// AddWarmed counts consolidated views precomputed for a date.
func (m *Metrics) AddWarmed(date string) {
	if m == nil {
		return
	}
	m.warmedDays.WithLabelValues(date).Inc()
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caixa_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caixa_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "caixa_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	staleOpen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "caixa_registers_stale_open",
		Help: "Registers still open for a past business date, per unit.",
	}, []string{"unit"})
	warmed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caixa_consolidation_warmups_total",
		Help: "Consolidated views precomputed by the warm-up job.",
	}, []string{"date"})
	registerer.MustRegister(runs, failures, duration, staleOpen, warmed)
	return &Metrics{runs: runs, failures: failures, duration: duration, staleOpen: staleOpen, warmedDays: warmed}
}
