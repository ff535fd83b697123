package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	_ = metrics.Track("register_audit").End(nil)
	err := metrics.Track("register_audit").End(errors.New("boom"))
	if err == nil {
		t.Fatal("End must return the error it was given")
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("register_audit", "success")); got != 1 {
		t.Fatalf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(metrics.failures.WithLabelValues("register_audit")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
}

func TestSetStaleOpenReplacesSnapshot(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.SetStaleOpen(map[int64]int{1: 2, 3: 1})
	if n := testutil.CollectAndCount(metrics.staleOpen); n != 2 {
		t.Fatalf("series = %d", n)
	}
	metrics.SetStaleOpen(map[int64]int{3: 1})
	if n := testutil.CollectAndCount(metrics.staleOpen); n != 1 {
		t.Fatalf("series after reset = %d", n)
	}
}

func TestNilMetricsTrack(t *testing.T) {
	var metrics *Metrics
	if err := metrics.Track("x").End(nil); err != nil {
		t.Fatalf("unexpected %v", err)
	}
	metrics.SetStaleOpen(map[int64]int{1: 1})
	metrics.AddWarmed("2024-03-15")
}
