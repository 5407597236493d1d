package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedreader_ingest_runs_total",
		Help: "The total number of ingestion runs started",
	})

	entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedreader_ingest_entries_total",
		Help: "Feed entries processed by ingestion, by outcome",
	}, []string{"outcome"})

	sourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedreader_ingest_source_failures_total",
		Help: "Feed sources that failed during ingestion, by stage",
	}, []string{"stage"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedreader_ingest_run_duration_seconds",
		Help:    "Wall clock duration of ingestion runs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms up to ~100s
	})
)

func observeRun(s RunSummary) {
	runsTotal.Inc()
	entriesTotal.WithLabelValues("inserted").Add(float64(s.Inserted))
	entriesTotal.WithLabelValues("updated").Add(float64(s.Updated))
	entriesTotal.WithLabelValues("skipped").Add(float64(s.Skipped))
	for _, f := range s.Failures {
		sourceFailures.WithLabelValues(string(f.Stage)).Inc()
	}
	runDuration.Observe(s.Duration.Seconds())
}
