package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carscout_runs_total",
		Help: "Pipeline runs by final status",
	}, []string{"status"})

	recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carscout_records_total",
		Help: "Scraped records by validation outcome",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "carscout_run_duration_seconds",
		Help:    "Wall time of completed pipeline runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func init() {
	_ = prometheus.Register(runsTotal)
	_ = prometheus.Register(recordsTotal)
	_ = prometheus.Register(runDuration)
}
