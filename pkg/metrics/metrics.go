package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationRuns records generation pipeline runs by result (success|failure).
	GenerationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vincent_generation_runs_total",
			Help: "Total number of image generation runs",
		},
		[]string{"result", "trigger"},
	)

	// GenerationDuration measures end-to-end pipeline duration.
	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vincent_generation_duration_seconds",
			Help:    "End-to-end duration of a generation run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// StoredImages tracks the number of persisted image records.
	StoredImages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vincent_stored_images",
			Help: "Number of image records in the gallery",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vincent_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
