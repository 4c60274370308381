package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polithane_media_jobs_processed_total",
		Help: "Total number of media jobs finished, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polithane_media_stage_duration_seconds",
		Help:    "Duration of each normalization pipeline stage",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polithane_media_active_jobs",
		Help: "Number of jobs currently being processed by this instance",
	})

	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polithane_media_retries_total",
		Help: "Total number of jobs requeued after a retryable failure",
	})

	ClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polithane_media_claim_conflicts_total",
		Help: "Claims lost to a rival worker instance",
	})
)
