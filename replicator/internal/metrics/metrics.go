// Package metrics exposes the replicator's Prometheus series:
//
//   - replicator_jobs_total{status}            terminal job outcomes
//   - replicator_jobs_skipped_total            duplicate deliveries of non-pending jobs
//   - replicator_follower_orders_total{status} per-follower results (success|failed)
//   - replicator_job_duration_seconds          claim-to-terminal latency
//
// Series are registered in init() and served at /metrics by the rest package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_jobs_total",
			Help: "Replication jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	jobsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "replicator_jobs_skipped_total",
			Help: "Job events ignored because the job was no longer pending",
		},
	)

	followerOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_follower_orders_total",
			Help: "Per-follower replication results",
		},
		[]string{"status"},
	)

	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replicator_job_duration_seconds",
			Help:    "Time from claiming a job to writing its terminal status",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, jobsSkipped, followerOrders, jobDuration)
}

// JobFinished records a terminal job status and how long it took.
func JobFinished(status string, took time.Duration) {
	jobsTotal.WithLabelValues(status).Inc()
	jobDuration.Observe(took.Seconds())
}

func JobSkipped() {
	jobsSkipped.Inc()
}

func FollowerResult(status string) {
	followerOrders.WithLabelValues(status).Inc()
}
