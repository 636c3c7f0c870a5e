// Package metrics exposes pipeline counters and pool health helpers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pare"

var (
	// Terminal sync jobs by state (completed, failed) and rejected starts.
	SyncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_jobs_total",
			Help:      "Sync jobs by outcome",
		},
		[]string{"state"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of a sync job",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
		[]string{"state"},
	)

	EmailsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_fetched_total",
			Help:      "New emails stored by sync jobs",
		},
	)

	// status: classified, failed
	EmailsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_classified_total",
			Help:      "Per-email classification outcomes",
		},
		[]string{"status"},
	)

	ClassifyBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_batch_duration_seconds",
			Help:      "Latency of one classification request",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"status"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by classification calls",
		},
		[]string{"kind"},
	)
)

// RecordSyncFinished records a terminal job.
func RecordSyncFinished(state string, d time.Duration) {
	SyncJobsTotal.WithLabelValues(state).Inc()
	SyncDuration.WithLabelValues(state).Observe(d.Seconds())
}

// RecordSyncRejected counts a start refused because a job was running.
func RecordSyncRejected() {
	SyncJobsTotal.WithLabelValues("rejected").Inc()
}

// RecordEmailsFetched adds newly stored emails.
func RecordEmailsFetched(n int) {
	EmailsFetched.Add(float64(n))
}

// RecordOutcome counts one per-email outcome.
func RecordOutcome(classified bool) {
	if classified {
		EmailsClassified.WithLabelValues("classified").Inc()
		return
	}
	EmailsClassified.WithLabelValues("failed").Inc()
}

// RecordClassifyBatch records one classification request.
func RecordClassifyBatch(status string, d time.Duration) {
	ClassifyBatchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordTokens adds prompt and completion token usage.
func RecordTokens(prompt, completion int) {
	LLMTokens.WithLabelValues("prompt").Add(float64(prompt))
	LLMTokens.WithLabelValues("completion").Add(float64(completion))
}
