// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Submission metrics
	RequestsSubmitted  prometheus.Counter
	SubmissionRejected *prometheus.CounterVec
	EnqueueRetries     prometheus.Counter

	// Compute metrics
	RequestsCompleted *prometheus.CounterVec
	ComputeFailures   *prometheus.CounterVec
	ComputeDuration   prometheus.Histogram
	JobsRequeued      prometheus.Counter

	// ADV cache metrics
	ADVCacheHits   prometheus.Counter
	ADVCacheMisses prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "impact_cost_lab"
	}

	return &Metrics{
		// Submission metrics
		RequestsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "requests_submitted_total",
			Help:      "Total number of estimate requests accepted at submission",
		}),
		SubmissionRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "submissions_rejected_total",
			Help:      "Total number of submissions rejected synchronously by code",
		}, []string{"code"}),
		EnqueueRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "enqueue_retries_total",
			Help:      "Total number of queue dispatch retries at submission",
		}),

		// Compute metrics
		RequestsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_completed_total",
			Help:      "Total number of requests driven to a terminal status",
		}, []string{"status"}),
		ComputeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "compute_failures_total",
			Help:      "Total number of compute failures by error code",
		}, []string{"code"}),
		ComputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "compute_duration_seconds",
			Help:      "One compute attempt duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		JobsRequeued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_requeued_total",
			Help:      "Total number of jobs re-enqueued after a transient failure",
		}),

		// ADV cache metrics
		ADVCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "adv_cache_hits_total",
			Help:      "Total number of ADV lookups served from the cache",
		}),
		ADVCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "adv_cache_misses_total",
			Help:      "Total number of ADV lookups that fell through to the store",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSubmission increments the accepted-submissions counter.
func RecordSubmission() {
	DefaultMetrics.RequestsSubmitted.Inc()
}

// RecordRejection records a synchronous submission rejection.
func RecordRejection(code string) {
	DefaultMetrics.SubmissionRejected.WithLabelValues(code).Inc()
}

// RecordEnqueueRetry increments the dispatch-retry counter.
func RecordEnqueueRetry() {
	DefaultMetrics.EnqueueRetries.Inc()
}

// RecordCompletion records a request reaching a terminal status.
func RecordCompletion(status string, durationSeconds float64) {
	DefaultMetrics.RequestsCompleted.WithLabelValues(status).Inc()
	DefaultMetrics.ComputeDuration.Observe(durationSeconds)
}

// RecordComputeFailure records a compute failure by taxonomy code.
func RecordComputeFailure(code string) {
	DefaultMetrics.ComputeFailures.WithLabelValues(code).Inc()
}

// RecordRequeue increments the requeued-jobs counter.
func RecordRequeue() {
	DefaultMetrics.JobsRequeued.Inc()
}

// RecordADVCache records a cache hit or miss on the ADV path.
func RecordADVCache(hit bool) {
	if hit {
		DefaultMetrics.ADVCacheHits.Inc()
	} else {
		DefaultMetrics.ADVCacheMisses.Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
