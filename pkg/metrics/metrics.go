package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution metrics
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avery_executions_total",
			Help: "Total number of executions by terminal state",
		},
		[]string{"state"},
	)

	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avery_execution_duration_seconds",
			Help:    "Time from Resolving to a terminal Result, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SandboxLifetime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avery_sandbox_lifetime_seconds",
			Help:    "Time a sandbox scratch directory stays on disk",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Registry metrics
	RegistryOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avery_registry_operation_duration_seconds",
			Help:    "Registry storage operation latency by op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	FunctionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "avery_functions_total",
			Help: "Total number of registered Function versions",
		},
	)

	// Attachment transport metrics
	AttachmentFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avery_attachment_fetch_duration_seconds",
			Help:    "Time to stream an attachment blob to completion",
			Buckets: prometheus.DefBuckets,
		},
	)

	AttachmentChecksumMismatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "avery_attachment_checksum_mismatch_total",
			Help: "Total number of attachment fetches that failed SHA-256 verification",
		},
	)

	// Token cache metrics
	TokenCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "avery_token_cache_hits_total",
			Help: "Total number of Acquire calls served from an unexpired cached token",
		},
	)

	TokenRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avery_token_refresh_duration_seconds",
			Help:    "Time taken by an obtain/refresh call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RPC façade metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avery_rpc_requests_total",
			Help: "Total number of RPC calls by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avery_rpc_request_duration_seconds",
			Help:    "RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(SandboxLifetime)
	prometheus.MustRegister(RegistryOpDuration)
	prometheus.MustRegister(FunctionsTotal)
	prometheus.MustRegister(AttachmentFetchDuration)
	prometheus.MustRegister(AttachmentChecksumMismatchTotal)
	prometheus.MustRegister(TokenCacheHitsTotal)
	prometheus.MustRegister(TokenRefreshDuration)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
