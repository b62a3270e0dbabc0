package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "prompthunter"

// PrometheusMetrics implements ValidationMetrics with
// client_golang collectors registered on its own registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	validations       *prometheus.CounterVec
	validationSeconds *prometheus.HistogramVec
	aiRequests        *prometheus.CounterVec
	aiSeconds         *prometheus.HistogramVec
	sandboxRuns       *prometheus.CounterVec
	sandboxSeconds    prometheus.Histogram
	sandboxLeaks      prometheus.Counter
	sentenceBatches   *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

// NewPrometheusMetrics creates the collectors and registers them,
// together with the Go and process collectors, on a fresh
// registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validations by validator variant and verdict.",
		}, []string{"variant", "ok"}),
		validationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Validation latency by validator variant.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"variant"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Model call attempts by operation and outcome.",
		}, []string{"operation", "outcome"}),
		aiSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "Model call latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		sandboxRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_runs_total",
			Help:      "Player code runs by outcome reason.",
		}, []string{"reason"}),
		sandboxSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sandbox_run_duration_seconds",
			Help:      "Player code run latency.",
			Buckets:   prometheus.LinearBuckets(0.05, 0.05, 12),
		}),
		sandboxLeaks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_leaked_runs_total",
			Help:      "Timed-out player code runs still executing after the grace period.",
		}),
		sentenceBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentence_batches_total",
			Help:      "Replacement copy-typing pools by source.",
		}, []string{"source"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.validations,
		m.validationSeconds,
		m.aiRequests,
		m.aiSeconds,
		m.sandboxRuns,
		m.sandboxSeconds,
		m.sandboxLeaks,
		m.sentenceBatches,
		m.activeSessions,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) RecordValidation(variant string, ok bool, duration time.Duration) {
	m.validations.WithLabelValues(variant, strconv.FormatBool(ok)).Inc()
	m.validationSeconds.WithLabelValues(variant).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordAIRequest(operation, outcome string, duration time.Duration) {
	m.aiRequests.WithLabelValues(operation, outcome).Inc()
	m.aiSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordSandboxRun(reason string, duration time.Duration) {
	m.sandboxRuns.WithLabelValues(reason).Inc()
	m.sandboxSeconds.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordSandboxLeak() {
	m.sandboxLeaks.Inc()
}

func (m *PrometheusMetrics) RecordSentenceBatch(source string) {
	m.sentenceBatches.WithLabelValues(source).Inc()
}

func (m *PrometheusMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}
