package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the fixture API metrics. Each instance owns its registry so
// several servers can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeRequests      prometheus.Gauge

	tokensIssued   *prometheus.CounterVec
	tokensRejected *prometheus.CounterVec
	revocations    prometheus.Counter
	uploadBytes    prometheus.Counter

	serviceUp prometheus.Gauge
}

// NewMetrics registers every metric on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		activeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Number of requests being served",
		}),

		tokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fixture_tokens_issued_total",
			Help: "Access tokens issued, by grant",
		}, []string{"grant"}),

		tokensRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fixture_tokens_rejected_total",
			Help: "Requests rejected with 401, by reason",
		}, []string{"reason"}),

		revocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "fixture_token_revocations_total",
			Help: "Number of times every issued access token was revoked",
		}),

		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "fixture_upload_bytes_total",
			Help: "Bytes of file content received by the upload endpoint",
		}),

		serviceUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "service_up",
			Help: "Whether the service is up (1) or down (0)",
		}),
	}
	m.serviceUp.Set(1)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordTokenIssued counts an access token minted for grant.
func (m *Metrics) RecordTokenIssued(grant string) {
	m.tokensIssued.WithLabelValues(grant).Inc()
}

// RecordTokenRejected counts a 401.
func (m *Metrics) RecordTokenRejected(reason string) {
	m.tokensRejected.WithLabelValues(reason).Inc()
}

// RecordRevocation counts a revoke-all.
func (m *Metrics) RecordRevocation() {
	m.revocations.Inc()
}

// RecordUpload adds n bytes of received file content.
func (m *Metrics) RecordUpload(n int64) {
	m.uploadBytes.Add(float64(n))
}

// SetServiceDown marks the service as shutting down.
func (m *Metrics) SetServiceDown() {
	m.serviceUp.Set(0)
}

// TokensIssued returns the issued-token counter for grant.
func (m *Metrics) TokensIssued(grant string) prometheus.Counter {
	return m.tokensIssued.WithLabelValues(grant)
}

// TokensRejected returns the rejected-token counter for reason.
func (m *Metrics) TokensRejected(reason string) prometheus.Counter {
	return m.tokensRejected.WithLabelValues(reason)
}

// UploadBytes returns the upload byte counter.
func (m *Metrics) UploadBytes() prometheus.Counter {
	return m.uploadBytes
}
