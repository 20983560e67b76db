package observers

import (
	"errors"
	"time"

	"github.com/birbparty/birb-call/sdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OutcomeSuccess labels requests that completed without error.
const OutcomeSuccess = "success"

// PrometheusObserver exports client events as Prometheus metrics.
type PrometheusObserver struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	duplicates    prometheus.Counter
	authPhase     prometheus.Gauge
	replays       prometheus.Counter
	authExhausted prometheus.Counter
	uploadBytes   prometheus.Counter
}

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)

	return &PrometheusObserver{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "birbcall_requests_total",
			Help: "Total number of completed requests by outcome",
		}, []string{"method", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "birbcall_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "birbcall_duplicates_suppressed_total",
			Help: "Total number of calls dropped because an identical request was in flight",
		}),
		authPhase: factory.NewGauge(prometheus.GaugeOpts{
			Name: "birbcall_auth_phase",
			Help: "Current auth phase (0=normal, 1=refreshing, 2=exhausted)",
		}),
		replays: factory.NewCounter(prometheus.CounterOpts{
			Name: "birbcall_replays_total",
			Help: "Total number of calls reissued after a token refresh",
		}),
		authExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "birbcall_auth_exhausted_total",
			Help: "Total number of times token recovery gave up",
		}),
		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "birbcall_upload_bytes_total",
			Help: "Total number of bytes sent by completed uploads",
		}),
	}
}

// OnRequestStart is a no-op; requests are counted when they complete.
func (p *PrometheusObserver) OnRequestStart(method, url string) {}

// OnRequestEnd records the outcome and duration.
func (p *PrometheusObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	p.requests.WithLabelValues(method, outcome(err)).Inc()
	p.duration.WithLabelValues(method).Observe(duration.Seconds())
}

// OnDuplicateSuppressed counts the dropped call.
func (p *PrometheusObserver) OnDuplicateSuppressed(method, url string) {
	p.duplicates.Inc()
}

// OnUploadProgress adds the body size once the upload has been fully sent.
func (p *PrometheusObserver) OnUploadProgress(url string, progress sdk.Progress) {
	if progress.Total > 0 && progress.Loaded == progress.Total {
		p.uploadBytes.Add(float64(progress.Total))
	}
}

// OnAuthPhaseChange tracks the current phase.
func (p *PrometheusObserver) OnAuthPhaseChange(oldPhase, newPhase sdk.AuthPhase) {
	p.authPhase.Set(float64(newPhase))
	if newPhase == sdk.AuthExhausted {
		p.authExhausted.Inc()
	}
}

// OnReplay counts the reissued calls.
func (p *PrometheusObserver) OnReplay(count int) {
	p.replays.Add(float64(count))
}

// outcome maps an error to a low-cardinality label value.
func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var callErr *sdk.Error
	if errors.As(err, &callErr) {
		return callErr.Type.String()
	}
	return sdk.ErrorTypeUnknown.String()
}
