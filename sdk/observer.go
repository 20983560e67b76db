package sdk

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer provides hooks for monitoring the client. Methods are called
// synchronously from request goroutines and must be fast and safe for
// concurrent use.
//
// Example implementation:
//
//	type countingObserver struct {
//	    sdk.NoopObserver
//	    duplicates atomic.Int64
//	}
//
//	func (o *countingObserver) OnDuplicateSuppressed(method, url string) {
//	    o.duplicates.Add(1)
//	}
type Observer interface {
	// OnRequestStart is called when a request is launched.
	OnRequestStart(method, url string)

	// OnRequestEnd is called when a request completes. statusCode is zero
	// when no response was received. err is nil on a 2xx with a valid body.
	OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error)

	// OnDuplicateSuppressed is called when Call returns false because an
	// identical request is still in flight.
	OnDuplicateSuppressed(method, url string)

	// OnUploadProgress is called as an upload body is sent.
	OnUploadProgress(url string, progress Progress)

	// OnAuthPhaseChange is called after every auth phase transition.
	OnAuthPhaseChange(oldPhase, newPhase AuthPhase)

	// OnReplay is called when a batch of failed calls is reissued.
	OnReplay(count int)
}

// NoopObserver is the default observer.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, url string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
}

// OnDuplicateSuppressed does nothing
func (n *NoopObserver) OnDuplicateSuppressed(method, url string) {}

// OnUploadProgress does nothing
func (n *NoopObserver) OnUploadProgress(url string, progress Progress) {}

// OnAuthPhaseChange does nothing
func (n *NoopObserver) OnAuthPhaseChange(oldPhase, newPhase AuthPhase) {}

// OnReplay does nothing
func (n *NoopObserver) OnReplay(count int) {}

// MetricsCollector is an in-memory Observer intended for tests and
// debugging. For production metrics use observers.PrometheusObserver.
//
// Example:
//
//	metrics := sdk.NewMetricsCollector()
//	client, _ := sdk.NewClient(sdk.DefaultConfig().WithObserver(metrics))
//	// ...
//	snapshot := metrics.GetMetrics()
//	fmt.Println(snapshot["duplicates"])
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount map[string]int64
	latencies    map[string][]time.Duration
	errorCount   map[string]int64
	statusCount  map[int]int64
	duplicates   int64
	uploadEvents int64
	phaseChanges []AuthPhase
	replays      int64
	replayBatch  int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount: make(map[string]int64),
		latencies:    make(map[string][]time.Duration),
		errorCount:   make(map[string]int64),
		statusCount:  make(map[int]int64),
	}
}

// OnRequestStart increments request count
func (m *MetricsCollector) OnRequestStart(method, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[method+" "+url]++
}

// OnRequestEnd records request duration, status and errors
func (m *MetricsCollector) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + url
	m.latencies[key] = append(m.latencies[key], duration)
	m.statusCount[statusCode]++
	if err != nil {
		m.errorCount[key]++
	}
}

// OnDuplicateSuppressed counts suppressed calls
func (m *MetricsCollector) OnDuplicateSuppressed(method, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicates++
}

// OnUploadProgress counts progress events
func (m *MetricsCollector) OnUploadProgress(url string, progress Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadEvents++
}

// OnAuthPhaseChange records the new phase
func (m *MetricsCollector) OnAuthPhaseChange(oldPhase, newPhase AuthPhase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phaseChanges = append(m.phaseChanges, newPhase)
}

// OnReplay counts replay batches and replayed calls
func (m *MetricsCollector) OnReplay(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replayBatch++
	m.replays += int64(count)
}

// GetMetrics returns a copy of the collected metrics:
//   - "requests": map of "METHOD url" to launch count
//   - "latencies": map of "METHOD url" to durations
//   - "errors": map of "METHOD url" to error count
//   - "statuses": map of status code to count
//   - "duplicates", "upload_events", "replays", "replay_batches": totals
//   - "phases": auth phases entered, in order
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requestsCopy := make(map[string]int64, len(m.requestCount))
	for k, v := range m.requestCount {
		requestsCopy[k] = v
	}

	latenciesCopy := make(map[string][]time.Duration, len(m.latencies))
	for k, v := range m.latencies {
		latenciesCopy[k] = append([]time.Duration(nil), v...)
	}

	errorsCopy := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errorsCopy[k] = v
	}

	statusCopy := make(map[int]int64, len(m.statusCount))
	for k, v := range m.statusCount {
		statusCopy[k] = v
	}

	return map[string]interface{}{
		"requests":       requestsCopy,
		"latencies":      latenciesCopy,
		"errors":         errorsCopy,
		"statuses":       statusCopy,
		"duplicates":     m.duplicates,
		"upload_events":  m.uploadEvents,
		"replays":        m.replays,
		"replay_batches": m.replayBatch,
		"phases":         append([]AuthPhase(nil), m.phaseChanges...),
	}
}

// CompositeObserver fans every event out to several observers. A panicking
// observer is recovered so the others still run.
type CompositeObserver struct {
	observers []Observer
	logger    logrus.FieldLogger
}

// NewCompositeObserver combines observers into one.
//
//	observer := sdk.NewCompositeObserver(
//	    observers.NewLogObserver(logger),
//	    observers.NewPrometheusObserver(prometheus.DefaultRegisterer),
//	)
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers, logger: logrus.StandardLogger()}
}

func (c *CompositeObserver) each(event string, fn func(Observer)) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.WithFields(logrus.Fields{
						"event": event,
						"panic": r,
					}).Error("observer panicked")
				}
			}()
			fn(obs)
		}()
	}
}

// OnRequestStart calls OnRequestStart on all observers
func (c *CompositeObserver) OnRequestStart(method, url string) {
	c.each("request_start", func(o Observer) { o.OnRequestStart(method, url) })
}

// OnRequestEnd calls OnRequestEnd on all observers
func (c *CompositeObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	c.each("request_end", func(o Observer) { o.OnRequestEnd(method, url, statusCode, duration, err) })
}

// OnDuplicateSuppressed calls OnDuplicateSuppressed on all observers
func (c *CompositeObserver) OnDuplicateSuppressed(method, url string) {
	c.each("duplicate", func(o Observer) { o.OnDuplicateSuppressed(method, url) })
}

// OnUploadProgress calls OnUploadProgress on all observers
func (c *CompositeObserver) OnUploadProgress(url string, progress Progress) {
	c.each("upload_progress", func(o Observer) { o.OnUploadProgress(url, progress) })
}

// OnAuthPhaseChange calls OnAuthPhaseChange on all observers
func (c *CompositeObserver) OnAuthPhaseChange(oldPhase, newPhase AuthPhase) {
	c.each("auth_phase", func(o Observer) { o.OnAuthPhaseChange(oldPhase, newPhase) })
}

// OnReplay calls OnReplay on all observers
func (c *CompositeObserver) OnReplay(count int) {
	c.each("replay", func(o Observer) { o.OnReplay(count) })
}
