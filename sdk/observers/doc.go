// Package observers provides sdk.Observer implementations backed by
// Prometheus, logrus and NATS, plus an http.RoundTripper that traces
// outgoing calls with OpenTelemetry.
//
// Observers can be combined with sdk.NewCompositeObserver:
//
//	reg := prometheus.NewRegistry()
//	observer := sdk.NewCompositeObserver(
//	    observers.NewPrometheusObserver(reg),
//	    observers.NewLogObserver(logrus.StandardLogger()),
//	)
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithObserver(observer).
//	    WithHTTPClient(&http.Client{Transport: observers.NewTracingTransport(nil, nil)}))
package observers
