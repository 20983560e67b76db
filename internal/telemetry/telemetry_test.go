package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestApp(t *testing.T) (*fiber.App, *Metrics, *tracetest.InMemoryExporter, *test.Hook) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(), &Config{ServiceName: "test", SamplingRate: 1}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	metrics := NewMetrics()

	app := fiber.New()
	app.Use(FiberMetricsMiddleware(metrics, tp.Tracer("test")))
	app.Use(FiberLoggingMiddleware(logger))
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": c.Params("id")})
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusServiceUnavailable, "down")
	})
	return app, metrics, exporter, hook
}

func TestFiberMetricsMiddleware(t *testing.T) {
	app, metrics, exporter, _ := newTestApp(t)

	for _, id := range []string{"1", "2"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.activeRequests))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /items/1", spans[0].Name)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
}

func TestFiberMetricsMiddleware_PropagatesParent(t *testing.T) {
	app, _, exporter, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	_, err := app.Test(req)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
}

func TestFiberMetricsMiddleware_ErrorStatus(t *testing.T) {
	app, metrics, exporter, hook := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "503")))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "down", spans[0].Status.Description)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Request failed", entry.Message)
}

func TestMetrics_Handler(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordTokenIssued("password")
	metrics.RecordTokenRejected("expired")
	metrics.RecordRevocation()
	metrics.RecordUpload(42)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `fixture_tokens_issued_total{grant="password"} 1`)
	assert.Contains(t, body, `fixture_tokens_rejected_total{reason="expired"} 1`)
	assert.Contains(t, body, "fixture_upload_bytes_total 42")
	assert.Contains(t, body, "service_up 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{ServiceName: "birb-call", ServiceVersion: "1.2.3", Environment: "test", LogLevel: "debug"}
	logger := NewLogger(cfg)
	hook := test.NewLocal(logger)

	logger.WithField("k", "v").Info("hello")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.Equal(t, "birb-call", entry.Data["service.name"])
	assert.Equal(t, "v", entry.Data["k"])
}

func TestWithContext(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(), &Config{ServiceName: "test", SamplingRate: 1}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	entry := WithContext(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry.Data["trace.id"])
	assert.NotContains(t, WithContext(context.Background()).Data, "trace.id")
}

func TestNewLogger_FileHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "birbcall.json")
	logger := NewLogger(&Config{ServiceName: "birb-call", LogLevel: "info", LogFormat: "text", LogFile: path})

	logger.WithField("k", "v").Info("to file")
	logger.Debug("filtered")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "to file", entry["message"])
	assert.Equal(t, "v", entry["k"])
	assert.Equal(t, "birb-call", entry["service.name"])
	assert.Contains(t, entry, "@timestamp")
}
