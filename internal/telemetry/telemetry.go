package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Init initializes the global logger and tracer.
func Init(cfg *Config) error {
	InitLogger(cfg)

	if err := InitTracing(cfg); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	L().WithFields(logrus.Fields{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
		"tracing":     cfg.EnableTracing,
	}).Info("Telemetry initialized")

	return nil
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if err := CloseTracing(ctx); err != nil {
		L().WithError(err).Error("Failed to close tracing")
		return err
	}
	return nil
}

// FiberMetricsMiddleware records request metrics and wraps each request in
// a server span. Incoming W3C trace headers become the span's parent.
func FiberMetricsMiddleware(m *Metrics, tracer trace.Tracer) fiber.Handler {
	propagator := Propagator()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.activeRequests.Inc()
		defer m.activeRequests.Dec()

		carrier := make(headerCarrier)
		c.Request().Header.VisitAll(func(key, value []byte) {
			carrier[string(key)] = string(value)
		})
		ctx := propagator.Extract(c.UserContext(), carrier)

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Method(), c.Path()),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.SetUserContext(ctx)

		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		m.RecordHTTPRequest(c.Method(), route, strconv.Itoa(status), time.Since(start))

		span.SetAttributes(
			semconv.HTTPMethodKey.String(c.Method()),
			semconv.HTTPTargetKey.String(c.Path()),
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPStatusCodeKey.Int(status),
		)

		if err != nil {
			RecordError(ctx, err)
			SetErrorStatus(ctx, err.Error())
		} else if status >= 500 {
			SetErrorStatus(ctx, fmt.Sprintf("HTTP %d", status))
		}

		return err
	}
}

// FiberLoggingMiddleware returns a Fiber middleware for structured logging
func FiberLoggingMiddleware(logger logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).Milliseconds(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		}
		if rid, ok := c.Locals("requestid").(string); ok {
			fields["request_id"] = rid
		}
		if span := trace.SpanFromContext(c.UserContext()); span.SpanContext().IsValid() {
			fields["trace.id"] = span.SpanContext().TraceID().String()
		}
		entry := logger.WithFields(fields)

		if err != nil {
			entry.WithError(err).Error("Request failed")
		} else if c.Response().StatusCode() >= 400 {
			entry.Warn("Request completed with error status")
		} else {
			entry.Debug("Request completed")
		}

		return err
	}
}

// headerCarrier adapts fasthttp headers for otel propagation.
type headerCarrier map[string]string

func (h headerCarrier) Get(key string) string {
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (h headerCarrier) Set(key, value string) {
	h[key] = value
}

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}
