package telemetry

import (
	"os"
	"strconv"
)

// Config holds the configuration for telemetry
type Config struct {
	OTLPEndpoint   string
	ServiceName    string
	Environment    string
	ServiceVersion string

	SamplingRate float64
	LogLevel     string
	// LogFormat is "json" or "text"
	LogFormat string
	// LogFile, when set, also receives every entry as JSON
	LogFile string

	EnableTracing bool
	EnableMetrics bool
}

// NewConfigFromEnv creates a new config from environment variables
func NewConfigFromEnv(serviceName string) *Config {
	return &Config{
		ServiceName:    getEnv("OTEL_SERVICE_NAME", serviceName),
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServiceVersion: getEnv("SERVICE_VERSION", "unknown"),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		LogFile:        getEnv("LOG_FILE", ""),
		SamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
		EnableTracing:  getEnvBool("ENABLE_TRACING", false),
		EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
