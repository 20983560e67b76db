package fixture

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the fixture API configuration
type Config struct {
	// Server configuration
	Host            string
	Port            int
	ShutdownTimeout int
	RequestTimeout  int

	// Token configuration
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Login credentials accepted by POST /auth/login
	Username string
	Password string

	// Upload configuration
	MaxUploadBytes int

	// Telemetry configuration
	TelemetryEnabled bool
	MetricsPath      string
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() *Config {
	return &Config{
		Host:             "0.0.0.0",
		Port:             8080,
		ShutdownTimeout:  30,
		RequestTimeout:   30,
		JWTSecret:        "birbcall-fixture-secret",
		Issuer:           "birbcall-fixture",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  24 * time.Hour,
		Username:         "birb",
		Password:         "tweet",
		MaxUploadBytes:   32 << 20,
		TelemetryEnabled: true,
		MetricsPath:      "/metrics",
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	port, err := strconv.Atoi(getEnvOrDefault("PORT", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", strconv.Itoa(cfg.ShutdownTimeout)))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", strconv.Itoa(cfg.RequestTimeout)))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	accessTTL, err := time.ParseDuration(getEnvOrDefault("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
	}

	refreshTTL, err := time.ParseDuration(getEnvOrDefault("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_TOKEN_TTL: %w", err)
	}

	maxUpload, err := strconv.Atoi(getEnvOrDefault("MAX_UPLOAD_BYTES", strconv.Itoa(cfg.MaxUploadBytes)))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = port
	cfg.ShutdownTimeout = shutdownTimeout
	cfg.RequestTimeout = requestTimeout
	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.Issuer = getEnvOrDefault("JWT_ISSUER", cfg.Issuer)
	cfg.AccessTokenTTL = accessTTL
	cfg.RefreshTokenTTL = refreshTTL
	cfg.Username = getEnvOrDefault("FIXTURE_USERNAME", cfg.Username)
	cfg.Password = getEnvOrDefault("FIXTURE_PASSWORD", cfg.Password)
	cfg.MaxUploadBytes = maxUpload
	cfg.TelemetryEnabled = getEnvOrDefault("TELEMETRY_ENABLED", "true") == "true"
	cfg.MetricsPath = getEnvOrDefault("METRICS_PATH", cfg.MetricsPath)

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
