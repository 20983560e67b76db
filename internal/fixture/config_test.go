package fixture

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %q, want /metrics", cfg.MetricsPath)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL", "2s")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("FIXTURE_USERNAME", "robin")
	t.Setenv("TELEMETRY_ENABLED", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.AccessTokenTTL != 2*time.Second {
		t.Errorf("AccessTokenTTL = %v, want 2s", cfg.AccessTokenTTL)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q, want s3cret", cfg.JWTSecret)
	}
	if cfg.Username != "robin" {
		t.Errorf("Username = %q, want robin", cfg.Username)
	}
	if cfg.TelemetryEnabled {
		t.Error("TelemetryEnabled = true, want false")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PORT", "eighty"},
		{"SHUTDOWN_TIMEOUT", "soon"},
		{"REQUEST_TIMEOUT", "1m"},
		{"ACCESS_TOKEN_TTL", "15"},
		{"REFRESH_TOKEN_TTL", "forever"},
		{"MAX_UPLOAD_BYTES", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() with %s=%q: expected error", tt.key, tt.value)
			}
		})
	}
}
