// Package config loads the birbcall CLI configuration from a YAML file,
// a .env file and BIRBCALL_ environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/birbparty/birb-call/sdk"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// BIRBCALL_API_BASE_URL for api.base_url.
const EnvPrefix = "BIRBCALL"

// Config is the CLI configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Download DownloadConfig `mapstructure:"download"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Events   EventsConfig   `mapstructure:"events"`

	Endpoints []EndpointConfig `mapstructure:"endpoints" validate:"dive"`
}

// EndpointConfig declares an endpoint the CLI registers on startup
type EndpointConfig struct {
	Verb  string `mapstructure:"verb" validate:"required,oneof=GET POST_FORM POST_JSON PUT DELETE"`
	Route string `mapstructure:"route" validate:"required,startswith=/"`
}

// APIConfig describes the target API
type APIConfig struct {
	BaseURL        string            `mapstructure:"base_url" validate:"required,url"`
	Timeout        time.Duration     `mapstructure:"timeout" validate:"gt=0"`
	UploadTimeout  time.Duration     `mapstructure:"upload_timeout" validate:"gt=0"`
	SettleDelay    time.Duration     `mapstructure:"settle_delay" validate:"gte=0"`
	MaxAuthRetries int               `mapstructure:"max_auth_retries" validate:"gte=0,lte=100"`
	UserAgent      string            `mapstructure:"user_agent"`
	Headers        map[string]string `mapstructure:"headers"`
}

// AuthConfig holds the bearer token and, optionally, what is needed to
// refresh it through an OAuth2 token endpoint
type AuthConfig struct {
	Token        string `mapstructure:"token"`
	RefreshToken string `mapstructure:"refresh_token"`
	TokenURL     string `mapstructure:"token_url" validate:"omitempty,url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// CanRefresh reports whether an OAuth2 refresh is configured.
func (a AuthConfig) CanRefresh() bool {
	return a.RefreshToken != "" && a.TokenURL != ""
}

// DownloadConfig controls where downloads are written
type DownloadConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig controls CLI log output
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// EventsConfig enables publishing auth events to NATS
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url" validate:"omitempty,url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// LoadConfig loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Config file (birbcall.yaml)
// 3. Defaults (lowest priority)
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("birbcall")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/birbcall")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults also register every key, so AutomaticEnv can see them
	// during Unmarshal.
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", sdk.DefaultRequestTimeout)
	v.SetDefault("api.upload_timeout", sdk.DefaultUploadTimeout)
	v.SetDefault("api.settle_delay", sdk.DefaultSettleDelay)
	v.SetDefault("api.max_auth_retries", sdk.DefaultMaxAuthRetries)
	v.SetDefault("api.user_agent", "birbcall-cli")

	v.SetDefault("auth.token", "")
	v.SetDefault("auth.refresh_token", "")
	v.SetDefault("auth.token_url", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")

	v.SetDefault("download.dir", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "birbcall.events")
}

// Validate checks cfg against its validation tags
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		if validationErrs, ok := err.(validator.ValidationErrors); ok {
			var messages []string
			for _, e := range validationErrs {
				messages = append(messages, fmt.Sprintf(
					"field '%s' failed validation: %s (value: '%v')",
					e.Namespace(),
					e.Tag(),
					e.Value(),
				))
			}
			return fmt.Errorf("validation failed:\n  %s", strings.Join(messages, "\n  "))
		}
		return err
	}
	return nil
}

// SDKConfig converts the API and download settings into a client config.
func (c *Config) SDKConfig() *sdk.Config {
	sc := sdk.DefaultConfig().
		WithBaseURL(c.API.BaseURL).
		WithRequestTimeout(c.API.Timeout).
		WithUploadTimeout(c.API.UploadTimeout).
		WithSettleDelay(c.API.SettleDelay).
		WithMaxAuthRetries(c.API.MaxAuthRetries).
		WithDownloadDir(c.Download.Dir)
	if c.API.UserAgent != "" {
		sc.WithUserAgent(c.API.UserAgent)
	}
	for k, v := range c.API.Headers {
		sc.WithHeader(k, v)
	}
	return sc
}
