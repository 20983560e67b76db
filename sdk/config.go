package sdk

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultRequestTimeout is the deadline of the standard transport.
	DefaultRequestTimeout = 5 * time.Minute
	// DefaultUploadTimeout is the deadline of the upload transport.
	DefaultUploadTimeout = 30 * time.Second
	// DefaultSettleDelay is how long Recall waits before replaying.
	DefaultSettleDelay = time.Second
	// DefaultMaxAuthRetries is the number of refresh cycles allowed
	// before recovery is exhausted.
	DefaultMaxAuthRetries = 3
)

// ErrorHandler receives every runtime error produced by the client. It may
// be called concurrently.
type ErrorHandler func(err error)

// Config holds the configuration for the client.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://api.example.com/v1").
//	    WithSettleDelay(250 * time.Millisecond).
//	    WithErrorHandler(func(err error) { log.Println(err) })
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL is prepended verbatim to every resolved route.
	// Default: "http://localhost:8080"
	BaseURL string `validate:"required,url"`

	// RequestTimeout is the deadline of the standard transport.
	// Default: 5m
	RequestTimeout time.Duration `validate:"gt=0"`

	// UploadTimeout is the deadline of the upload transport used by
	// POST_FORM calls with a progress callback.
	// Default: 30s
	UploadTimeout time.Duration `validate:"gt=0"`

	// SettleDelay is how long Recall waits for requests already in flight
	// before replaying failed calls.
	// Default: 1s
	SettleDelay time.Duration `validate:"gte=0"`

	// MaxAuthRetries is the number of refresh cycles started without a
	// recovered call before recovery gives up. Zero selects the default.
	// Default: 3
	MaxAuthRetries int `validate:"gte=0,lte=100"`

	// RetryResetPolicy decides when a replay batch resets the retry count.
	// Default: ResetOnCleanBatch
	RetryResetPolicy RetryResetPolicy `validate:"gte=0,lte=1"`

	// TransportConfig holds HTTP transport settings used when HTTPClient
	// is nil.
	TransportConfig TransportConfig

	// HTTPClient overrides the client used by both transports. Its Timeout
	// should be zero; deadlines are applied per request.
	HTTPClient *http.Client `validate:"-"`

	// Headers are sent with every request. They are not part of the dedup
	// fingerprint.
	Headers map[string]string `validate:"-"`

	// UserAgent is sent with every request.
	UserAgent string

	// DownloadDir is where Download writes files on native builds.
	// Default: the OS temp directory
	DownloadDir string

	// Observer receives request and auth events.
	// Default: NoopObserver
	Observer Observer `validate:"-"`

	// Logger is used for decode failures and by the default error handler.
	// Default: the logrus standard logger
	Logger logrus.FieldLogger `validate:"-"`

	// ErrorHandler receives every runtime error.
	// Default: log at error level
	ErrorHandler ErrorHandler `validate:"-"`

	// Fingerprinter computes dedup keys.
	// Default: Fingerprint53
	Fingerprinter Fingerprinter `validate:"-"`
}

// TransportConfig holds HTTP connection pool settings.
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	// across all hosts. Zero means no limit.
	// Default: 100
	MaxIdleConns int `validate:"gte=0"`

	// MaxConnsPerHost controls the maximum connections per host.
	// Default: 10
	MaxConnsPerHost int `validate:"gte=0"`

	// IdleConnTimeout is the maximum time an idle connection will remain idle.
	// Default: 90s
	IdleConnTimeout time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a Config with defaults suitable for most uses.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "http://localhost:8080",
		RequestTimeout:   DefaultRequestTimeout,
		UploadTimeout:    DefaultUploadTimeout,
		SettleDelay:      DefaultSettleDelay,
		MaxAuthRetries:   DefaultMaxAuthRetries,
		RetryResetPolicy: ResetOnCleanBatch,
		TransportConfig: TransportConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
		Headers:  make(map[string]string),
		Observer: &NoopObserver{},
	}
}

// WithBaseURL sets the base URL. Routes are appended to it as-is, so it
// should not end with a slash.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithRequestTimeout sets the standard transport deadline.
func (c *Config) WithRequestTimeout(timeout time.Duration) *Config {
	c.RequestTimeout = timeout
	return c
}

// WithUploadTimeout sets the upload transport deadline.
func (c *Config) WithUploadTimeout(timeout time.Duration) *Config {
	c.UploadTimeout = timeout
	return c
}

// WithSettleDelay sets the pause Recall takes before replaying.
func (c *Config) WithSettleDelay(delay time.Duration) *Config {
	c.SettleDelay = delay
	return c
}

// WithMaxAuthRetries sets the refresh budget.
func (c *Config) WithMaxAuthRetries(n int) *Config {
	c.MaxAuthRetries = n
	return c
}

// WithRetryResetPolicy sets how a drained replay batch treats the retry count.
func (c *Config) WithRetryResetPolicy(policy RetryResetPolicy) *Config {
	c.RetryResetPolicy = policy
	return c
}

// WithHTTPClient sets the HTTP client used by both transports.
func (c *Config) WithHTTPClient(client *http.Client) *Config {
	c.HTTPClient = client
	return c
}

// WithHeader adds a header sent with every request.
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithUserAgent sets the User-Agent header.
func (c *Config) WithUserAgent(ua string) *Config {
	c.UserAgent = ua
	return c
}

// WithDownloadDir sets where Download writes files.
func (c *Config) WithDownloadDir(dir string) *Config {
	c.DownloadDir = dir
	return c
}

// WithObserver sets the observer.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithLogger sets the logger.
func (c *Config) WithLogger(logger logrus.FieldLogger) *Config {
	c.Logger = logger
	return c
}

// WithErrorHandler sets the error handler.
func (c *Config) WithErrorHandler(handler ErrorHandler) *Config {
	c.ErrorHandler = handler
	return c
}

// WithFingerprinter replaces the dedup fingerprint function.
func (c *Config) WithFingerprinter(fp Fingerprinter) *Config {
	c.Fingerprinter = fp
	return c
}

var configValidator = validator.New()

// Validate fills unset fields with defaults and checks the result.
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.UploadTimeout == 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	if c.MaxAuthRetries == 0 {
		c.MaxAuthRetries = DefaultMaxAuthRetries
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger().WithField("component", "birbcall")
	}
	if c.Fingerprinter == nil {
		c.Fingerprinter = Fingerprint53
	}

	if err := configValidator.Struct(c); err != nil {
		return NewError(ErrorTypeValidation, formatValidationError(err), err)
	}
	return nil
}

func formatValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return strings.Join(msgs, "; ")
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        c.TransportConfig.MaxIdleConns,
			MaxIdleConnsPerHost: c.TransportConfig.MaxConnsPerHost,
			MaxConnsPerHost:     c.TransportConfig.MaxConnsPerHost,
			IdleConnTimeout:     c.TransportConfig.IdleConnTimeout,
		},
	}
}
