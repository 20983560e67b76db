package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for use with errors.Is.
//
// Example:
//
//	client.SetErrorHandler(func(err error) {
//	    switch {
//	    case errors.Is(err, sdk.ErrAuthExhausted):
//	        showLogin()
//	    case errors.Is(err, sdk.ErrTimeout):
//	        toast("the server took too long")
//	    }
//	})
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUndefinedEndpoint is returned synchronously by Call when the
	// (verb, route) pair was never defined
	ErrUndefinedEndpoint = errors.New("undefined endpoint")

	// ErrTransport is delivered when the request never produced a response
	ErrTransport = errors.New("transport error")

	// ErrTimeout is delivered when a request deadline expires or the
	// request is cancelled
	ErrTimeout = errors.New("request timeout")

	// ErrHTTP is delivered for non-2xx responses that are not absorbed by
	// auth recovery
	ErrHTTP = errors.New("http error")

	// ErrUnauthorized matches 401 responses that reached the error handler
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAuthExhausted is delivered once when token recovery gives up
	ErrAuthExhausted = errors.New("authentication recovery exhausted")

	// ErrResponseDecode marks a 2xx response whose body was not valid JSON
	ErrResponseDecode = errors.New("response decode error")

	// ErrClientClosed is returned by Call after Close
	ErrClientClosed = errors.New("client closed")
)

// ErrorType categorizes errors produced by the client.
type ErrorType int

const (
	// ErrorTypeUnknown represents an unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeUndefinedEndpoint is a programming error raised by Call
	ErrorTypeUndefinedEndpoint
	// ErrorTypeTransport represents network-level failures
	ErrorTypeTransport
	// ErrorTypeTimeout represents an expired deadline or a cancellation
	ErrorTypeTimeout
	// ErrorTypeHTTP represents a non-2xx response
	ErrorTypeHTTP
	// ErrorTypeUnauthorized represents a 401 that was not recovered
	ErrorTypeUnauthorized
	// ErrorTypeAuthExhausted represents the end of token recovery
	ErrorTypeAuthExhausted
	// ErrorTypeDecode represents a malformed success body
	ErrorTypeDecode
	// ErrorTypeValidation represents invalid configuration or input
	ErrorTypeValidation
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeUndefinedEndpoint:
		return "undefined_endpoint"
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeHTTP:
		return "http"
	case ErrorTypeUnauthorized:
		return "unauthorized"
	case ErrorTypeAuthExhausted:
		return "auth_exhausted"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the error value handed to the error handler. It carries the
// category, the HTTP status when there was one, and the request that failed.
//
// Example:
//
//	var callErr *sdk.Error
//	if errors.As(err, &callErr) && callErr.Context != nil {
//	    log.Printf("%s %s failed with %d", callErr.Context.Method,
//	        callErr.Context.URL, callErr.StatusCode)
//	}
type Error struct {
	// Type categorizes the error for handling decisions
	Type ErrorType `json:"type"`
	// Code is an optional error code from the server
	Code string `json:"code,omitempty"`
	// Message is a human-readable error description
	Message string `json:"message"`
	// StatusCode is the HTTP status, zero when no response was received
	StatusCode int `json:"status_code,omitempty"`
	// Details contains additional error metadata
	Details map[string]interface{} `json:"details,omitempty"`
	// RequestID is the X-Request-ID sent with the failed request
	RequestID string `json:"request_id,omitempty"`
	// Timestamp is when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// Context describes the failed request
	Context *ErrorContext `json:"context,omitempty"`
	// wrapped is the underlying error, if any
	wrapped error
}

// ErrorContext describes the request an error belongs to.
type ErrorContext struct {
	// URL is the full URL of the failed request
	URL string `json:"url,omitempty"`
	// Method is the HTTP method used
	Method string `json:"method,omitempty"`
	// Route is the route template the call was made against
	Route string `json:"route,omitempty"`
	// Replay is true when the failed request was a replay after a token refresh
	Replay bool `json:"replay,omitempty"`
	// Duration is how long the request ran before failing
	Duration time.Duration `json:"duration,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Context != nil && e.Context.URL != "" {
		return fmt.Sprintf("%s error: %s (%s %s)", e.Type, e.Message, e.Context.Method, e.Context.URL)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	switch e.Type {
	case ErrorTypeUndefinedEndpoint:
		return target == ErrUndefinedEndpoint
	case ErrorTypeTransport:
		return target == ErrTransport
	case ErrorTypeTimeout:
		return target == ErrTimeout
	case ErrorTypeHTTP:
		return target == ErrHTTP
	case ErrorTypeUnauthorized:
		return target == ErrUnauthorized || target == ErrHTTP
	case ErrorTypeAuthExhausted:
		return target == ErrAuthExhausted
	case ErrorTypeDecode:
		return target == ErrResponseDecode
	case ErrorTypeValidation:
		return target == ErrInvalidConfig
	}
	return false
}

// WithContext adds error context
func (e *Error) WithContext(ctx *ErrorContext) *Error {
	e.Context = ctx
	return e
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewError creates a new error of the given type
func NewError(errType ErrorType, message string, wrapped error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		wrapped:   wrapped,
	}
}

func newUndefinedEndpointError(verb Verb, route string) *Error {
	return NewError(ErrorTypeUndefinedEndpoint, fmt.Sprintf("no endpoint defined for %s %s", verb, route), nil).
		WithDetail("verb", verb.String()).
		WithDetail("route", route)
}

// APIError is the error body returned by the server for non-2xx responses.
// Bodies that are not shaped like {"error": "...", "code": "..."} leave
// Message empty and fall back to the status text.
type APIError struct {
	// StatusCode is the HTTP status code from the response
	StatusCode int `json:"-"`
	// Message is the error message from the server
	Message string `json:"error"`
	// Code is an optional error code for programmatic handling
	Code string `json:"code,omitempty"`
	// Details provides additional error information
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("API error (status %d): %s - %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsUnauthorized returns true for 401 responses
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsServerError returns true if the error is a server error
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// ToError converts APIError to the client Error type
func (e *APIError) ToError() *Error {
	errType := ErrorTypeHTTP
	if e.IsUnauthorized() {
		errType = ErrorTypeUnauthorized
	}

	err := NewError(errType, e.Message, e)
	err.Code = e.Code
	err.StatusCode = e.StatusCode
	if e.Details != "" {
		err.WithDetail("api_details", e.Details)
	}
	return err
}

func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
		apiErr.StatusCode = statusCode
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

// NetworkError represents a failure before any response was received, such
// as a refused connection or a DNS error.
type NetworkError struct {
	// Op is the operation that failed (e.g., "do", "read body", "encode")
	Op string
	// Err is the underlying network error
	Err error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ToError converts NetworkError to the client Error type
func (e *NetworkError) ToError() *Error {
	err := NewError(ErrorTypeTransport, e.Error(), e)
	err.WithDetail("operation", e.Op)
	return err
}

// TimeoutError represents a request whose deadline expired or that was
// cancelled before it completed.
type TimeoutError struct {
	// Op is the operation that timed out
	Op string
	// After is the deadline that applied to the request
	After time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("timeout during %s after %s", e.Op, e.After)
	}
	return fmt.Sprintf("timeout during %s", e.Op)
}

// ToError converts TimeoutError to the client Error type
func (e *TimeoutError) ToError() *Error {
	err := NewError(ErrorTypeTimeout, e.Error(), e)
	err.WithDetail("operation", e.Op)
	return err
}

// IsUnauthorized reports whether err is a 401 that reached the error handler.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsTimeout reports whether err is a deadline or cancellation error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsAuthExhausted reports whether err signals that token recovery gave up.
func IsAuthExhausted(err error) bool {
	return errors.Is(err, ErrAuthExhausted)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var callErr *Error
	if errors.As(err, &callErr) && callErr.StatusCode != 0 {
		return callErr.StatusCode
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
