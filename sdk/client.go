package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client dispatches calls to registered endpoints. It suppresses duplicate
// in-flight requests and recovers from expired bearer tokens by parking
// 401s, refreshing once, and replaying the parked calls.
//
// All methods are safe for concurrent use. Results are delivered
// asynchronously: successful responses to the endpoint's handlers, runtime
// errors to the error handler.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().WithBaseURL("https://api.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Define("/items/{id}", func(resp *sdk.Response) {
//	    var item Item
//	    _ = resp.Decode(&item)
//	})
//
//	launched, err := client.Call(ctx, "/items/{id}", sdk.GET,
//	    sdk.WithPathVariable("id", "42"))
type Client struct {
	config   *Config
	registry *Registry
	standard transport
	upload   transport
	inflight *inFlightTable
	auth     *authMachine
	observer Observer
	logger   logrus.FieldLogger

	handlerMu    sync.RWMutex
	errorHandler ErrorHandler

	// lifecycle guards closed together with wg.Add so Close never races
	// a request being launched.
	lifecycle sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient validates config and returns a ready client. A nil config
// selects DefaultConfig.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpClient := config.httpClient()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:   config,
		registry: NewRegistry(),
		standard: newStandardTransport(httpClient, config.RequestTimeout),
		upload:   newUploadTransport(httpClient, config.UploadTimeout, config.Observer),
		inflight: newInFlightTable(),
		observer: config.Observer,
		logger:   config.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.auth = newAuthMachine(config.MaxAuthRetries, config.RetryResetPolicy, config.Fingerprinter, c.onAuthPhase)
	c.errorHandler = config.ErrorHandler
	if c.errorHandler == nil {
		c.errorHandler = c.logError
	}
	return c, nil
}

// Define registers handler for route and verb (GET when omitted) and
// returns the client for chaining.
func (c *Client) Define(route string, handler Handler, verb ...Verb) *Client {
	c.registry.Register(route, handler, verb...)
	return c
}

// Registry returns the endpoint registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Call launches a request against a defined endpoint.
//
// It returns (true, nil) when a request was launched, and (false, nil) when
// an identical request is still in flight, in which case nothing is sent.
// An undefined endpoint or an unencodable payload is reported synchronously
// and never reaches the error handler.
//
// ctx bounds the request itself; cancelling it fails the request through
// the timeout path.
func (c *Client) Call(ctx context.Context, route string, verb Verb, opts ...CallOption) (bool, error) {
	o := callOptions{params: CallParameters{Route: route, Verb: verb}}
	for _, opt := range opts {
		opt(&o)
	}
	return c.dispatch(ctx, o.params, false, o.onProgress)
}

func (c *Client) dispatch(parent context.Context, call CallParameters, isReplay bool, onProgress ProgressFunc) (bool, error) {
	handlers, err := c.registry.Resolve(call.Verb, call.Route)
	if err != nil {
		return false, err
	}
	if call.Verb == PostForm {
		form, err := asForm(call.Payload)
		if err != nil {
			return false, NewError(ErrorTypeValidation, err.Error(), err)
		}
		call.Payload = nil
		if form != nil {
			call.Payload = form
		}
	}
	call = call.Clone()

	url := c.config.BaseURL + substitutePath(call.Route, call.PathVariables)
	headers := copyStrings(call.Headers)
	if headers == nil {
		headers = make(map[string]string)
	}

	var (
		body        []byte
		contentType string
	)
	switch {
	case call.Verb.hasJSONBody():
		body, err = encodeJSON(call.Payload)
		if err != nil {
			return false, NewError(ErrorTypeValidation, fmt.Sprintf("encode %s payload", call.Verb), err)
		}
		headers["Content-Type"] = "application/json"
	case call.Verb == PostForm:
		form, _ := call.Payload.(Form)
		body, contentType, err = form.encode()
		if err != nil {
			return false, NewError(ErrorTypeValidation, "encode multipart payload", err)
		}
	}

	if authorization, ok := c.auth.authorization(); ok {
		headers["Authorization"] = authorization
	}

	fp := requestKey(c.config.Fingerprinter, url, call.Verb, call.Payload, headers)

	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.closed {
		return false, NewError(ErrorTypeUnknown, "client closed", ErrClientClosed)
	}

	ctx, cancel := context.WithCancel(parent)
	if !c.inflight.tryAcquire(fp, cancel) {
		cancel()
		c.observer.OnDuplicateSuppressed(call.Verb.Method(), url)
		return false, nil
	}

	req := &outgoingRequest{
		method:     call.Verb.Method(),
		url:        url,
		header:     c.buildHeader(headers, contentType),
		body:       body,
		onProgress: onProgress,
	}

	t := c.standard
	if call.Verb == PostForm && onProgress != nil {
		t = c.upload
	}

	c.wg.Add(1)
	go c.run(ctx, cancel, fp, t, req, call, handlers, isReplay)
	return true, nil
}

func (c *Client) buildHeader(headers map[string]string, contentType string) http.Header {
	h := make(http.Header, len(c.config.Headers)+len(headers)+4)
	for k, v := range c.config.Headers {
		h.Set(k, v)
	}
	for k, v := range headers {
		h.Set(k, v)
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	if c.config.UserAgent != "" {
		h.Set("User-Agent", c.config.UserAgent)
	}
	h.Set("X-Request-ID", uuid.NewString())
	return h
}

func encodeJSON(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	return json.Marshal(payload)
}

func (c *Client) run(ctx context.Context, cancel context.CancelFunc, fp uint64, t transport, req *outgoingRequest, call CallParameters, handlers []Handler, isReplay bool) {
	defer c.wg.Done()
	defer cancel()

	start := time.Now()
	c.observer.OnRequestStart(req.method, req.url)
	resp, err := t.execute(ctx, req)

	c.inflight.markResolved(fp)
	c.complete(req, call, handlers, isReplay, resp, err, time.Since(start))
	c.inflight.purge()
}

// complete routes the outcome of a request: success to the handlers, 401 to
// the auth machine, everything else to the error handler.
func (c *Client) complete(req *outgoingRequest, call CallParameters, handlers []Handler, isReplay bool, resp *rawResponse, err error, duration time.Duration) {
	errCtx := &ErrorContext{
		URL:      req.url,
		Method:   req.method,
		Route:    call.Route,
		Replay:   isReplay,
		Duration: duration,
	}
	requestID := req.header.Get("X-Request-ID")

	if err != nil {
		callErr := asCallError(err).WithContext(errCtx)
		callErr.RequestID = requestID
		c.observer.OnRequestEnd(req.method, req.url, 0, duration, callErr)
		c.deliver(callErr)
		if isReplay {
			c.replayDone(false)
		}
		return
	}

	response := &Response{
		Call:       call,
		URL:        req.url,
		StatusCode: resp.statusCode,
		Header:     resp.header,
		Body:       resp.body,
		Replay:     isReplay,
	}

	switch {
	case resp.statusCode >= 200 && resp.statusCode < 300:
		c.succeed(req, response, handlers, isReplay, duration, errCtx)

	case resp.statusCode == http.StatusUnauthorized:
		apiErr := parseAPIError(resp.statusCode, resp.body).ToError().WithContext(errCtx)
		apiErr.RequestID = requestID
		c.observer.OnRequestEnd(req.method, req.url, resp.statusCode, duration, apiErr)
		c.unauthorized(call, response, apiErr, isReplay)

	default:
		apiErr := parseAPIError(resp.statusCode, resp.body).ToError().WithContext(errCtx)
		apiErr.RequestID = requestID
		c.observer.OnRequestEnd(req.method, req.url, resp.statusCode, duration, apiErr)
		c.deliver(apiErr)
		if isReplay {
			c.replayDone(false)
		}
	}
}

func (c *Client) succeed(req *outgoingRequest, response *Response, handlers []Handler, isReplay bool, duration time.Duration, errCtx *ErrorContext) {
	if len(response.Body) > 0 {
		if err := json.Unmarshal(response.Body, &response.Payload); err != nil {
			decodeErr := NewError(ErrorTypeDecode, "response body is not valid JSON", err).WithContext(errCtx)
			decodeErr.StatusCode = response.StatusCode
			c.observer.OnRequestEnd(req.method, req.url, response.StatusCode, duration, decodeErr)
			c.logger.WithFields(logrus.Fields{
				"url":    req.url,
				"method": req.method,
				"status": response.StatusCode,
				"bytes":  len(response.Body),
			}).WithError(err).Warn("failed to decode response body")
			c.settleSuccess(isReplay)
			return
		}
	}

	c.observer.OnRequestEnd(req.method, req.url, response.StatusCode, duration, nil)
	c.settleSuccess(isReplay)

	for _, handler := range handlers {
		c.invoke(handler, response)
	}
}

func (c *Client) settleSuccess(isReplay bool) {
	if isReplay {
		c.replayDone(true)
		return
	}
	c.auth.onSuccess()
}

func (c *Client) invoke(handler Handler, response *Response) {
	defer func() {
		if r := recover(); r != nil {
			c.deliver(NewError(ErrorTypeUnknown, fmt.Sprintf("handler panicked: %v", r), nil).
				WithContext(&ErrorContext{URL: response.URL, Route: response.Call.Route, Replay: response.Replay}))
		}
	}()
	handler(response)
}

func (c *Client) unauthorized(call CallParameters, response *Response, apiErr *Error, isReplay bool) {
	action, handler := c.auth.onUnauthorized(call, isReplay)

	switch action {
	case actionRefresh:
		c.wg.Add(1)
		go c.revalidate(handler, response)
	case actionExhausted:
		c.deliver(NewError(ErrorTypeAuthExhausted,
			fmt.Sprintf("gave up after %d token refreshes", c.config.MaxAuthRetries), apiErr))
	case actionSurface:
		c.deliver(apiErr)
	case actionCaptured:
		c.logger.WithFields(logrus.Fields{
			"route":  call.Route,
			"replay": isReplay,
		}).Debug("parked unauthorized call for replay")
	}

	if isReplay {
		c.replayDone(false)
	}
}

// replayDone settles one replay. When it was the last of its batch, calls
// parked during the batch have no replay left to ride on and are reported
// as unauthorized.
func (c *Client) replayDone(ok bool) {
	for _, call := range c.auth.replayDone(ok) {
		err := NewError(ErrorTypeUnauthorized, "still unauthorized after token refresh", ErrUnauthorized).
			WithContext(&ErrorContext{
				URL:    c.config.BaseURL + call.ResolvePath(),
				Method: call.Verb.Method(),
				Route:  call.Route,
			})
		err.StatusCode = http.StatusUnauthorized
		c.deliver(err)
	}
}

func (c *Client) revalidate(handler RevalidationHandler, failed *Response) {
	defer c.wg.Done()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("revalidation handler panicked: %v", r)
			}
		}()
		return handler(c.ctx, c, failed)
	}()

	if err != nil {
		c.exhaustAuth(err)
	}
}

func (c *Client) exhaustAuth(cause error) {
	if c.auth.exhaust() {
		c.deliver(NewError(ErrorTypeAuthExhausted, "token refresh failed", cause))
	}
}

// Recall replays every call parked during the current refresh, after the
// configured settle delay. Revalidation handlers call it once the new token
// is installed. With nothing parked, the refresh simply ends.
func (c *Client) Recall() {
	c.lifecycle.RLock()
	if c.closed {
		c.lifecycle.RUnlock()
		return
	}
	c.wg.Add(1)
	c.lifecycle.RUnlock()

	go func() {
		defer c.wg.Done()

		if delay := c.config.SettleDelay; delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-c.ctx.Done():
				timer.Stop()
				c.auth.abandonReplay()
				return
			}
		}

		calls := c.auth.beginReplay()
		if len(calls) == 0 {
			return
		}
		c.observer.OnReplay(len(calls))

		for _, call := range calls {
			launched, err := c.dispatch(c.ctx, call, true, nil)
			switch {
			case err != nil:
				c.deliver(err)
				c.replayDone(false)
			case !launched:
				// an identical request is already running with the new token
				c.replayDone(true)
			}
		}
	}()
}

// SetBearerToken installs token and activates auth. It also ends an
// exhausted recovery, so the next 401 starts a fresh refresh cycle.
func (c *Client) SetBearerToken(token string) {
	c.auth.setToken(token)

	if exp, err := TokenExpiry(token); err == nil {
		c.logger.WithField("expires_at", exp.Format(time.RFC3339)).Debug("bearer token installed")
	}
}

// BearerToken returns the current token and whether one is installed.
func (c *Client) BearerToken() (string, bool) {
	return c.auth.bearerToken()
}

// SetRevalidationHandler sets the handler run after the first 401 of a
// refresh cycle, and activates auth.
func (c *Client) SetRevalidationHandler(handler RevalidationHandler) {
	c.auth.setHandler(handler)
}

// SetErrorHandler replaces the error handler. A nil handler restores the
// default, which logs.
func (c *Client) SetErrorHandler(handler ErrorHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	if handler == nil {
		handler = c.logError
	}
	c.errorHandler = handler
}

// ResetAuth discards the token and all recovery state and deactivates auth.
func (c *Client) ResetAuth() {
	c.auth.reset()
}

// AuthSnapshot returns a copy of the current auth state.
func (c *Client) AuthSnapshot() AuthSnapshot {
	return c.auth.snapshot()
}

// InFlight returns the number of in-flight table entries, including
// resolved ones that have not been purged yet.
func (c *Client) InFlight() int {
	return c.inflight.len()
}

// Wait blocks until every launched request, revalidation and pending
// replay has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close cancels all outstanding requests, which complete with timeout
// errors, and waits for them. Calls made after Close fail with
// ErrClientClosed.
func (c *Client) Close() error {
	c.lifecycle.Lock()
	if c.closed {
		c.lifecycle.Unlock()
		return nil
	}
	c.closed = true
	c.lifecycle.Unlock()

	c.inflight.cancelAll()
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Client) deliver(err error) {
	c.handlerMu.RLock()
	handler := c.errorHandler
	c.handlerMu.RUnlock()
	handler(err)
}

func (c *Client) onAuthPhase(oldPhase, newPhase AuthPhase) {
	c.logger.WithFields(logrus.Fields{
		"from": oldPhase.String(),
		"to":   newPhase.String(),
	}).Debug("auth phase changed")
	c.observer.OnAuthPhaseChange(oldPhase, newPhase)
}

func (c *Client) logError(err error) {
	entry := c.logger.WithError(err)
	if callErr := asCallError(err); callErr != nil {
		fields := logrus.Fields{"error_type": callErr.Type.String()}
		if callErr.StatusCode != 0 {
			fields["status"] = callErr.StatusCode
		}
		if callErr.RequestID != "" {
			fields["request_id"] = callErr.RequestID
		}
		if callErr.Context != nil {
			fields["url"] = callErr.Context.URL
			fields["method"] = callErr.Context.Method
			fields["replay"] = callErr.Context.Replay
		}
		entry = entry.WithFields(fields)
	}
	entry.Error("request failed")
}

// asCallError returns err as *Error, wrapping foreign errors as unknown.
func asCallError(err error) *Error {
	if callErr, ok := err.(*Error); ok {
		return callErr
	}
	return NewError(ErrorTypeUnknown, err.Error(), err)
}
