package sdk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// outgoingRequest is a fully built request, ready for a transport.
type outgoingRequest struct {
	method     string
	url        string
	header     http.Header
	body       []byte
	onProgress ProgressFunc
}

type rawResponse struct {
	statusCode int
	header     http.Header
	body       []byte
}

// transport executes a request under its own deadline. Cancelling ctx, or
// the deadline expiring, yields an error matching ErrTimeout.
type transport interface {
	execute(ctx context.Context, req *outgoingRequest) (*rawResponse, error)
}

// standardTransport buffers the whole response body. It is used for every
// call except POST_FORM calls that asked for progress.
type standardTransport struct {
	client  *http.Client
	timeout time.Duration
}

func newStandardTransport(client *http.Client, timeout time.Duration) *standardTransport {
	return &standardTransport{client: client, timeout: timeout}
}

func (t *standardTransport) execute(ctx context.Context, req *outgoingRequest) (*rawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	return roundTrip(ctx, t.client, req, body, int64(len(req.body)), t.timeout)
}

func roundTrip(ctx context.Context, client *http.Client, req *outgoingRequest, body io.Reader, size int64, timeout time.Duration) (*rawResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, (&NetworkError{Op: "build request", Err: err}).ToError()
	}
	if body != nil {
		httpReq.ContentLength = size
	}
	httpReq.Header = req.header.Clone()

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, "do", err, timeout)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, "read body", err, timeout)
	}

	return &rawResponse{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       data,
	}, nil
}

// classifyTransportError maps cancellation and deadline errors to the
// timeout path and everything else to a transport error.
func classifyTransportError(ctx context.Context, op string, err error, timeout time.Duration) *Error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		after := timeout
		if errors.Is(ctx.Err(), context.Canceled) {
			after = 0
		}
		return (&TimeoutError{Op: op, After: after}).ToError()
	}
	return (&NetworkError{Op: op, Err: err}).ToError()
}
