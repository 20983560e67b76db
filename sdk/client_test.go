package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/birbparty/birb-call/internal/mockapi"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okItem(id string) mockapi.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]string{"id": id}
	}
}

func TestCall_UndefinedEndpoint(t *testing.T) {
	server := newMockServer(t)
	client, sink, _ := newTestClient(t, server.URL)
	client.Define("/items", nil)

	tests := []struct {
		name  string
		route string
		verb  Verb
	}{
		{"unknown route", "/missing", GET},
		{"known route with other verb", "/items", DELETE},
		{"template differs from defined route", "/items/{id}", GET},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launched, err := client.Call(context.Background(), tt.route, tt.verb)
			require.Error(t, err)
			assert.False(t, launched)
			assert.True(t, errors.Is(err, ErrUndefinedEndpoint))
		})
	}

	client.Wait()
	assert.Equal(t, 0, server.RequestCount())
	assert.Empty(t, sink.all())
}

func TestCall_PathSubstitutionAndHandlerOrder(t *testing.T) {
	server := newMockServer(t)
	server.RegisterHandler("GET /items/42", okItem("42"))
	client, sink, _ := newTestClient(t, server.URL)

	var (
		mu    sync.Mutex
		order []string
		got   *Response
	)
	client.
		Define("/items/{id}", func(resp *Response) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, "first")
			got = resp
		}).
		Define("/items/{id}", func(resp *Response) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, "second")
		})

	launched, err := client.Call(context.Background(), "/items/{id}", GET, WithPathVariable("id", "42"))
	require.NoError(t, err)
	assert.True(t, launched)
	client.Wait()

	assert.Equal(t, []string{"first", "second"}, order)
	require.NotNil(t, got)
	assert.Equal(t, server.URL+"/items/42", got.URL)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, map[string]interface{}{"id": "42"}, got.Payload)
	assert.False(t, got.Replay)
	assert.Equal(t, "/items/{id}", got.Call.Route)

	var item struct{ ID string }
	require.NoError(t, got.Decode(&item))
	assert.Equal(t, "42", item.ID)

	requests := server.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/items/42", requests[0].Path)
	assert.Empty(t, sink.all())
}

func TestCall_EndpointWithoutHandlers(t *testing.T) {
	server := newMockServer(t)
	server.JSON("DELETE /items/7", http.StatusNoContent, nil)
	client, sink, _ := newTestClient(t, server.URL)
	client.Define("/items/{id}", nil, DELETE)

	launched, err := client.Call(context.Background(), "/items/{id}", DELETE, WithPathVariable("id", "7"))
	require.NoError(t, err)
	assert.True(t, launched)
	client.Wait()

	assert.Equal(t, 1, server.CountFor(http.MethodDelete, "/items/7"))
	assert.Empty(t, sink.all())
}

func TestCall_DuplicateSuppressedWhileInFlight(t *testing.T) {
	server := newMockServer(t)
	release := server.WithGate("GET /slow", okItem("slow"))
	t.Cleanup(release)

	metrics := NewMetricsCollector()
	client, sink, _ := newTestClient(t, server.URL, func(c *Config) { c.WithObserver(metrics) })
	client.Define("/slow", nil)

	launched, err := client.Call(context.Background(), "/slow", GET)
	require.NoError(t, err)
	assert.True(t, launched)

	launched, err = client.Call(context.Background(), "/slow", GET)
	require.NoError(t, err)
	assert.False(t, launched, "identical request must not launch while the first is in flight")
	assert.Equal(t, int64(1), metrics.GetMetrics()["duplicates"])

	release()
	client.Wait()
	assert.Equal(t, 0, client.InFlight())

	launched, err = client.Call(context.Background(), "/slow", GET)
	require.NoError(t, err)
	assert.True(t, launched, "a completed request no longer blocks an identical one")
	client.Wait()

	assert.Equal(t, 2, server.CountFor(http.MethodGet, "/slow"))
	assert.Empty(t, sink.all())
}

func TestCall_DifferentRequestsAreNotDeduplicated(t *testing.T) {
	server := newMockServer(t)
	release := server.WithGate("POST /items", okItem("new"))
	t.Cleanup(release)

	client, _, _ := newTestClient(t, server.URL)
	client.Define("/items", nil, PostJSON)

	tests := []struct {
		name string
		opts []CallOption
	}{
		{"first payload", []CallOption{WithPayload(map[string]string{"name": "a"})}},
		{"second payload", []CallOption{WithPayload(map[string]string{"name": "b"})}},
		{"same payload other header", []CallOption{WithPayload(map[string]string{"name": "a"}), WithHeader("X-Tenant", "t1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launched, err := client.Call(context.Background(), "/items", PostJSON, tt.opts...)
			require.NoError(t, err)
			assert.True(t, launched)
		})
	}

	release()
	client.Wait()
	assert.Equal(t, 3, server.CountFor(http.MethodPost, "/items"))
}

func TestCall_RequestHeaders(t *testing.T) {
	server := newMockServer(t)
	server.JSON("POST /items", http.StatusCreated, map[string]string{"id": "1"})
	client, _, _ := newTestClient(t, server.URL, func(c *Config) {
		c.WithHeader("X-Client", "tests").WithUserAgent("birbcall-test/1.0")
	})
	client.Define("/items", nil, PostJSON)

	_, err := client.Call(context.Background(), "/items", PostJSON,
		WithPayload(map[string]interface{}{"name": "widget", "count": 3}),
		WithHeader("X-Trace", "abc"))
	require.NoError(t, err)
	client.Wait()

	requests := server.Requests()
	require.Len(t, requests, 1)
	req := requests[0]

	assert.Equal(t, "application/json", req.Headers.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Headers.Get("Accept"))
	assert.Equal(t, "tests", req.Headers.Get("X-Client"))
	assert.Equal(t, "abc", req.Headers.Get("X-Trace"))
	assert.Equal(t, "birbcall-test/1.0", req.Headers.Get("User-Agent"))
	assert.Empty(t, req.Headers.Get("Authorization"), "auth is inactive until a token or handler is set")

	_, err = uuid.Parse(req.Headers.Get("X-Request-ID"))
	assert.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "widget", body["name"])
	assert.Equal(t, float64(3), body["count"])
}

func TestCall_BearerNullBeforeFirstToken(t *testing.T) {
	server := newMockServer(t)
	server.JSON("GET /me", http.StatusOK, map[string]string{"name": "birb"})
	client, _, _ := newTestClient(t, server.URL)
	client.Define("/me", nil)
	client.SetRevalidationHandler(func(ctx context.Context, c *Client, failed *Response) error { return nil })

	_, err := client.Call(context.Background(), "/me", GET)
	require.NoError(t, err)
	client.Wait()

	client.SetBearerToken("abc")
	_, err = client.Call(context.Background(), "/me", GET)
	require.NoError(t, err)
	client.Wait()

	requests := server.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "Bearer null", requests[0].Headers.Get("Authorization"))
	assert.Equal(t, "Bearer abc", requests[1].Headers.Get("Authorization"))
}

func TestCall_HTTPErrorDelivered(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        interface{}
		wantMessage string
		wantCode    string
	}{
		{"api error body", http.StatusInternalServerError, map[string]string{"error": "boom", "code": "INTERNAL"}, "boom", "INTERNAL"},
		{"empty body", http.StatusBadGateway, nil, "Bad Gateway", ""},
		{"not found", http.StatusNotFound, map[string]string{"error": "no such item"}, "no such item", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newMockServer(t)
			server.JSON("GET /items/1", tt.status, tt.body)
			client, sink, _ := newTestClient(t, server.URL)

			called := false
			client.Define("/items/{id}", func(resp *Response) { called = true })

			_, err := client.Call(context.Background(), "/items/{id}", GET, WithPathVariable("id", "1"))
			require.NoError(t, err)
			client.Wait()

			assert.False(t, called)
			errs := sink.all()
			require.Len(t, errs, 1)
			assert.True(t, errors.Is(errs[0], ErrHTTP))
			assert.Equal(t, tt.status, StatusCode(errs[0]))

			var callErr *Error
			require.True(t, errors.As(errs[0], &callErr))
			assert.Equal(t, tt.wantMessage, callErr.Message)
			assert.Equal(t, tt.wantCode, callErr.Code)
			require.NotNil(t, callErr.Context)
			assert.Equal(t, "/items/{id}", callErr.Context.Route)
			assert.Equal(t, http.MethodGet, callErr.Context.Method)
			assert.NotEmpty(t, callErr.RequestID)
		})
	}
}

func TestCall_UnauthorizedWithoutHandlerSurfaces(t *testing.T) {
	server := newMockServer(t)
	server.WithErrorResponse("GET /me", http.StatusUnauthorized, "token expired")
	client, sink, _ := newTestClient(t, server.URL)
	client.Define("/me", nil)
	client.SetBearerToken("stale")

	_, err := client.Call(context.Background(), "/me", GET)
	require.NoError(t, err)
	client.Wait()

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.True(t, IsUnauthorized(errs[0]))
	assert.True(t, errors.Is(errs[0], ErrHTTP))
	assert.Equal(t, AuthNormal, client.AuthSnapshot().Phase)
}

func TestCall_Timeout(t *testing.T) {
	server := newMockServer(t)
	server.WithDelayedResponse("GET /slow", time.Second, okItem("slow"))
	client, sink, _ := newTestClient(t, server.URL, func(c *Config) {
		c.WithRequestTimeout(50 * time.Millisecond)
	})

	called := false
	client.Define("/slow", func(resp *Response) { called = true })

	start := time.Now()
	_, err := client.Call(context.Background(), "/slow", GET)
	require.NoError(t, err)
	client.Wait()

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, called)
	errs := sink.all()
	require.Len(t, errs, 1)
	assert.True(t, IsTimeout(errs[0]))
	assert.Equal(t, 0, StatusCode(errs[0]))
}

func TestCall_ContextCancellation(t *testing.T) {
	server := newMockServer(t)
	release := server.WithGate("GET /slow", okItem("slow"))
	t.Cleanup(release)
	client, sink, _ := newTestClient(t, server.URL)
	client.Define("/slow", nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.Call(ctx, "/slow", GET)
	require.NoError(t, err)
	cancel()
	client.Wait()

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.True(t, IsTimeout(errs[0]))
}

func TestCall_TransportError(t *testing.T) {
	server := newMockServer(t)
	baseURL := server.URL
	server.Close()

	client, sink, _ := newTestClient(t, baseURL)
	client.Define("/items", nil)

	_, err := client.Call(context.Background(), "/items", GET)
	require.NoError(t, err)
	client.Wait()

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrTransport))
	assert.False(t, IsTimeout(errs[0]))
}

func TestCall_DecodeErrorIsLoggedNotDelivered(t *testing.T) {
	server := newMockServer(t)
	server.RegisterHandler("GET /broken", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		w.Header().Set("Content-Type", "text/plain")
		return http.StatusOK, mockapi.RawBody("definitely not json")
	})
	client, sink, hook := newTestClient(t, server.URL)

	called := false
	client.Define("/broken", func(resp *Response) { called = true })

	_, err := client.Call(context.Background(), "/broken", GET)
	require.NoError(t, err)
	client.Wait()

	assert.False(t, called)
	assert.Empty(t, sink.all())

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "failed to decode response body" {
			warned = true
			assert.Equal(t, logrus.WarnLevel, entry.Level)
			assert.Equal(t, http.StatusOK, entry.Data["status"])
		}
	}
	assert.True(t, warned)
}

func TestCall_HandlerPanicIsRecovered(t *testing.T) {
	server := newMockServer(t)
	server.RegisterHandler("GET /items/1", okItem("1"))
	client, sink, _ := newTestClient(t, server.URL)

	secondCalled := false
	client.
		Define("/items/{id}", func(resp *Response) { panic("bad handler") }).
		Define("/items/{id}", func(resp *Response) { secondCalled = true })

	_, err := client.Call(context.Background(), "/items/{id}", GET, WithPathVariable("id", "1"))
	require.NoError(t, err)
	client.Wait()

	assert.True(t, secondCalled)
	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "bad handler")
}

func TestCall_PayloadSnapshot(t *testing.T) {
	server := newMockServer(t)
	release := server.WithGate("POST /items", okItem("1"))
	t.Cleanup(release)
	client, _, _ := newTestClient(t, server.URL)
	client.Define("/items", nil, PostJSON)

	payload := map[string]string{"name": "before"}
	_, err := client.Call(context.Background(), "/items", PostJSON, WithPayload(payload))
	require.NoError(t, err)
	payload["name"] = "after"

	release()
	client.Wait()

	requests := server.Requests()
	require.Len(t, requests, 1)
	assert.JSONEq(t, `{"name":"before"}`, string(requests[0].Body))
}

func TestClient_Close(t *testing.T) {
	server := newMockServer(t)
	release := server.WithGate("GET /slow", okItem("slow"))
	t.Cleanup(release)
	client, sink, _ := newTestClient(t, server.URL)
	client.Define("/slow", nil)

	_, err := client.Call(context.Background(), "/slow", GET)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.True(t, IsTimeout(errs[0]))
	assert.Equal(t, 0, client.InFlight())

	launched, err := client.Call(context.Background(), "/slow", GET)
	assert.False(t, launched)
	assert.True(t, errors.Is(err, ErrClientClosed))
}

func TestClient_SetErrorHandler(t *testing.T) {
	server := newMockServer(t)
	server.WithErrorResponse("GET /fail", http.StatusTeapot, "short and stout")
	client, sink, hook := newTestClient(t, server.URL)
	client.Define("/fail", nil)

	var replaced []error
	client.SetErrorHandler(func(err error) { replaced = append(replaced, err) })
	_, err := client.Call(context.Background(), "/fail", GET)
	require.NoError(t, err)
	client.Wait()
	assert.Len(t, replaced, 1)
	assert.Empty(t, sink.all())

	client.SetErrorHandler(nil)
	_, err = client.Call(context.Background(), "/fail", GET)
	require.NoError(t, err)
	client.Wait()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "request failed", entry.Message)
	assert.Equal(t, "http", entry.Data["error_type"])
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
}

func TestNewClient_InvalidConfig(t *testing.T) {
	client, err := NewClient(DefaultConfig().WithBaseURL("not a url"))
	assert.Nil(t, client)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
