// Package mockapi provides a configurable HTTP server for client tests.
package mockapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HandlerFunc returns the status and the value to encode as the JSON body.
// A nil value writes no body; a RawBody is written as-is.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (int, interface{})

// RawBody is written to the response without JSON encoding.
type RawBody []byte

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
	Time    time.Time
}

// Server routes requests by "METHOD /path" patterns. A pattern ending in
// "/" matches every path below it.
type Server struct {
	*httptest.Server
	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	requestCount atomic.Int32
	requests     []RecordedRequest
}

// New starts a server with a GET /health handler.
func New() *Server {
	s := &Server{handlers: make(map[string]HandlerFunc)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handleRequest))

	s.RegisterHandler("GET /health", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]string{"status": "healthy"}
	})
	return s
}

// RegisterHandler registers a handler for a method and path pattern
func (s *Server) RegisterHandler(pattern string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[pattern] = handler
}

// JSON registers a handler that always answers status with body.
func (s *Server) JSON(pattern string, status int, body interface{}) {
	s.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return status, body
	})
}

// WithErrorResponse registers a handler answering with an API error body.
func (s *Server) WithErrorResponse(pattern string, statusCode int, errorMsg string) {
	s.JSON(pattern, statusCode, map[string]string{
		"error": errorMsg,
		"code":  strings.ToUpper(strings.ReplaceAll(http.StatusText(statusCode), " ", "_")),
	})
}

// WithDelayedResponse registers a handler that sleeps before answering.
// The sleep ends early if the client goes away.
func (s *Server) WithDelayedResponse(pattern string, delay time.Duration, handler HandlerFunc) {
	s.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
		return handler(w, r)
	})
}

// WithGate registers a handler that holds every request until the returned
// release function is called. Release is idempotent.
func (s *Server) WithGate(pattern string, handler HandlerFunc) (release func()) {
	gate := make(chan struct{})
	var once sync.Once
	s.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		select {
		case <-gate:
		case <-r.Context().Done():
		}
		return handler(w, r)
	})
	return func() { once.Do(func() { close(gate) }) }
}

// WithBearer registers a handler that answers 401 unless the request
// carries a bearer token accepted by valid.
func (s *Server) WithBearer(pattern string, valid func(token string) bool, handler HandlerFunc) {
	s.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !valid(token) {
			return http.StatusUnauthorized, map[string]string{
				"error": "token expired",
				"code":  "UNAUTHORIZED",
			}
		}
		return handler(w, r)
	})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
		Time:    time.Now(),
	})
	s.mu.Unlock()
	s.requestCount.Add(1)

	pattern := r.Method + " " + r.URL.Path
	s.mu.RLock()
	handler, exact := s.handlers[pattern]
	if !exact {
		for p, h := range s.handlers {
			if strings.HasSuffix(p, "/") && strings.HasPrefix(pattern, p) {
				handler = h
				break
			}
		}
	}
	s.mu.RUnlock()

	if handler == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "Not found",
			"code":  "NOT_FOUND",
		})
		return
	}

	status, response := handler(w, r)

	if raw, ok := response.(RawBody); ok {
		w.WriteHeader(status)
		_, _ = w.Write(raw)
		return
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if response != nil {
		_ = json.NewEncoder(w).Encode(response)
	}
}

// RequestCount returns the total number of requests received
func (s *Server) RequestCount() int {
	return int(s.requestCount.Load())
}

// Requests returns all recorded requests
func (s *Server) Requests() []RecordedRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]RecordedRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// CountFor returns how many recorded requests had the given method and path.
func (s *Server) CountFor(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Reset clears all recorded requests
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestCount.Store(0)
	s.requests = s.requests[:0]
}
