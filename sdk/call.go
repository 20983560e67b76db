package sdk

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// CallParameters describes one invocation of a registered endpoint.
type CallParameters struct {
	Route         string
	Verb          Verb
	Payload       any
	Headers       map[string]string
	PathVariables map[string]string
}

// Clone returns a snapshot that shares no mutable state with c. JSON
// payloads are frozen to their encoded form; Form payloads are copied
// down to the file contents.
func (c CallParameters) Clone() CallParameters {
	out := CallParameters{
		Route:         c.Route,
		Verb:          c.Verb,
		Headers:       copyStrings(c.Headers),
		PathVariables: copyStrings(c.PathVariables),
	}

	switch p := c.Payload.(type) {
	case nil:
	case Form:
		out.Payload = p.clone()
	case *Form:
		if p != nil {
			out.Payload = p.clone()
		}
	case json.RawMessage:
		out.Payload = append(json.RawMessage(nil), p...)
	case []byte:
		out.Payload = append([]byte(nil), p...)
	case string:
		out.Payload = p
	default:
		if data, err := json.Marshal(p); err == nil {
			out.Payload = json.RawMessage(data)
		} else {
			out.Payload = p
		}
	}
	return out
}

// ResolvePath substitutes every {name} token in the route with the matching
// path variable. Tokens without a value are left as they are.
func (c CallParameters) ResolvePath() string {
	return substitutePath(c.Route, c.PathVariables)
}

func substitutePath(route string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(route, "{") {
		return route
	}
	return pathToken.ReplaceAllStringFunc(route, func(token string) string {
		if value, ok := vars[token[1:len(token)-1]]; ok {
			return value
		}
		return token
	})
}

var pathToken = regexp.MustCompile(`\{[^{}/]+\}`)

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CallOption configures a single call.
type CallOption func(*callOptions)

type callOptions struct {
	params     CallParameters
	onProgress ProgressFunc
}

// WithPayload sets the request payload. PUT and POST_JSON encode it as JSON;
// POST_FORM expects a Form.
func WithPayload(payload any) CallOption {
	return func(o *callOptions) {
		o.params.Payload = payload
	}
}

// WithHeaders merges headers into the request headers.
func WithHeaders(headers map[string]string) CallOption {
	return func(o *callOptions) {
		for k, v := range headers {
			WithHeader(k, v)(o)
		}
	}
}

// WithHeader sets a single request header.
func WithHeader(name, value string) CallOption {
	return func(o *callOptions) {
		if o.params.Headers == nil {
			o.params.Headers = make(map[string]string)
		}
		o.params.Headers[name] = value
	}
}

// WithPathVariables merges values for {name} tokens in the route.
func WithPathVariables(vars map[string]string) CallOption {
	return func(o *callOptions) {
		for k, v := range vars {
			WithPathVariable(k, v)(o)
		}
	}
}

// WithPathVariable sets the value for one {name} token in the route.
func WithPathVariable(name, value string) CallOption {
	return func(o *callOptions) {
		if o.params.PathVariables == nil {
			o.params.PathVariables = make(map[string]string)
		}
		o.params.PathVariables[name] = value
	}
}

// WithProgress routes a POST_FORM call through the upload transport and
// reports its progress to fn.
func WithProgress(fn ProgressFunc) CallOption {
	return func(o *callOptions) {
		o.onProgress = fn
	}
}

// Response is handed to every handler registered for the endpoint.
type Response struct {
	// Call is the snapshot of the parameters the request was made with
	Call CallParameters
	// URL is the final request URL
	URL string
	// StatusCode is the HTTP status of the response
	StatusCode int
	// Header holds the response headers
	Header http.Header
	// Body is the raw response body
	Body []byte
	// Payload is the decoded JSON body, nil for an empty body
	Payload any
	// Replay is true when the response belongs to a replayed call
	Replay bool
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}
