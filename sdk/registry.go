package sdk

import (
	"sort"
	"sync"
)

// Handler receives every successful response for the endpoint it was
// registered on.
type Handler func(resp *Response)

type endpointKey struct {
	verb  Verb
	route string
}

// Endpoint names a registered (verb, route) pair.
type Endpoint struct {
	Verb     Verb
	Route    string
	Handlers int
}

// Registry maps (verb, route template) pairs to ordered handler lists.
// Handlers can only be appended; an endpoint is never removed once defined.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[endpointKey][]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[endpointKey][]Handler)}
}

// Register appends handler to the endpoint identified by route and verb,
// creating the endpoint if needed. The verb defaults to GET.
//
//	registry.
//	    Register("/items/{id}", showItem).
//	    Register("/items/{id}", auditItem).
//	    Register("/items", created, sdk.PostJSON)
func (r *Registry) Register(route string, handler Handler, verb ...Verb) *Registry {
	v := GET
	if len(verb) > 0 {
		v = verb[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := endpointKey{verb: v, route: route}
	if handler == nil {
		if _, ok := r.endpoints[key]; !ok {
			r.endpoints[key] = nil
		}
		return r
	}
	r.endpoints[key] = append(r.endpoints[key], handler)
	return r
}

// Resolve returns a copy of the handler list for the endpoint, or an error
// matching ErrUndefinedEndpoint if it was never registered.
func (r *Registry) Resolve(verb Verb, route string) ([]Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers, ok := r.endpoints[endpointKey{verb: verb, route: route}]
	if !ok {
		return nil, newUndefinedEndpointError(verb, route)
	}
	return append([]Handler(nil), handlers...), nil
}

// Endpoints lists every registered endpoint sorted by route, then verb.
func (r *Registry) Endpoints() []Endpoint {
	r.mu.RLock()
	out := make([]Endpoint, 0, len(r.endpoints))
	for key, handlers := range r.endpoints {
		out = append(out, Endpoint{Verb: key.verb, Route: key.route, Handlers: len(handlers)})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Route != out[j].Route {
			return out[i].Route < out[j].Route
		}
		return out[i].Verb < out[j].Verb
	})
	return out
}
