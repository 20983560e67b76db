package sdk

import (
	"fmt"
	"net/http"
	"strings"
)

// Verb identifies how a call is sent and how its payload is encoded.
// The zero value is GET.
type Verb int

const (
	// GET sends no body.
	GET Verb = iota
	// PostForm sends the payload as a multipart form.
	PostForm
	// PostJSON sends the payload as a JSON document.
	PostJSON
	// PUT sends the payload as a JSON document.
	PUT
	// DELETE sends no body.
	DELETE
)

// String returns the registry name of the verb.
func (v Verb) String() string {
	switch v {
	case GET:
		return "GET"
	case PostForm:
		return "POST_FORM"
	case PostJSON:
		return "POST_JSON"
	case PUT:
		return "PUT"
	case DELETE:
		return "DELETE"
	default:
		return fmt.Sprintf("Verb(%d)", int(v))
	}
}

// Method returns the HTTP method used on the wire.
func (v Verb) Method() string {
	switch v {
	case PostForm, PostJSON:
		return http.MethodPost
	case PUT:
		return http.MethodPut
	case DELETE:
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

func (v Verb) hasJSONBody() bool {
	return v == PostJSON || v == PUT
}

// ParseVerb accepts the registry names as well as a few spellings used on
// the command line ("post-json", "post_form", "form", "json").
func ParseVerb(s string) (Verb, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "", "GET":
		return GET, nil
	case "POST_FORM", "FORM":
		return PostForm, nil
	case "POST_JSON", "POST", "JSON":
		return PostJSON, nil
	case "PUT":
		return PUT, nil
	case "DELETE":
		return DELETE, nil
	}
	return GET, fmt.Errorf("unknown verb %q", s)
}
