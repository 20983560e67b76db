package sdk

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.Register("/items/{id}", func(*Response) { order = append(order, "a") }).
		Register("/items/{id}", func(*Response) { order = append(order, "b") }).
		Register("/items", nil, PostJSON).
		Register("/items", nil, PostJSON)

	handlers, err := r.Resolve(GET, "/items/{id}")
	require.NoError(t, err)
	require.Len(t, handlers, 2)
	for _, h := range handlers {
		h(nil)
	}
	assert.Equal(t, []string{"a", "b"}, order)

	handlers, err = r.Resolve(PostJSON, "/items")
	require.NoError(t, err)
	assert.Empty(t, handlers)

	_, err = r.Resolve(PUT, "/items")
	assert.ErrorIs(t, err, ErrUndefinedEndpoint)

	assert.Equal(t, []Endpoint{
		{Verb: PostJSON, Route: "/items", Handlers: 0},
		{Verb: GET, Route: "/items/{id}", Handlers: 2},
	}, r.Endpoints())
}

func TestRegistry_ResolveReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register("/a", func(*Response) {})

	handlers, err := r.Resolve(GET, "/a")
	require.NoError(t, err)
	handlers[0] = nil

	handlers, err = r.Resolve(GET, "/a")
	require.NoError(t, err)
	assert.NotNil(t, handlers[0])
}

func TestSubstitutePath(t *testing.T) {
	tests := []struct {
		name  string
		route string
		vars  map[string]string
		want  string
	}{
		{"single variable", "/items/{id}", map[string]string{"id": "42"}, "/items/42"},
		{"several variables", "/users/{user}/items/{id}", map[string]string{"user": "u1", "id": "7"}, "/users/u1/items/7"},
		{"repeated variable", "/{x}/{x}", map[string]string{"x": "a"}, "/a/a"},
		{"missing value left as is", "/items/{id}", map[string]string{"other": "1"}, "/items/{id}"},
		{"no variables", "/health", nil, "/health"},
		{"unused variables ignored", "/health", map[string]string{"id": "1"}, "/health"},
		{"values inserted as is", "/{a}/{b}", map[string]string{"a": "{b}", "b": "x"}, "/{b}/x"},
		{"hyphenated name", "/items/{item-id}", map[string]string{"item-id": "5"}, "/items/5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := CallParameters{Route: tt.route, PathVariables: tt.vars}
			assert.Equal(t, tt.want, call.ResolvePath())
		})
	}
}

func TestSubstitutePath_SingleScan(t *testing.T) {
	vars := map[string]string{"a": "{b}", "b": "x"}
	for i := 0; i < 100; i++ {
		require.Equal(t, "/{b}", substitutePath("/{a}", vars))
	}
}

func TestCallParameters_Clone(t *testing.T) {
	payload := map[string]interface{}{"name": "widget"}
	form := NewForm(TextField("title", "t"), FileField("file", File{Name: "a.txt", Data: []byte("abc")}))

	t.Run("json payload is frozen", func(t *testing.T) {
		call := CallParameters{
			Route:         "/items/{id}",
			Verb:          PUT,
			Payload:       payload,
			Headers:       map[string]string{"X-A": "1"},
			PathVariables: map[string]string{"id": "1"},
		}
		clone := call.Clone()

		payload["name"] = "changed"
		call.Headers["X-A"] = "2"
		call.PathVariables["id"] = "2"

		raw, ok := clone.Payload.(json.RawMessage)
		require.True(t, ok)
		assert.JSONEq(t, `{"name":"widget"}`, string(raw))
		assert.Equal(t, "1", clone.Headers["X-A"])
		assert.Equal(t, "1", clone.PathVariables["id"])
	})

	t.Run("form parts are copied", func(t *testing.T) {
		call := CallParameters{Route: "/uploads", Verb: PostForm, Payload: form}
		clone := call.Clone()
		form[0].Value = "changed"

		cloned, ok := clone.Payload.(Form)
		require.True(t, ok)
		assert.Equal(t, "t", cloned[0].Value)
	})

	t.Run("file contents are copied", func(t *testing.T) {
		data := []byte("original")
		call := CallParameters{
			Route:   "/uploads",
			Verb:    PostForm,
			Payload: NewForm(FileField("file", File{Name: "a.txt", Data: data})),
		}
		clone := call.Clone()
		data[0] = 'X'

		cloned, ok := clone.Payload.(Form)
		require.True(t, ok)
		assert.Equal(t, "original", string(cloned[0].Files[0].Data))
	})

	t.Run("nil maps stay nil", func(t *testing.T) {
		clone := CallParameters{Route: "/a"}.Clone()
		assert.Nil(t, clone.Headers)
		assert.Nil(t, clone.PathVariables)
		assert.Nil(t, clone.Payload)
	})
}

func TestCallOptions(t *testing.T) {
	o := callOptions{params: CallParameters{Route: "/a", Verb: GET}}
	for _, opt := range []CallOption{
		WithHeaders(map[string]string{"A": "1", "B": "2"}),
		WithHeader("B", "3"),
		WithPathVariables(map[string]string{"id": "1"}),
		WithPathVariable("sub", "x"),
		WithPayload("body"),
		WithProgress(func(Progress) {}),
	} {
		opt(&o)
	}

	assert.Equal(t, map[string]string{"A": "1", "B": "3"}, o.params.Headers)
	assert.Equal(t, map[string]string{"id": "1", "sub": "x"}, o.params.PathVariables)
	assert.Equal(t, "body", o.params.Payload)
	assert.NotNil(t, o.onProgress)
}

func TestFingerprint(t *testing.T) {
	base := func() CallParameters {
		return CallParameters{
			Route:         "/items/{id}",
			Verb:          PUT,
			Payload:       map[string]interface{}{"b": 2, "a": 1},
			Headers:       map[string]string{"X-1": "a", "X-2": "b"},
			PathVariables: map[string]string{"id": "1"},
		}
	}

	key := callKey(Fingerprint53, base())
	assert.LessOrEqual(t, key, uint64(1<<53-1))
	assert.Equal(t, key, callKey(Fingerprint53, base()), "deterministic")
	assert.Equal(t, key, callKey(Fingerprint53, base().Clone()), "clone has the same key")

	tests := []struct {
		name   string
		mutate func(*CallParameters)
	}{
		{"route", func(c *CallParameters) { c.Route = "/other/{id}" }},
		{"verb", func(c *CallParameters) { c.Verb = PostJSON }},
		{"payload", func(c *CallParameters) { c.Payload = map[string]interface{}{"a": 2} }},
		{"header", func(c *CallParameters) { c.Headers["X-1"] = "z" }},
		{"path variable", func(c *CallParameters) { c.PathVariables["id"] = "2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := base()
			tt.mutate(&call)
			assert.NotEqual(t, key, callKey(Fingerprint53, call))
		})
	}

	t.Run("request key ignores header order", func(t *testing.T) {
		a := requestKey(Fingerprint53, "http://x/items/1", GET, nil, map[string]string{"A": "1", "B": "2"})
		b := requestKey(Fingerprint53, "http://x/items/1", GET, nil, map[string]string{"B": "2", "A": "1"})
		assert.Equal(t, a, b)
	})
}

func TestParseVerb(t *testing.T) {
	tests := []struct {
		in      string
		want    Verb
		wantErr bool
	}{
		{"get", GET, false},
		{"", GET, false},
		{"post-json", PostJSON, false},
		{"POST_JSON", PostJSON, false},
		{"form", PostForm, false},
		{"post_form", PostForm, false},
		{"put", PUT, false},
		{"Delete", DELETE, false},
		{"patch", GET, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVerb(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "POST", PostForm.Method())
	assert.Equal(t, "POST", PostJSON.Method())
	assert.Equal(t, "POST_FORM", PostForm.String())
}

func TestForm_Encode(t *testing.T) {
	form := NewForm(
		TextField("title", "holiday"),
		FileField("photos",
			File{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("AAAA")},
			File{Name: `we"ird.bin`, Data: []byte("BB")}),
		FileField("empty"),
	)
	assert.Equal(t, int64(6), form.Size())

	body, contentType, err := form.encode()
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])

	type part struct {
		field, filename, contentType, data string
	}
	var parts []part
	for {
		p, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, part{p.FormName(), p.FileName(), p.Header.Get("Content-Type"), string(data)})
	}

	assert.Equal(t, []part{
		{"title", "", "", "holiday"},
		{"photos", "a.jpg", "image/jpeg", "AAAA"},
		{"photos", `we"ird.bin`, "application/octet-stream", "BB"},
	}, parts)
}

func TestForm_SignatureIgnoresBoundary(t *testing.T) {
	form := NewForm(TextField("a", "1"), FileField("f", File{Name: "x", Data: []byte("data")}))
	other := NewForm(TextField("a", "1"), FileField("f", File{Name: "x", Data: []byte("diff")}))

	assert.Equal(t, payloadSignature(form), payloadSignature(form.clone()))
	assert.NotEqual(t, payloadSignature(form), payloadSignature(other))
}

func TestAsForm(t *testing.T) {
	form, err := asForm(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, Form{TextField("a", "1"), TextField("b", "2")}, form)

	form, err = asForm([]FormPart{TextField("x", "y")})
	require.NoError(t, err)
	assert.Len(t, form, 1)

	_, err = asForm(42)
	assert.Error(t, err)
}
