package sdk

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// PartKind tags a FormPart.
type PartKind int

const (
	// TextPart is a plain form value.
	TextPart PartKind = iota
	// FilePart carries one or more files under the same field name.
	FilePart
)

// File is an in-memory file attached to a FilePart.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileFromPath reads the file at path. The content type is guessed from
// the extension.
func FileFromPath(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}

// FormPart is one field of a multipart form. Exactly one of Value or Files
// is meaningful, depending on Kind.
type FormPart struct {
	Kind  PartKind
	Name  string
	Value string
	Files []File
}

// TextField returns a text part.
func TextField(name, value string) FormPart {
	return FormPart{Kind: TextPart, Name: name, Value: value}
}

// FileField returns a file part. Each file becomes its own multipart part
// under name; a field with no files is sent as nothing.
func FileField(name string, files ...File) FormPart {
	return FormPart{Kind: FilePart, Name: name, Files: files}
}

// Form is the payload of a POST_FORM call.
type Form []FormPart

// NewForm builds a Form from parts.
func NewForm(parts ...FormPart) Form {
	return Form(parts)
}

// Size returns the number of bytes of file content in the form.
func (f Form) Size() int64 {
	var n int64
	for _, part := range f {
		for _, file := range part.Files {
			n += int64(len(file.Data))
		}
	}
	return n
}

func (f Form) clone() Form {
	out := make(Form, len(f))
	for i, part := range f {
		out[i] = part
		if part.Files == nil {
			continue
		}
		out[i].Files = make([]File, len(part.Files))
		for j, file := range part.Files {
			file.Data = append([]byte(nil), file.Data...)
			out[i].Files[j] = file
		}
	}
	return out
}

func (f Form) signature() string {
	var b strings.Builder
	for _, part := range f {
		switch part.Kind {
		case TextPart:
			fmt.Fprintf(&b, "t:%s=%s;", part.Name, part.Value)
		case FilePart:
			fmt.Fprintf(&b, "f:%s=", part.Name)
			for _, file := range part.Files {
				fmt.Fprintf(&b, "%s:%d:%x,", file.Name, len(file.Data), xxhash.Sum64(file.Data))
			}
			b.WriteByte(';')
		}
	}
	return b.String()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encode renders the form as a multipart body and returns it together with
// the Content-Type header value carrying the boundary.
func (f Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, part := range f {
		switch part.Kind {
		case TextPart:
			if err := w.WriteField(part.Name, part.Value); err != nil {
				return nil, "", err
			}
		case FilePart:
			for _, file := range part.Files {
				h := make(textproto.MIMEHeader)
				h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
					quoteEscaper.Replace(part.Name), quoteEscaper.Replace(file.Name)))
				contentType := file.ContentType
				if contentType == "" {
					contentType = "application/octet-stream"
				}
				h.Set("Content-Type", contentType)

				pw, err := w.CreatePart(h)
				if err != nil {
					return nil, "", err
				}
				if _, err := pw.Write(file.Data); err != nil {
					return nil, "", err
				}
			}
		default:
			return nil, "", fmt.Errorf("form part %q: unknown kind %d", part.Name, part.Kind)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func asForm(payload any) (Form, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case Form:
		return p, nil
	case *Form:
		if p == nil {
			return nil, nil
		}
		return *p, nil
	case []FormPart:
		return Form(p), nil
	case map[string]string:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		form := make(Form, 0, len(p))
		for _, k := range keys {
			form = append(form, TextField(k, p[k]))
		}
		return form, nil
	}
	return nil, fmt.Errorf("POST_FORM payload must be a Form, got %T", payload)
}
