package sdk

import (
	"context"
	"mime"
	"net/http"
	"path"
	"strings"
)

// DefaultDownloadFilename is used when neither the response nor the caller
// names the file.
const DefaultDownloadFilename = "download"

// DownloadRequest describes a file to save. Set URL to fetch the file with
// the client's bearer token, or Content to save inline data.
type DownloadRequest struct {
	// URL is absolute, or relative to the client's base URL
	URL string
	// Content is saved as-is when URL is empty
	Content []byte
	// Filename is used when the response has no Content-Disposition filename
	Filename string
	// MIMEType overrides the response Content-Type
	MIMEType string
	// Dir overrides Config.DownloadDir on native builds
	Dir string
	// Headers are added to the fetch request
	Headers map[string]string
}

// DownloadResult describes a saved file. Path is empty in the browser.
type DownloadResult struct {
	Filename string
	MIMEType string
	Size     int64
	Path     string
}

// Download saves a file. On failure onError receives the error if set;
// otherwise the error is logged. The error is returned either way.
func (c *Client) Download(ctx context.Context, req DownloadRequest, onError func(error)) (*DownloadResult, error) {
	result, err := c.download(ctx, req)
	if err != nil {
		if onError != nil {
			onError(err)
		} else {
			c.logger.WithError(err).WithField("url", req.URL).Error("download failed")
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	data := req.Content
	filename := req.Filename
	mimeType := req.MIMEType

	if req.URL != "" {
		resp, err := c.fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		data = resp.body
		filename = FilenameFromContentDisposition(resp.header.Get("Content-Disposition"), req.Filename)
		if mimeType == "" {
			mimeType = resp.header.Get("Content-Type")
		}
	}

	if filename = sanitizeFilename(filename); filename == "" {
		filename = DefaultDownloadFilename
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	dir := req.Dir
	if dir == "" {
		dir = c.config.DownloadDir
	}
	return saveFile(dir, filename, mimeType, data)
}

func (c *Client) fetch(ctx context.Context, req DownloadRequest) (*rawResponse, error) {
	url := req.URL
	if !strings.Contains(url, "://") {
		url = c.config.BaseURL + url
	}

	headers := copyStrings(req.Headers)
	if headers == nil {
		headers = make(map[string]string)
	}
	if authorization, ok := c.auth.authorization(); ok {
		headers["Authorization"] = authorization
	}
	if _, ok := headers["Accept"]; !ok {
		headers["Accept"] = "*/*"
	}

	out := &outgoingRequest{
		method: http.MethodGet,
		url:    url,
		header: c.buildHeader(headers, ""),
	}
	resp, err := c.standard.execute(ctx, out)
	if err != nil {
		return nil, asCallError(err).WithContext(&ErrorContext{URL: url, Method: http.MethodGet})
	}
	if resp.statusCode < 200 || resp.statusCode >= 300 {
		return nil, parseAPIError(resp.statusCode, resp.body).ToError().
			WithContext(&ErrorContext{URL: url, Method: http.MethodGet})
	}
	return resp, nil
}

// FilenameFromContentDisposition extracts the filename from a
// Content-Disposition header, preferring the RFC 5987 filename* form.
// It returns fallback, or DefaultDownloadFilename, when there is none.
func FilenameFromContentDisposition(header, fallback string) string {
	if header != "" {
		if _, params, err := mime.ParseMediaType(header); err == nil {
			if name := sanitizeFilename(params["filename"]); name != "" {
				return name
			}
		}
	}
	if name := sanitizeFilename(fallback); name != "" {
		return name
	}
	return DefaultDownloadFilename
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	switch name {
	case ".", "/", "..":
		return ""
	}
	return name
}
