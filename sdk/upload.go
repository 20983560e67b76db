package sdk

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// Progress reports how much of an upload body has been sent.
type Progress struct {
	Percent float64
	Loaded  int64
	Total   int64
}

// ProgressFunc receives upload progress. It is called from the goroutine
// sending the request.
type ProgressFunc func(Progress)

// uploadTransport sends a multipart body while reporting progress, under
// a shorter deadline than the standard transport.
type uploadTransport struct {
	client   *http.Client
	timeout  time.Duration
	observer Observer
}

func newUploadTransport(client *http.Client, timeout time.Duration, observer Observer) *uploadTransport {
	return &uploadTransport{client: client, timeout: timeout, observer: observer}
}

func (t *uploadTransport) execute(ctx context.Context, req *outgoingRequest) (*rawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	total := int64(len(req.body))
	report := func(p Progress) {
		t.observer.OnUploadProgress(req.url, p)
		if req.onProgress != nil {
			req.onProgress(p)
		}
	}

	body := newProgressReader(bytes.NewReader(req.body), total, report)
	resp, err := roundTrip(ctx, t.client, req, body, total, t.timeout)
	if err == nil {
		body.finish()
	}
	return resp, err
}

// progressReader counts bytes as the HTTP client consumes the body.
type progressReader struct {
	src    io.Reader
	total  int64
	report func(Progress)

	mu       sync.Mutex
	loaded   int64
	finished bool
}

func newProgressReader(src io.Reader, total int64, report func(Progress)) *progressReader {
	return &progressReader{src: src, total: total, report: report}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.mu.Lock()
		r.loaded += int64(n)
		loaded := r.loaded
		if loaded >= r.total {
			r.finished = true
		}
		r.mu.Unlock()
		r.report(makeProgress(loaded, r.total))
	}
	return n, err
}

// finish reports completion once if the client never read the final byte,
// which happens for an empty body.
func (r *progressReader) finish() {
	r.mu.Lock()
	done := r.finished
	r.finished = true
	r.mu.Unlock()
	if !done {
		r.report(makeProgress(r.total, r.total))
	}
}

func makeProgress(loaded, total int64) Progress {
	percent := 100.0
	if total > 0 {
		percent = float64(loaded) / float64(total) * 100
	}
	return Progress{Percent: percent, Loaded: loaded, Total: total}
}
