package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request is the envelope passed through the pipeline. Per-request options
// travel in Options rather than on the transport request.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	// Body holds buffered content. Nil when the request has no body or is streamed.
	Body []byte

	// Stream holds a single-read body. Clone and HTTPRequest re-buffer it when
	// its length is known.
	Stream io.Reader

	// ContentLength is the body length, -1 when unknown.
	ContentLength int64

	Options Options
}

// NewRequest creates a request with a buffered (possibly nil) body.
func NewRequest(method, rawURL string, body []byte) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	return &Request{
		Method:        method,
		URL:           u,
		Header:        make(http.Header),
		Body:          body,
		ContentLength: int64(len(body)),
	}, nil
}

// NewStreamRequest creates a request whose body is read from r. A negative
// contentLength marks the length as unknown.
func NewStreamRequest(method, rawURL string, r io.Reader, contentLength int64) (*Request, error) {
	req, err := NewRequest(method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Stream = r
	req.ContentLength = contentLength
	return req, nil
}

// SetOption attaches a per-request option, replacing any of the same kind.
func (r *Request) SetOption(opt Option) {
	if r.Options == nil {
		r.Options = make(Options)
	}
	r.Options[opt.Kind()] = opt
}

// Option returns the per-request option of the given kind.
func (r *Request) Option(kind OptionKind) (Option, bool) {
	return r.Options.Get(kind)
}

// IsBuffered reports whether the body can be safely re-read for replay.
// PUT, POST and PATCH requests streaming a body of unknown length are not.
func (r *Request) IsBuffered() bool {
	switch r.Method {
	case http.MethodPut, http.MethodPost, http.MethodPatch:
		if r.Stream != nil && r.ContentLength < 0 {
			return false
		}
	}
	return true
}

// Content drains any stream into Body and returns the buffered bytes.
func (r *Request) Content() ([]byte, error) {
	if r.Stream != nil {
		data, err := io.ReadAll(r.Stream)
		if err != nil {
			return nil, fmt.Errorf("buffer request body: %w", err)
		}
		if c, ok := r.Stream.(io.Closer); ok {
			_ = c.Close()
		}
		r.Stream = nil
		r.Body = data
		r.ContentLength = int64(len(data))
	}
	return r.Body, nil
}

// Clone returns a deep copy of the request. A streamed body is drained and
// re-buffered first, so both copies can be sent.
func (r *Request) Clone() (*Request, error) {
	body, err := r.Content()
	if err != nil {
		return nil, err
	}

	u := *r.URL
	if r.URL.User != nil {
		user := *r.URL.User
		u.User = &user
	}

	var bodyCopy []byte
	if body != nil {
		bodyCopy = append([]byte(nil), body...)
	}

	return &Request{
		Method:        r.Method,
		URL:           &u,
		Header:        r.Header.Clone(),
		Body:          bodyCopy,
		ContentLength: r.ContentLength,
		Options:       r.Options.Clone(),
	}, nil
}

// HTTPRequest converts the envelope into a net/http request bound to ctx.
// Streams of known length are buffered first so the request stays replayable.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	switch {
	case r.Stream != nil && r.ContentLength >= 0:
		data, err := r.Content()
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	case r.Stream != nil:
		body = r.Stream
	case r.Body != nil:
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = r.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if r.Stream != nil && r.ContentLength < 0 {
		req.ContentLength = -1
	}

	return req, nil
}
