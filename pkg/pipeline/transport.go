package pipeline

import (
	"context"
	"net/http"
	"time"
)

// DefaultTimeout is the overall timeout of the default transport client.
const DefaultTimeout = 100 * time.Second

// HTTPTransport is the innermost Handler; it sends requests with net/http.
// Redirects are never followed by the transport, that is RedirectStage's job.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client. A nil client gets a default one.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	var c http.Client
	if client != nil {
		c = *client
	} else {
		c.Timeout = DefaultTimeout
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &HTTPTransport{client: &c}
}

// Send implements Handler. Transport errors are returned untouched.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*http.Response, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	return t.client.Do(httpReq)
}
