package middleware

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
)

// scriptedHandler answers requests with a fixed sequence of responses and
// records every request it sees. The last response repeats once the script
// runs out.
type scriptedHandler struct {
	mu        sync.Mutex
	responses []func(req *pipeline.Request) *http.Response
	requests  []*pipeline.Request
}

func (h *scriptedHandler) Send(_ context.Context, req *pipeline.Request) (*http.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.requests = append(h.requests, req)
	i := len(h.requests) - 1
	if i >= len(h.responses) {
		i = len(h.responses) - 1
	}
	return h.responses[i](req), nil
}

func (h *scriptedHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

func respond(status int, headers ...string) func(*pipeline.Request) *http.Response {
	return func(*pipeline.Request) *http.Response {
		return newResponse(status, "", headers...)
	}
}

func newResponse(status int, body string, headers ...string) *http.Response {
	h := make(http.Header)
	for i := 0; i+1 < len(headers); i += 2 {
		h.Add(headers[i], headers[i+1])
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// recordSleep replaces the retry stage's sleep and collects requested delays.
func recordSleep(s *RetryStage) *[]time.Duration {
	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return &delays
}

func mustRequest(method, rawURL string, body []byte) *pipeline.Request {
	req, err := pipeline.NewRequest(method, rawURL, body)
	if err != nil {
		panic(err)
	}
	return req
}
