// Package testutil provides testing utilities for the Graph core SDK.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGraph is a configurable mock service for testing.
type MockGraph struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	Paths             []string
}

// NewMockGraph creates a new mock server. Paths are matched without query.
func NewMockGraph() *MockGraph {
	mock := &MockGraph{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.Paths = append(mock.Paths, r.URL.Path)
		mock.mu.Unlock()

		mock.dispatch(w, r)
	}))

	return mock
}

func (m *MockGraph) dispatch(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	handler, exists := m.handlers[r.URL.Path]
	m.mu.RUnlock()

	if exists {
		handler(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "itemNotFound", "no handler for "+r.URL.Path)
}

// URL returns the mock server URL.
func (m *MockGraph) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGraph) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGraph) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.Paths = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGraph) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGraph) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.write)
}

// SetSequence answers a path with the given responses in order and repeats
// the last one.
func (m *MockGraph) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	calls := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(calls, len(responses)-1)]
		calls++
		mu.Unlock()
		resp.write(w, r)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGraph) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequestHeader returns the headers of the latest request.
func (m *MockGraph) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (resp MockResponse) write(w http.ResponseWriter, r *http.Request) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`, code, message)
}

// NewJSONResponse creates a 200 OK response with a JSON body.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewThrottledResponse creates a 429 Too Many Requests response.
func NewThrottledResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":{"code":"TooManyRequests","message":"Too many requests"}}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusServiceUnavailable, "serviceNotAvailable", "Service unavailable")
}

// NewErrorResponse creates a response carrying an error document.
func NewErrorResponse(status int, code, message string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"error":{"code":%q,"message":%q}}`, code, message),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewPagedHandler serves pages as a collection. Every page but the last
// carries an @odata.nextLink (?page=N); the last carries deltaLink when set.
func (m *MockGraph) NewPagedHandler(path string, deltaLink string, pages ...[]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if n < 0 || n >= len(pages) {
			writeError(w, http.StatusBadRequest, "invalidRequest", "unknown page")
			return
		}

		body := map[string]any{"value": pages[n]}
		switch {
		case n+1 < len(pages):
			body["@odata.nextLink"] = fmt.Sprintf("%s%s?page=%d", m.URL(), path, n+1)
		case deltaLink != "":
			body["@odata.deltaLink"] = deltaLink
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

// NewBatchHandler answers a JSON batch by dispatching every step to the
// handlers registered under versionPrefix + step url.
func (m *MockGraph) NewBatchHandler(versionPrefix string) http.HandlerFunc {
	type step struct {
		ID      string            `json:"id"`
		Method  string            `json:"method"`
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
		Body    json.RawMessage   `json:"body"`
	}
	type stepResponse struct {
		ID      string            `json:"id"`
		Status  int               `json:"status"`
		Headers map[string]string `json:"headers,omitempty"`
		Body    json.RawMessage   `json:"body,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var doc struct {
			Requests []step `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeError(w, http.StatusBadRequest, "invalidRequest", err.Error())
			return
		}

		out := struct {
			Responses []stepResponse `json:"responses"`
		}{}
		for _, s := range doc.Requests {
			var body io.Reader
			if len(s.Body) > 0 {
				body = bytes.NewReader(s.Body)
			}
			inner := httptest.NewRequest(s.Method, versionPrefix+s.URL, body)
			for k, v := range s.Headers {
				inner.Header.Set(k, v)
			}

			rec := httptest.NewRecorder()
			m.dispatch(rec, inner)

			headers := make(map[string]string)
			for k := range rec.Header() {
				headers[k] = rec.Header().Get(k)
			}
			resp := stepResponse{ID: s.ID, Status: rec.Code, Headers: headers}
			if data := bytes.TrimSpace(rec.Body.Bytes()); len(data) > 0 {
				if json.Valid(data) {
					resp.Body = data
				} else {
					// Non-JSON bodies travel as base64 strings.
					resp.Body, _ = json.Marshal(data)
				}
			}
			out.Responses = append(out.Responses, resp)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
