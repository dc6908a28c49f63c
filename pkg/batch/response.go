package batch

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
)

// ResponseDocument is the JSON batch response body.
type ResponseDocument struct {
	Responses []StepResponse `json:"responses"`
	NextLink  string         `json:"@odata.nextLink,omitempty"`
}

// StepResponse is the wire form of one step's response.
type StepResponse struct {
	ID      string            `json:"id"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// header converts the wire headers to an http.Header.
func (s *StepResponse) header() http.Header {
	h := make(http.Header, len(s.Headers))
	for k, v := range s.Headers {
		h.Set(k, v)
	}
	return h
}

// content returns the step body bytes. Non-JSON bodies arrive as base64 strings.
func (s *StepResponse) content() []byte {
	body := bytes.TrimSpace(s.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	if body[0] == '"' && !strings.Contains(strings.ToLower(s.header().Get("Content-Type")), "json") {
		var encoded string
		if err := json.Unmarshal(body, &encoded); err == nil {
			if decoded, err := base64.StdEncoding.DecodeString(encoded); err == nil {
				return decoded
			}
		}
	}
	return body
}

// Response is the answer to one physical batch. The body is parsed on first
// use and the result is kept.
type Response struct {
	resp   *http.Response
	parsed bool
	err    error
	doc    ResponseDocument
	byID   map[string]*StepResponse
}

// NewResponse wraps a batch response. It takes ownership of the body.
func NewResponse(resp *http.Response) *Response {
	return &Response{resp: resp}
}

func (r *Response) parse() error {
	if r.parsed {
		return r.err
	}
	r.parsed = true

	if err := sdkerrors.CheckResponse(r.resp); err != nil {
		r.err = err
		return err
	}

	body, err := io.ReadAll(r.resp.Body)
	_ = r.resp.Body.Close()
	if err != nil {
		r.err = fmt.Errorf("read batch response: %w", err)
		return r.err
	}

	if err := json.Unmarshal(body, &r.doc); err != nil {
		r.err = sdkerrors.Wrap(sdkerrors.CodeGeneralException, "decode batch response", err)
		return r.err
	}

	r.byID = make(map[string]*StepResponse, len(r.doc.Responses))
	for i := range r.doc.Responses {
		s := &r.doc.Responses[i]
		r.byID[s.ID] = s
		if !sdkerrors.IsSuccess(s.Status) {
			batchStepFailuresTotal.WithLabelValues(strconv.Itoa(s.Status)).Inc()
		}
	}
	return nil
}

func (r *Response) step(id string) (*StepResponse, error) {
	if err := r.parse(); err != nil {
		return nil, err
	}
	s, ok := r.byID[id]
	if !ok {
		return nil, sdkerrors.Newf(sdkerrors.CodeItemNotFound, "no response for step %q", id)
	}
	return s, nil
}

// Has reports whether the batch answered id.
func (r *Response) Has(id string) bool {
	_, err := r.step(id)
	return err == nil
}

// IDs returns the answered step ids in response order.
func (r *Response) IDs() ([]string, error) {
	if err := r.parse(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(r.doc.Responses))
	for _, s := range r.doc.Responses {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// ResponseByID returns the step response as an *http.Response.
func (r *Response) ResponseByID(id string) (*http.Response, error) {
	s, err := r.step(id)
	if err != nil {
		return nil, err
	}
	body := s.content()
	return &http.Response{
		Status:        strconv.Itoa(s.Status) + " " + http.StatusText(s.Status),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.header(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}, nil
}

// ResponseStreamByID returns the step response body. Non-2xx steps return a
// *sdkerrors.ServiceError.
func (r *Response) ResponseStreamByID(id string) (io.ReadCloser, error) {
	s, err := r.step(id)
	if err != nil {
		return nil, err
	}
	if !sdkerrors.IsSuccess(s.Status) {
		return nil, sdkerrors.NewServiceError(s.Status, s.header(), s.content())
	}
	return io.NopCloser(bytes.NewReader(s.content())), nil
}

// DecodeResponseByID decodes a 2xx step body into v. Non-2xx steps return a
// *sdkerrors.ServiceError with code ItemNotFound for 404 and GeneralException
// otherwise. An empty body leaves v untouched.
func (r *Response) DecodeResponseByID(id string, v any) error {
	s, err := r.step(id)
	if err != nil {
		return err
	}
	if !sdkerrors.IsSuccess(s.Status) {
		return sdkerrors.NewServiceError(s.Status, s.header(), s.content())
	}
	body := s.content()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode step %q: %w", id, err)
	}
	return nil
}

// StatusCodes returns the status of every answered step.
func (r *Response) StatusCodes() (map[string]int, error) {
	if err := r.parse(); err != nil {
		return nil, err
	}
	codes := make(map[string]int, len(r.doc.Responses))
	for _, s := range r.doc.Responses {
		codes[s.ID] = s.Status
	}
	return codes, nil
}

// NextLink returns the @odata.nextLink of the batch response, "" if none.
func (r *Response) NextLink() (string, error) {
	if err := r.parse(); err != nil {
		return "", err
	}
	return r.doc.NextLink, nil
}

// ResponseCollection gathers the responses of a Collection's physical batches.
type ResponseCollection struct {
	entries []responseEntry
}

type responseEntry struct {
	ids      map[string]struct{}
	response *Response
}

// NewResponseCollection creates an empty collection.
func NewResponseCollection() *ResponseCollection {
	return &ResponseCollection{}
}

// Add records resp as the answer for the given step ids.
func (c *ResponseCollection) Add(ids []string, resp *Response) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	c.entries = append(c.entries, responseEntry{ids: set, response: resp})
}

// Responses returns the physical responses in execution order.
func (c *ResponseCollection) Responses() []*Response {
	out := make([]*Response, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.response)
	}
	return out
}

func (c *ResponseCollection) lookup(id string) (*Response, error) {
	for _, e := range c.entries {
		if _, ok := e.ids[id]; ok {
			return e.response, nil
		}
	}
	return nil, sdkerrors.Newf(sdkerrors.CodeItemNotFound, "no batch response holds step %q", id)
}

// ResponseByID returns a step response from whichever physical batch holds it.
func (c *ResponseCollection) ResponseByID(id string) (*http.Response, error) {
	r, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.ResponseByID(id)
}

// ResponseStreamByID returns a step body from whichever physical batch holds it.
func (c *ResponseCollection) ResponseStreamByID(id string) (io.ReadCloser, error) {
	r, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.ResponseStreamByID(id)
}

// DecodeResponseByID decodes a step body from whichever physical batch holds it.
func (c *ResponseCollection) DecodeResponseByID(id string, v any) error {
	r, err := c.lookup(id)
	if err != nil {
		return err
	}
	return r.DecodeResponseByID(id, v)
}

// StatusCodes aggregates the step statuses of all physical responses.
func (c *ResponseCollection) StatusCodes() (map[string]int, error) {
	codes := make(map[string]int)
	for _, e := range c.entries {
		part, err := e.response.StatusCodes()
		if err != nil {
			return nil, err
		}
		for id, status := range part {
			codes[id] = status
		}
	}
	return codes, nil
}
