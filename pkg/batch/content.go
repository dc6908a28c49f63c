package batch

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/google/uuid"
)

const (
	// DefaultLimit is the default number of steps per physical batch.
	DefaultLimit = 20

	// MinLimit and MaxLimit bound the steps per physical batch.
	MinLimit = 2
	MaxLimit = 20
)

// Step is one request inside a batch.
type Step struct {
	// ID is unique within the batch.
	ID string

	// Request is the request to run. Its URL must be absolute or rooted.
	Request *pipeline.Request

	// DependsOn lists step ids that must complete before this one.
	DependsOn []string
}

// RequestDocument is the JSON batch request body.
type RequestDocument struct {
	Requests []StepPayload `json:"requests"`
}

// StepPayload is the wire form of a Step.
type StepPayload struct {
	ID        string            `json:"id"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      json.RawMessage   `json:"body,omitempty"`
	DependsOn []string          `json:"dependsOn,omitempty"`
}

// Content is one physical batch. Steps keep their submission order, which
// is the order the service evaluates dependencies in.
type Content struct {
	steps *linkedhashmap.Map
	limit int
}

// NewContent creates an empty batch. A zero limit means DefaultLimit.
func NewContent(limit int) (*Content, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < MinLimit || limit > MaxLimit {
		return nil, sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "batch limit must be between %d and %d (got %d)", MinLimit, MaxLimit, limit)
	}
	return &Content{steps: linkedhashmap.New(), limit: limit}, nil
}

// Limit returns the maximum number of steps.
func (c *Content) Limit() int {
	return c.limit
}

// Len returns the number of steps.
func (c *Content) Len() int {
	return c.steps.Size()
}

// IsFull reports whether another step would exceed the limit.
func (c *Content) IsFull() bool {
	return c.steps.Size() >= c.limit
}

// Has reports whether a step with id exists.
func (c *Content) Has(id string) bool {
	_, ok := c.steps.Get(id)
	return ok
}

// Step returns the step with id.
func (c *Content) Step(id string) (Step, bool) {
	v, ok := c.steps.Get(id)
	if !ok {
		return Step{}, false
	}
	return v.(Step), true
}

// Steps returns the steps in submission order.
func (c *Content) Steps() []Step {
	steps := make([]Step, 0, c.steps.Size())
	it := c.steps.Iterator()
	for it.Next() {
		steps = append(steps, it.Value().(Step))
	}
	return steps
}

// IDs returns the step ids in submission order.
func (c *Content) IDs() []string {
	ids := make([]string, 0, c.steps.Size())
	for _, k := range c.steps.Keys() {
		ids = append(ids, k.(string))
	}
	return ids
}

// AddStep appends a step. It returns false without error when the id is
// already present.
func (c *Content) AddStep(step Step) (bool, error) {
	if step.ID == "" {
		return false, sdkerrors.New(sdkerrors.CodeInvalidArgument, "step id is required")
	}
	if step.Request == nil {
		return false, sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "step %q has no request", step.ID)
	}
	if c.Has(step.ID) {
		return false, nil
	}
	if c.IsFull() {
		return false, sdkerrors.Newf(sdkerrors.CodeBatchLimitExceeded, "batch already holds %d steps", c.limit).
			WithDetail("limit", c.limit)
	}
	for _, dep := range step.DependsOn {
		if !c.Has(dep) {
			return false, sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "step %q depends on unknown step %q", step.ID, dep)
		}
	}

	step.DependsOn = slices.Clone(step.DependsOn)
	c.steps.Put(step.ID, step)
	return true, nil
}

// AddUniqueStep is AddStep for callers that treat a repeated id as a usage
// error: it fails with sdkerrors.CodeDuplicateStepID instead of returning false.
func (c *Content) AddUniqueStep(step Step) error {
	added, err := c.AddStep(step)
	if err != nil {
		return err
	}
	if !added {
		return duplicateStepError(step.ID)
	}
	return nil
}

func duplicateStepError(id string) error {
	return sdkerrors.Newf(sdkerrors.CodeDuplicateStepID, "step id %q is already present", id).
		WithDetail("id", id)
}

// AddRequest appends req as a step with a generated id and returns the id.
func (c *Content) AddRequest(req *pipeline.Request, dependsOn ...string) (string, error) {
	id := uuid.NewString()
	if _, err := c.AddStep(Step{ID: id, Request: req, DependsOn: dependsOn}); err != nil {
		return "", err
	}
	return id, nil
}

// RemoveStep removes a step and drops its id from every other step's
// DependsOn. It reports whether the step existed.
func (c *Content) RemoveStep(id string) bool {
	if !c.Has(id) {
		return false
	}
	c.steps.Remove(id)

	for _, step := range c.Steps() {
		if !slices.Contains(step.DependsOn, id) {
			continue
		}
		step.DependsOn = slices.DeleteFunc(step.DependsOn, func(dep string) bool { return dep == id })
		c.steps.Put(step.ID, step)
	}
	return true
}

// Document builds the wire document. Request bodies are buffered first.
func (c *Content) Document() (*RequestDocument, error) {
	doc := &RequestDocument{Requests: make([]StepPayload, 0, c.Len())}
	for _, step := range c.Steps() {
		payload, err := stepPayload(step)
		if err != nil {
			return nil, err
		}
		doc.Requests = append(doc.Requests, payload)
	}
	return doc, nil
}

// MarshalJSON implements json.Marshaler.
func (c *Content) MarshalJSON() ([]byte, error) {
	doc, err := c.Document()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// NewBatchRequest builds the POST request carrying this batch.
func (c *Content) NewBatchRequest(batchURL string) (*pipeline.Request, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	req, err := pipeline.NewRequest(http.MethodPost, batchURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func stepPayload(step Step) (StepPayload, error) {
	clone, err := step.Request.Clone()
	if err != nil {
		return StepPayload{}, fmt.Errorf("step %q: %w", step.ID, err)
	}

	payload := StepPayload{
		ID:        step.ID,
		Method:    clone.Method,
		URL:       relativeURL(clone),
		DependsOn: step.DependsOn,
	}

	if len(clone.Header) > 0 {
		payload.Headers = make(map[string]string, len(clone.Header))
		for k, v := range clone.Header {
			payload.Headers[k] = strings.Join(v, "; ")
		}
	}

	if len(clone.Body) > 0 {
		payload.Body = encodeBody(clone.Body)
	}

	return payload, nil
}

// encodeBody embeds JSON bodies as-is and base64 encodes anything else as a JSON string.
func encodeBody(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(base64.StdEncoding.EncodeToString(body))
	return encoded
}

var versionSegment = regexp.MustCompile(`^(v\d+(\.\d+)*|beta)$`)

// relativeURL strips the scheme, host, the API version segment and
// everything before it.
func relativeURL(req *pipeline.Request) string {
	segments := strings.Split(strings.TrimPrefix(req.URL.EscapedPath(), "/"), "/")

	rest := segments
	for i, seg := range segments {
		if versionSegment.MatchString(seg) {
			rest = segments[i+1:]
			break
		}
	}

	rel := "/" + strings.Join(rest, "/")
	if req.URL.RawQuery != "" {
		rel += "?" + req.URL.RawQuery
	}
	return rel
}
