package batch

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBody counts Close calls on a batch response body.
type countingBody struct {
	io.Reader
	closes int
}

func (b *countingBody) Close() error {
	b.closes++
	return nil
}

func batchResponse(body string) (*Response, *countingBody) {
	cb := &countingBody{Reader: strings.NewReader(body)}
	return NewResponse(&http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       cb,
	}), cb
}

const sampleResponses = `{
	"responses": [
		{"id": "1", "status": 200, "headers": {"Content-Type": "application/json"}, "body": {"id": "u1", "displayName": "Ada"}},
		{"id": "2", "status": 404, "body": {"error": {"code": "Request_ResourceNotFound", "message": "missing"}}},
		{"id": "3", "status": 500, "body": {"error": {"code": "InternalServerError", "message": "boom"}}},
		{"id": "4", "status": 200, "headers": {"Content-Type": "text/plain"}, "body": "` + "aGVsbG8=" + `"},
		{"id": "5", "status": 204}
	],
	"@odata.nextLink": "https://graph.example.com/v1.0/$batch?$skiptoken=1"
}`

func TestResponse_DecodeResponseByID(t *testing.T) {
	r, body := batchResponse(sampleResponses)

	var user struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}
	require.NoError(t, r.DecodeResponseByID("1", &user))
	assert.Equal(t, "Ada", user.DisplayName)

	err := r.DecodeResponseByID("2", &user)
	var se *sdkerrors.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, sdkerrors.CodeItemNotFound, se.Code)
	assert.Equal(t, "Request_ResourceNotFound", se.Payload.Code)

	err = r.DecodeResponseByID("3", &user)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, sdkerrors.CodeGeneralException, se.Code)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)

	require.NoError(t, r.DecodeResponseByID("5", &user), "empty body")

	err = r.DecodeResponseByID("missing", &user)
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeItemNotFound))

	assert.Equal(t, 1, body.closes, "body is parsed once")
}

func TestResponse_ResponseByID(t *testing.T) {
	r, _ := batchResponse(sampleResponses)

	resp, err := r.ResponseByID("1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","displayName":"Ada"}`, string(data))
}

func TestResponse_ResponseStreamByID(t *testing.T) {
	r, _ := batchResponse(sampleResponses)

	stream, err := r.ResponseStreamByID("4")
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	decoded, _ := base64.StdEncoding.DecodeString("aGVsbG8=")
	assert.Equal(t, decoded, data)

	_, err = r.ResponseStreamByID("3")
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeGeneralException))
}

func TestResponse_StatusCodesAndNextLink(t *testing.T) {
	r, _ := batchResponse(sampleResponses)

	codes, err := r.StatusCodes()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"1": 200, "2": 404, "3": 500, "4": 200, "5": 204}, codes)

	link, err := r.NextLink()
	require.NoError(t, err)
	assert.Equal(t, "https://graph.example.com/v1.0/$batch?$skiptoken=1", link)

	ids, err := r.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
}

func TestResponse_InvalidDocument(t *testing.T) {
	r, _ := batchResponse(`not json`)

	_, err := r.StatusCodes()
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeGeneralException))

	_, err2 := r.NextLink()
	assert.Equal(t, err, err2, "parse errors are memoized")
}

func TestResponseCollection(t *testing.T) {
	first, _ := batchResponse(`{"responses":[{"id":"a","status":200,"body":{"n":1}},{"id":"b","status":429}]}`)
	second, _ := batchResponse(`{"responses":[{"id":"c","status":201,"body":{"n":3}}]}`)

	rc := NewResponseCollection()
	rc.Add([]string{"a", "b"}, first)
	rc.Add([]string{"c"}, second)

	var v struct {
		N int `json:"n"`
	}
	require.NoError(t, rc.DecodeResponseByID("c", &v))
	assert.Equal(t, 3, v.N)

	resp, err := rc.ResponseByID("b")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	codes, err := rc.StatusCodes()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 200, "b": 429, "c": 201}, codes)

	_, err = rc.ResponseStreamByID("zzz")
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeItemNotFound))
	assert.Len(t, rc.Responses(), 2)
}
