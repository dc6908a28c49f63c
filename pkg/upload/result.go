package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
)

// Result is the item created by a completed upload.
type Result struct {
	// StatusCode is 200 or 201.
	StatusCode int

	// Location is the Location header of the final response, if any.
	Location string

	// Item is the JSON body describing the uploaded item.
	Item json.RawMessage
}

// Decode unmarshals the uploaded item into v.
func (r *Result) Decode(v any) error {
	if len(r.Item) == 0 {
		return sdkerrors.New(sdkerrors.CodeGeneralException, "upload result has no item")
	}
	return json.Unmarshal(r.Item, v)
}

type resultKind int

const (
	// resultCompleted carries the final item.
	resultCompleted resultKind = iota
	// resultNoItem is a slice that was accepted or already applied.
	resultNoItem
	// resultRetryable may succeed when sent again.
	resultRetryable
	// resultFatal ends the upload.
	resultFatal
)

func (k resultKind) String() string {
	switch k {
	case resultCompleted:
		return "completed"
	case resultNoItem:
		return "no_item"
	case resultRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// sliceResult is the outcome of one slice PUT.
type sliceResult struct {
	kind    resultKind
	result  *Result
	session *Session
	err     error
}

// classifySlice turns the response of a slice PUT (or its transport error)
// into a sliceResult. It consumes and closes the body.
func classifySlice(resp *http.Response, err error) sliceResult {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return sliceResult{kind: resultFatal, err: err}
		}
		return sliceResult{kind: resultRetryable, err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sliceResult{kind: resultRetryable, err: err}
	}

	switch status := resp.StatusCode; {
	case status == http.StatusOK || status == http.StatusCreated:
		return sliceResult{kind: resultCompleted, result: &Result{
			StatusCode: status,
			Location:   resp.Header.Get("Location"),
			Item:       body,
		}}

	case status == http.StatusAccepted:
		var session Session
		if len(body) > 0 {
			if err := json.Unmarshal(body, &session); err != nil {
				return sliceResult{kind: resultFatal, err: sdkerrors.Wrap(sdkerrors.CodeGeneralException, "decode upload session", err)}
			}
		}
		return sliceResult{kind: resultNoItem, session: &session}

	case sdkerrors.IsSuccess(status):
		return sliceResult{kind: resultNoItem}
	}

	se := sdkerrors.NewServiceError(resp.StatusCode, resp.Header, body)
	switch {
	case isInvalidRange(se):
		return sliceResult{kind: resultNoItem, err: se}
	case se.StatusCode == http.StatusRequestTimeout, se.StatusCode >= 500:
		return sliceResult{kind: resultRetryable, err: se}
	default:
		return sliceResult{kind: resultFatal, err: se}
	}
}

func isInvalidRange(se *sdkerrors.ServiceError) bool {
	if se.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return true
	}
	return se.Payload != nil && se.Payload.Code == string(sdkerrors.CodeInvalidRange)
}
