// Package sdkerrors defines the error taxonomy shared by the pipeline, batch,
// upload and pagination packages. Every error raised by the SDK carries a
// stable machine-readable Code and a human-readable message.
package sdkerrors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeGeneralException is the fallback for unexpected service or protocol failures.
	CodeGeneralException Code = "generalException"

	// CodeItemNotFound is used for 404 service responses.
	CodeItemNotFound Code = "itemNotFound"

	// CodeInvalidArgument reports a caller supplied an unusable argument.
	CodeInvalidArgument Code = "invalidArgument"

	// CodeTooManyRedirects is raised when the redirect limit is exceeded.
	CodeTooManyRedirects Code = "tooManyRedirects"

	// CodeTooManyRetries is raised when the retry budget is exhausted.
	CodeTooManyRetries Code = "tooManyRetries"

	// CodeAuthenticationProviderMissing is raised when no credential provider is configured.
	CodeAuthenticationProviderMissing Code = "authenticationProviderMissing"

	// CodeBatchLimitExceeded is raised when a batch would exceed its step limit.
	CodeBatchLimitExceeded Code = "batchLimitExceeded"

	// CodeDuplicateStepID is raised by the batch AddUniqueStep helpers when a
	// step id is already present. AddStep itself reports duplicates as false.
	CodeDuplicateStepID Code = "duplicateStepId"

	// CodeCollectionSealed is raised when a sealed batch collection is mutated.
	CodeCollectionSealed Code = "collectionSealed"

	// CodeUploadSessionExpired is raised when an upload session is past its expiration.
	CodeUploadSessionExpired Code = "uploadSessionExpired"

	// CodeUploadSliceFailed is raised when a slice keeps failing transiently.
	CodeUploadSliceFailed Code = "uploadSliceFailed"

	// CodeInvalidRange marks a slice the server reports as already applied.
	CodeInvalidRange Code = "invalidRange"

	// CodeUploadCanceled is raised when the upload exhausted its session-level tries.
	CodeUploadCanceled Code = "uploadCanceled"

	// CodeNextLinkLoopDetected is raised when a next link repeats during paging.
	CodeNextLinkLoopDetected Code = "nextLinkLoopDetected"
)

// Error is the SDK error type.
type Error struct {
	// Code classifies the error.
	Code Code

	// Message describes the error.
	Message string

	// StatusCode is the HTTP status of the last response involved, 0 if none.
	StatusCode int

	// Body is the body of the last response involved, if it was read.
	Body []byte

	// Details holds additional machine-readable context (e.g. "redirectCount").
	Details map[string]any

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail sets a single detail and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) && e.Code == code {
		return true
	}
	var se *ServiceError
	if errors.As(err, &se) && se.Code == code {
		return true
	}
	return false
}

// CodeOf returns the code of the first SDK error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
