package sdkerrors

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrorPayload is the error document returned by the service:
// {"error": {"code": "...", "message": "...", "innerError": {...}}}.
type ErrorPayload struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	InnerError map[string]any `json:"innerError,omitempty"`
}

// ServiceError is a non-success service response surfaced as an error.
type ServiceError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is CodeItemNotFound for 404 responses and CodeGeneralException otherwise.
	Code Code

	// Payload is the server's error document, nil when the body had none.
	Payload *ErrorPayload

	// Headers are the response headers.
	Headers http.Header

	// Body is the raw response body.
	Body []byte
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Payload != nil && e.Payload.Code != "" {
		return fmt.Sprintf("%s (status %d): %s: %s", e.Code, e.StatusCode, e.Payload.Code, e.Payload.Message)
	}
	return fmt.Sprintf("%s (status %d)", e.Code, e.StatusCode)
}

// NewServiceError classifies a non-success response. The body is parsed for
// an error payload; unparsable bodies are kept raw.
func NewServiceError(statusCode int, headers http.Header, body []byte) *ServiceError {
	code := CodeGeneralException
	if statusCode == http.StatusNotFound {
		code = CodeItemNotFound
	}

	se := &ServiceError{
		StatusCode: statusCode,
		Code:       code,
		Headers:    headers,
		Body:       body,
	}

	var doc struct {
		Error *ErrorPayload `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &doc) == nil && doc.Error != nil {
		se.Payload = doc.Error
	}

	return se
}

// IsSuccess reports whether an HTTP status code is 2xx.
func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// CheckResponse returns nil for 2xx responses. Otherwise it consumes and
// closes the body and returns a *ServiceError.
func CheckResponse(resp *http.Response) error {
	if IsSuccess(resp.StatusCode) {
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	return NewServiceError(resp.StatusCode, resp.Header, body)
}
