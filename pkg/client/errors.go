package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
)

// ErrorClass represents a classification of failed requests.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than throttling.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassThrottled represents 429 responses and exhausted retry budgets.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassRedirect represents redirect loops and limits.
	ErrorClassRedirect ErrorClass = "redirect"

	// ErrorClassAuth represents 401/403 responses and credential failures.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassCanceled represents canceled or timed out contexts.
	ErrorClassCanceled ErrorClass = "canceled"

	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyError categorizes a failed request for metrics and logging.
func classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ErrorClassCanceled
		case sdkerrors.HasCode(err, sdkerrors.CodeTooManyRetries):
			return ErrorClassThrottled
		case sdkerrors.HasCode(err, sdkerrors.CodeTooManyRedirects):
			return ErrorClassRedirect
		case sdkerrors.HasCode(err, sdkerrors.CodeAuthenticationProviderMissing):
			return ErrorClassAuth
		default:
			return ErrorClassNetwork
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassThrottled
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrorClassAuth
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
