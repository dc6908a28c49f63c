package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRedirect is the default number of redirects followed.
	DefaultMaxRedirect = 5

	// MaxMaxRedirect is the upper bound accepted for MaxRedirect.
	MaxMaxRedirect = 20
)

// RedirectOptions configures RedirectStage.
type RedirectOptions struct {
	// MaxRedirect is the number of redirects followed. 0 disables following.
	MaxRedirect int

	// ShouldRedirect vetoes following a redirect response. Nil means always follow.
	ShouldRedirect func(resp *http.Response) bool
}

// Kind implements pipeline.Option.
func (RedirectOptions) Kind() pipeline.OptionKind { return pipeline.OptionRedirect }

// DefaultRedirectOptions returns the default redirect policy.
func DefaultRedirectOptions() RedirectOptions {
	return RedirectOptions{MaxRedirect: DefaultMaxRedirect}
}

// Validate checks the option bounds.
func (o RedirectOptions) Validate() error {
	if o.MaxRedirect < 0 || o.MaxRedirect > MaxMaxRedirect {
		return sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "max redirect must be between 0 and %d (got %d)", MaxMaxRedirect, o.MaxRedirect)
	}
	return nil
}

// RedirectStage follows 301, 302, 303, 307 and 308 responses.
type RedirectStage struct {
	options RedirectOptions
	logger  zerolog.Logger
}

// NewRedirectStage creates a redirect stage with the given defaults.
func NewRedirectStage(opts RedirectOptions, logger zerolog.Logger) (*RedirectStage, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &RedirectStage{options: opts, logger: logger}, nil
}

// Handle implements pipeline.Stage.
func (s *RedirectStage) Handle(ctx context.Context, req *pipeline.Request, next pipeline.Handler) (*http.Response, error) {
	opts := s.optionsFor(req)

	resp, err := next.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	current := req
	for redirectCount := 0; isRedirectStatus(resp.StatusCode); {
		if opts.MaxRedirect <= 0 || (opts.ShouldRedirect != nil && !opts.ShouldRedirect(resp)) {
			return resp, nil
		}
		if !current.IsBuffered() {
			s.logger.Debug().
				Str("method", current.Method).
				Msg("Streamed request body cannot be replayed, not following redirect")
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			pipeline.DrainBody(resp)
			return nil, &sdkerrors.Error{
				Code:       sdkerrors.CodeGeneralException,
				Message:    "redirect response has no Location header",
				StatusCode: resp.StatusCode,
			}
		}

		if redirectCount >= opts.MaxRedirect {
			pipeline.DrainBody(resp)
			s.logger.Warn().
				Str("url", req.URL.Redacted()).
				Int("redirects", redirectCount).
				Msg("Redirect limit exceeded")
			return nil, (&sdkerrors.Error{
				Code:       sdkerrors.CodeTooManyRedirects,
				Message:    "too many redirects performed (" + strconv.Itoa(redirectCount) + ")",
				StatusCode: resp.StatusCode,
			}).WithDetail("redirectCount", redirectCount)
		}

		target, err := current.URL.Parse(location)
		if err != nil {
			pipeline.DrainBody(resp)
			return nil, sdkerrors.Wrap(sdkerrors.CodeGeneralException, "parse Location header", err)
		}

		pipeline.DrainBody(resp)

		nextReq, err := current.Clone()
		if err != nil {
			return nil, err
		}
		nextReq.URL = target

		if resp.StatusCode == http.StatusSeeOther {
			nextReq.Method = http.MethodGet
			nextReq.Body = nil
			nextReq.ContentLength = 0
			nextReq.Header.Del("Content-Type")
			nextReq.Header.Del("Content-Length")
		}

		if !strings.EqualFold(target.Host, req.URL.Host) || !strings.EqualFold(target.Scheme, req.URL.Scheme) {
			nextReq.Header.Del("Authorization")
		}

		redirectCount++
		redirectsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		s.logger.Debug().
			Int("status", resp.StatusCode).
			Str("location", target.Redacted()).
			Int("redirect", redirectCount).
			Msg("Following redirect")

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err = next.Send(ctx, nextReq)
		if err != nil {
			return nil, err
		}
		current = nextReq
	}

	return resp, nil
}

func (s *RedirectStage) optionsFor(req *pipeline.Request) RedirectOptions {
	if o, ok := req.Option(pipeline.OptionRedirect); ok {
		if ro, ok := o.(RedirectOptions); ok {
			if ro.MaxRedirect > MaxMaxRedirect {
				ro.MaxRedirect = MaxMaxRedirect
			}
			return ro
		}
	}
	return s.options
}

func isRedirectStatus(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}
