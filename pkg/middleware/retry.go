package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// RetryAttemptHeader carries the attempt number on replayed requests.
	RetryAttemptHeader = "Retry-Attempt"

	// RetryAfterHeader is the server's requested delay (seconds or HTTP-date).
	RetryAfterHeader = "Retry-After"

	// DefaultMaxRetry is the default number of retries.
	DefaultMaxRetry = 3

	// MaxMaxRetry is the upper bound accepted for MaxRetry.
	MaxMaxRetry = 10

	// DefaultRetryDelay is the default base delay for exponential backoff.
	DefaultRetryDelay = 3 * time.Second

	// DefaultMaxRetryDelay caps a single computed backoff delay.
	DefaultMaxRetryDelay = 180 * time.Second
)

// RetryOptions configures RetryStage. Attached to a request it replaces the
// stage defaults for that request.
type RetryOptions struct {
	// MaxRetry is the maximum number of retries. 0 disables retrying.
	MaxRetry int

	// Delay is the base delay; attempt n waits Delay * 2^n unless Retry-After is present.
	Delay time.Duration

	// MaxDelay caps a computed backoff delay (not a server Retry-After).
	MaxDelay time.Duration

	// RetriesTimeLimit bounds the cumulative delay. 0 means unbounded.
	RetriesTimeLimit time.Duration

	// ShouldRetry vetoes a retry of a retryable response. Nil means always retry.
	ShouldRetry func(delay time.Duration, attempt int, resp *http.Response) bool
}

// Kind implements pipeline.Option.
func (RetryOptions) Kind() pipeline.OptionKind { return pipeline.OptionRetry }

// DefaultRetryOptions returns the default retry policy.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetry: DefaultMaxRetry,
		Delay:    DefaultRetryDelay,
		MaxDelay: DefaultMaxRetryDelay,
	}
}

// Validate checks the option bounds.
func (o RetryOptions) Validate() error {
	if o.MaxRetry < 0 || o.MaxRetry > MaxMaxRetry {
		return sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "max retry must be between 0 and %d (got %d)", MaxMaxRetry, o.MaxRetry)
	}
	if o.Delay < 0 || o.MaxDelay < 0 || o.RetriesTimeLimit < 0 {
		return sdkerrors.New(sdkerrors.CodeInvalidArgument, "retry delays must not be negative")
	}
	return nil
}

// RetryStage replays throttled or unavailable responses (429, 503, 504).
type RetryStage struct {
	options RetryOptions
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetryStage creates a retry stage with the given defaults.
func NewRetryStage(opts RetryOptions, logger zerolog.Logger) (*RetryStage, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &RetryStage{
		options: opts,
		logger:  logger,
		sleep:   sleepContext,
	}, nil
}

// Handle implements pipeline.Stage.
func (s *RetryStage) Handle(ctx context.Context, req *pipeline.Request, next pipeline.Handler) (*http.Response, error) {
	opts := s.optionsFor(req)

	resp, err := next.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	b := newBackOff(opts)
	var elapsed time.Duration

	for attempt := 0; isRetryableStatus(resp.StatusCode); {
		if opts.MaxRetry == 0 {
			return resp, nil
		}
		if !req.IsBuffered() {
			s.logger.Debug().
				Str("method", req.Method).
				Int("status", resp.StatusCode).
				Msg("Streamed request body cannot be replayed, not retrying")
			return resp, nil
		}

		delay := retryDelay(resp.Header, b.NextBackOff(), opts.MaxDelay)
		if opts.ShouldRetry != nil && !opts.ShouldRetry(delay, attempt, resp) {
			return resp, nil
		}

		if attempt >= opts.MaxRetry {
			return nil, s.exhausted(resp, attempt, "maximum retry count reached")
		}
		if opts.RetriesTimeLimit > 0 && elapsed+delay > opts.RetriesTimeLimit {
			return nil, s.exhausted(resp, attempt, "retry time limit would be exceeded")
		}

		attempt++
		elapsed += delay

		retriesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		retryDelaySeconds.Observe(delay.Seconds())

		s.logger.Warn().
			Str("method", req.Method).
			Str("url", req.URL.Redacted()).
			Int("status", resp.StatusCode).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Retrying request after delay")

		pipeline.DrainBody(resp)

		if err := s.sleep(ctx, delay); err != nil {
			s.logger.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry delay")
			return nil, err
		}

		retryReq, err := req.Clone()
		if err != nil {
			return nil, err
		}
		retryReq.Header.Set(RetryAttemptHeader, strconv.Itoa(attempt))

		resp, err = next.Send(ctx, retryReq)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func (s *RetryStage) optionsFor(req *pipeline.Request) RetryOptions {
	opts := s.options
	if o, ok := req.Option(pipeline.OptionRetry); ok {
		if ro, ok := o.(RetryOptions); ok {
			opts = ro
		}
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxRetryDelay
	}
	if opts.MaxRetry > MaxMaxRetry {
		opts.MaxRetry = MaxMaxRetry
	}
	return opts
}

// exhausted consumes the last response into a TooManyRetries error.
func (s *RetryStage) exhausted(resp *http.Response, attempts int, reason string) error {
	body, _ := pipeline.ReadBody(resp)

	retryExhaustedTotal.Inc()
	s.logger.Error().
		Int("status", resp.StatusCode).
		Int("retries", attempts).
		Str("reason", reason).
		Msg("Retry attempts exhausted")

	return (&sdkerrors.Error{
		Code:       sdkerrors.CodeTooManyRetries,
		Message:    fmt.Sprintf("too many retries performed (%d): %s", attempts, reason),
		StatusCode: resp.StatusCode,
		Body:       body,
	}).WithDetail("retryCount", attempts)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// newBackOff yields Delay*2, Delay*4, ... capped at MaxDelay: the delay for
// attempt n (1-based) is Delay * 2^n.
func newBackOff(opts RetryOptions) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     opts.Delay * 2,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         opts.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// retryDelay prefers the server's Retry-After verbatim over the computed backoff.
func retryDelay(h http.Header, computed, maxDelay time.Duration) time.Duration {
	if d, ok := ParseRetryAfter(h.Get(RetryAfterHeader), time.Now()); ok {
		return d
	}
	if computed > maxDelay {
		return maxDelay
	}
	return computed
}

// ParseRetryAfter parses a Retry-After value given as delta-seconds or an
// HTTP-date. Dates in the past yield 0.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
