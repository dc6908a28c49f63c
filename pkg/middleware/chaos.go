package middleware

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/rs/zerolog"
)

// DefaultChaosPercentage is the default probability (in percent) of injecting a failure.
const DefaultChaosPercentage = 10

// ChaosResponder builds a substitute response for a request, or returns nil.
type ChaosResponder func(req *pipeline.Request) *http.Response

// ChaosOptions configures ChaosStage.
type ChaosOptions struct {
	// Percentage is the probability (0..100) of injecting a known failure.
	Percentage int

	// PlannedChaos, when set, replaces random injection: a non-nil response
	// is returned instead of sending the request.
	PlannedChaos ChaosResponder

	// KnownFailures are the canned failures picked at random. Empty means
	// 429 and 503 with Retry-After, and 504.
	KnownFailures []ChaosResponder
}

// Kind implements pipeline.Option.
func (ChaosOptions) Kind() pipeline.OptionKind { return pipeline.OptionChaos }

// DefaultChaosOptions returns the default fault-injection settings.
func DefaultChaosOptions() ChaosOptions {
	return ChaosOptions{Percentage: DefaultChaosPercentage}
}

// Validate checks the option bounds.
func (o ChaosOptions) Validate() error {
	if o.Percentage < 0 || o.Percentage > 100 {
		return sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "chaos percentage must be between 0 and 100 (got %d)", o.Percentage)
	}
	return nil
}

// ChaosStage substitutes canned failure responses for testing resilience.
// Substituted requests never reach the transport.
type ChaosStage struct {
	options ChaosOptions
	rng     *rand.Rand
	logger  zerolog.Logger
}

// NewChaosStage creates a chaos stage.
func NewChaosStage(opts ChaosOptions, logger zerolog.Logger) (*ChaosStage, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &ChaosStage{
		options: opts,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}, nil
}

// Handle implements pipeline.Stage.
func (s *ChaosStage) Handle(ctx context.Context, req *pipeline.Request, next pipeline.Handler) (*http.Response, error) {
	opts := s.options
	if o, ok := req.Option(pipeline.OptionChaos); ok {
		if co, ok := o.(ChaosOptions); ok {
			opts = co
		}
	}

	if opts.PlannedChaos != nil {
		if resp := opts.PlannedChaos(req); resp != nil {
			return s.inject(req, resp), nil
		}
		return next.Send(ctx, req)
	}

	if opts.Percentage > 0 && s.rng.Intn(100) < opts.Percentage {
		failures := opts.KnownFailures
		if len(failures) == 0 {
			failures = defaultChaosFailures
		}
		if resp := failures[s.rng.Intn(len(failures))](req); resp != nil {
			return s.inject(req, resp), nil
		}
	}

	return next.Send(ctx, req)
}

func (s *ChaosStage) inject(req *pipeline.Request, resp *http.Response) *http.Response {
	chaosInjectionsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	s.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Msg("Injecting chaos response")
	return resp
}

var defaultChaosFailures = []ChaosResponder{
	func(*pipeline.Request) *http.Response {
		return ChaosResponse(http.StatusTooManyRequests, "TooManyRequests", 3)
	},
	func(*pipeline.Request) *http.Response {
		return ChaosResponse(http.StatusServiceUnavailable, "ServiceUnavailable", 3)
	},
	func(*pipeline.Request) *http.Response {
		return ChaosResponse(http.StatusGatewayTimeout, "GatewayTimeout", 0)
	},
}

// ChaosResponse builds a canned error response. A positive retryAfter (seconds)
// adds a Retry-After header.
func ChaosResponse(status int, code string, retryAfter int) *http.Response {
	body := `{"error":{"code":"` + code + `","message":"Injected by chaos stage"}}`
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	if retryAfter > 0 {
		header.Set(RetryAfterHeader, strconv.Itoa(retryAfter))
	}
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}
