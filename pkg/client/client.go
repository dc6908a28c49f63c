// Package client assembles the default request pipeline and provides the
// entry point for sending requests to the API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/logging"
	"github.com/Sternrassler/graph-core-go/pkg/middleware"
	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/Sternrassler/graph-core-go/pkg/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Version is the SDK version reported in the SdkVersion header.
const Version = "0.1.0"

// Prometheus metrics for client requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_requests_total",
		Help: "Total requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphcore_request_duration_seconds",
		Help:    "Request duration in seconds including retries and redirects, by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"method"})

	requestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_request_errors_total",
		Help: "Total failed requests by error class",
	}, []string{"class"})
)

// Client sends requests through the middleware pipeline.
type Client struct {
	handler pipeline.Handler
	baseURL *url.URL
	config  Config
	logger  zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the service root, e.g. "https://graph.microsoft.com".
	BaseURL string

	// APIVersion is appended to BaseURL for relative paths ("v1.0" or "beta").
	APIVersion string

	// AuthProvider attaches credentials. Required unless Anonymous is set.
	AuthProvider middleware.AuthenticationProvider

	// Anonymous drops the authentication stage.
	Anonymous bool

	// Scopes requested for every token.
	Scopes []string

	// HTTPClient is the transport client (default: 100s timeout).
	HTTPClient *http.Client

	// Pipeline stage defaults
	Retry       middleware.RetryOptions
	Redirect    middleware.RedirectOptions
	Compression bool

	// Chaos enables fault injection when non-nil. Never set in production.
	Chaos *middleware.ChaosOptions

	// Throttle shares throttle blocks with other processes through Redis. Optional.
	Throttle *throttle.Tracker

	// Stages are extra stages placed between the built-in stages and the transport.
	Stages []pipeline.Stage
}

// DefaultConfig returns a default configuration for the given credential provider.
func DefaultConfig(provider middleware.AuthenticationProvider) Config {
	return Config{
		BaseURL:      "https://graph.microsoft.com",
		APIVersion:   "v1.0",
		AuthProvider: provider,
		Retry:        middleware.DefaultRetryOptions(),
		Redirect:     middleware.DefaultRedirectOptions(),
		Compression:  true,
	}
}

// New creates a new client and assembles its pipeline.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "https" && baseURL.Scheme != "http" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", baseURL.Scheme)
	}

	if cfg.AuthProvider == nil && !cfg.Anonymous {
		return nil, sdkerrors.New(sdkerrors.CodeAuthenticationProviderMissing, "auth provider is required unless Anonymous is set")
	}

	logger := logging.NewLogger("graph-client")

	handler, err := buildPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		handler: handler,
		baseURL: baseURL,
		config:  cfg,
		logger:  logger,
	}, nil
}

// buildPipeline chains the stages in their fixed order:
// telemetry, OData query, compression, auth, redirect, retry, chaos,
// shared throttle, custom.
func buildPipeline(cfg Config, logger zerolog.Logger) (pipeline.Handler, error) {
	features := middleware.FeatureRetry | middleware.FeatureRedirect | middleware.FeatureODataQuery
	if cfg.HTTPClient == nil {
		features |= middleware.FeatureDefaultTransport
	}

	var stages []pipeline.Stage

	var compression pipeline.Stage
	if cfg.Compression {
		features |= middleware.FeatureCompression
		compression = middleware.NewCompressionStage(middleware.CompressionOptions{Enabled: true}, logger)
	}

	var auth pipeline.Stage
	if !cfg.Anonymous {
		features |= middleware.FeatureAuth
		auth = middleware.NewAuthenticationStage(cfg.AuthProvider, middleware.AuthOptions{Scopes: cfg.Scopes}, logger)
	}

	redirect, err := middleware.NewRedirectStage(cfg.Redirect, logger)
	if err != nil {
		return nil, fmt.Errorf("redirect options: %w", err)
	}

	retry, err := middleware.NewRetryStage(cfg.Retry, logger)
	if err != nil {
		return nil, fmt.Errorf("retry options: %w", err)
	}

	var chaos pipeline.Stage
	if cfg.Chaos != nil {
		features |= middleware.FeatureChaos
		stage, err := middleware.NewChaosStage(*cfg.Chaos, logger)
		if err != nil {
			return nil, fmt.Errorf("chaos options: %w", err)
		}
		chaos = stage
	}

	stages = append(stages,
		middleware.NewTelemetryStage(Version, features, logger),
		middleware.NewODataQueryStage(logger),
		compression,
		auth,
		redirect,
		retry,
		chaos,
	)
	if cfg.Throttle != nil {
		stages = append(stages, throttle.NewStage(cfg.Throttle))
	}
	stages = append(stages, cfg.Stages...)

	return pipeline.Chain(pipeline.NewHTTPTransport(cfg.HTTPClient), stages...), nil
}

// Handler returns the assembled pipeline, e.g. for batch, upload and paging.
func (c *Client) Handler() pipeline.Handler {
	return c.handler
}

// URL resolves a path against the base URL and API version. Absolute URLs
// are returned unchanged.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	base := c.baseURL.String()
	if c.config.APIVersion != "" {
		base += "/" + c.config.APIVersion
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// NewRequest creates a request for a path relative to the API version root.
func (c *Client) NewRequest(method, path string, body []byte) (*pipeline.Request, error) {
	req, err := pipeline.NewRequest(method, c.URL(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends a request through the pipeline. Non-2xx responses are returned as
// responses, not errors; use sdkerrors.CheckResponse to convert them.
func (c *Client) Do(ctx context.Context, req *pipeline.Request) (*http.Response, error) {
	method := req.Method

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("method", method).
		Str("url", req.URL.Redacted()).
		Msg("Executing request")

	resp, err := c.handler.Send(ctx, req)
	if err != nil {
		class := classifyError(nil, err)
		requestErrorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(method, string(class)).Inc()
		c.logger.Error().
			Err(err).
			Str("method", method).
			Str("error_class", string(class)).
			Msg("Request failed")
		return nil, err
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		class := classifyError(resp, nil)
		requestErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("method", method).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Request returned error status")
	}

	return resp, nil
}

// Get performs a GET request to a path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// GetJSON performs a GET request and decodes a 2xx JSON body into v.
// Other statuses are returned as *sdkerrors.ServiceError.
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := sdkerrors.CheckResponse(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
