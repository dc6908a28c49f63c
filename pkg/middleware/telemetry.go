package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// SDKVersionHeader carries the SDK name, version and feature usage flags.
	SDKVersionHeader = "SdkVersion"

	// ClientRequestIDHeader carries the per-request correlation id.
	ClientRequestIDHeader = "client-request-id"

	// SDKName is reported in the SdkVersion header.
	SDKName = "graph-core-go"

	tracerName = "github.com/Sternrassler/graph-core-go/pkg/middleware"
)

// FeatureFlag records which pipeline features are in use.
type FeatureFlag int

const (
	FeatureRedirect FeatureFlag = 1 << iota
	FeatureRetry
	FeatureAuth
	FeatureDefaultTransport
	FeatureCompression
	FeatureChaos
	FeatureODataQuery
)

// TelemetryStage stamps SDK and correlation headers and traces each request.
type TelemetryStage struct {
	version  string
	features FeatureFlag
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewTelemetryStage creates a telemetry stage. Spans go to the global
// OpenTelemetry tracer provider.
func NewTelemetryStage(version string, features FeatureFlag, logger zerolog.Logger) *TelemetryStage {
	return &TelemetryStage{
		version:  version,
		features: features,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// HeaderValue returns the SdkVersion header value.
func (s *TelemetryStage) HeaderValue() string {
	return fmt.Sprintf("%s/%s, (featureUsage=%x)", SDKName, s.version, int(s.features))
}

// Handle implements pipeline.Stage. Existing headers are never overwritten.
func (s *TelemetryStage) Handle(ctx context.Context, req *pipeline.Request, next pipeline.Handler) (*http.Response, error) {
	if req.Header.Get(SDKVersionHeader) == "" {
		req.Header.Set(SDKVersionHeader, s.HeaderValue())
	}
	requestID := req.Header.Get(ClientRequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(ClientRequestIDHeader, requestID)
	}

	ctx, span := s.tracer.Start(ctx, "graphcore.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.Redacted()),
			attribute.String("client_request_id", requestID),
		),
	)
	defer span.End()

	resp, err := next.Send(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug().
			Err(err).
			Str("client_request_id", requestID).
			Msg("Request failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
	}

	s.logger.Debug().
		Str("method", req.Method).
		Str("client_request_id", requestID).
		Int("status", resp.StatusCode).
		Msg("Request completed")

	return resp, nil
}
