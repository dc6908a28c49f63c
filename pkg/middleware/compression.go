package middleware

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// CompressionOptions configures CompressionStage for a request.
type CompressionOptions struct {
	Enabled bool
}

// Kind implements pipeline.Option.
func (CompressionOptions) Kind() pipeline.OptionKind { return pipeline.OptionCompression }

// CompressionStage requests gzip responses and decodes them transparently.
type CompressionStage struct {
	options CompressionOptions
	logger  zerolog.Logger
}

// NewCompressionStage creates a compression stage.
func NewCompressionStage(opts CompressionOptions, logger zerolog.Logger) *CompressionStage {
	return &CompressionStage{options: opts, logger: logger}
}

// Handle implements pipeline.Stage.
func (s *CompressionStage) Handle(ctx context.Context, req *pipeline.Request, next pipeline.Handler) (*http.Response, error) {
	opts := s.options
	if o, ok := req.Option(pipeline.OptionCompression); ok {
		if co, ok := o.(CompressionOptions); ok {
			opts = co
		}
	}
	if !opts.Enabled {
		return next.Send(ctx, req)
	}

	if !hasToken(req.Header.Values("Accept-Encoding"), "gzip") {
		req.Header.Add("Accept-Encoding", "gzip")
	}

	resp, err := next.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	encodings := resp.Header.Values("Content-Encoding")
	if !hasToken(encodings, "gzip") {
		return resp, nil
	}

	resp.Body = &gzipBody{body: resp.Body}
	resp.Header.Del("Content-Encoding")
	for _, enc := range withoutToken(encodings, "gzip") {
		resp.Header.Add("Content-Encoding", enc)
	}
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true

	decompressedResponsesTotal.Inc()
	s.logger.Debug().Str("url", req.URL.Redacted()).Msg("Decoding gzip response")

	return resp, nil
}

// gzipBody creates the gzip reader on first read so empty bodies are not an error.
type gzipBody struct {
	body io.ReadCloser
	zr   *gzip.Reader
	err  error
}

func (g *gzipBody) Read(p []byte) (int, error) {
	if g.zr == nil && g.err == nil {
		g.zr, g.err = gzip.NewReader(g.body)
	}
	if g.err != nil {
		return 0, g.err
	}
	return g.zr.Read(p)
}

func (g *gzipBody) Close() error {
	if g.zr != nil {
		_ = g.zr.Close()
	}
	return g.body.Close()
}

// hasToken reports whether a comma-separated header contains token.
func hasToken(values []string, token string) bool {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func withoutToken(values []string, token string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" && !strings.EqualFold(part, token) {
				out = append(out, part)
			}
		}
	}
	return out
}
