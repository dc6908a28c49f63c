package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/rs/zerolog"
)

// odataQueryKeys are rewritten to their $-prefixed form.
var odataQueryKeys = map[string]struct{}{
	"count":      {},
	"deltatoken": {},
	"expand":     {},
	"filter":     {},
	"format":     {},
	"orderby":    {},
	"search":     {},
	"select":     {},
	"skip":       {},
	"skiptoken":  {},
	"top":        {},
}

// ODataQueryOptions configures ODataQueryStage for a request.
type ODataQueryOptions struct {
	Disabled bool
}

// Kind implements pipeline.Option.
func (ODataQueryOptions) Kind() pipeline.OptionKind { return pipeline.OptionODataQuery }

// ODataQueryStage adds the missing "$" to OData system query options.
type ODataQueryStage struct {
	logger zerolog.Logger
}

// NewODataQueryStage creates an OData query rewrite stage.
func NewODataQueryStage(logger zerolog.Logger) *ODataQueryStage {
	return &ODataQueryStage{logger: logger}
}

// Handle implements pipeline.Stage.
func (s *ODataQueryStage) Handle(ctx context.Context, req *pipeline.Request, next pipeline.Handler) (*http.Response, error) {
	if o, ok := req.Option(pipeline.OptionODataQuery); ok {
		if qo, ok := o.(ODataQueryOptions); ok && qo.Disabled {
			return next.Send(ctx, req)
		}
	}

	if rewritten := RewriteODataQuery(req.URL.RawQuery); rewritten != req.URL.RawQuery {
		s.logger.Debug().
			Str("from", req.URL.RawQuery).
			Str("to", rewritten).
			Msg("Rewrote OData query")
		req.URL.RawQuery = rewritten
	}

	return next.Send(ctx, req)
}

// RewriteODataQuery prefixes known OData system query keys with "$". Order,
// values and unknown keys are preserved.
func RewriteODataQuery(rawQuery string) string {
	if rawQuery == "" {
		return rawQuery
	}

	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		key, value, hasValue := strings.Cut(part, "=")
		if _, ok := odataQueryKeys[strings.ToLower(key)]; !ok {
			continue
		}
		key = "$" + key
		if hasValue {
			parts[i] = key + "=" + value
		} else {
			parts[i] = key
		}
	}
	return strings.Join(parts, "&")
}
