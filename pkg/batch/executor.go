package batch

import (
	"context"
	"strconv"

	"github.com/Sternrassler/graph-core-go/pkg/logging"
	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/rs/zerolog"
)

// Executor sends batches through a pipeline.
type Executor struct {
	handler  pipeline.Handler
	batchURL string
	logger   zerolog.Logger
}

// NewExecutor creates an executor posting to batchURL (e.g. ".../v1.0/$batch").
func NewExecutor(handler pipeline.Handler, batchURL string) (*Executor, error) {
	if handler == nil {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "handler is required")
	}
	if batchURL == "" {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "batch url is required")
	}
	return &Executor{
		handler:  handler,
		batchURL: batchURL,
		logger:   logging.NewLogger("batch-executor"),
	}, nil
}

// ExecuteContent sends one physical batch. Non-2xx batch responses are
// returned as *sdkerrors.ServiceError.
func (e *Executor) ExecuteContent(ctx context.Context, content *Content) (*Response, error) {
	req, err := content.NewBatchRequest(e.batchURL)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Int("steps", content.Len()).
		Str("url", req.URL.Redacted()).
		Msg("Sending batch")

	resp, err := e.handler.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	batchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	batchStepsTotal.Add(float64(content.Len()))

	if err := sdkerrors.CheckResponse(resp); err != nil {
		e.logger.Warn().Int("status", resp.StatusCode).Msg("Batch request failed")
		return nil, err
	}
	return NewResponse(resp), nil
}

// Execute seals the collection and sends its physical batches one after
// another. On error the responses received so far are returned with it.
func (e *Executor) Execute(ctx context.Context, coll *Collection) (*ResponseCollection, error) {
	coll.Seal()

	responses := NewResponseCollection()
	for i, content := range coll.Contents() {
		if err := ctx.Err(); err != nil {
			return responses, err
		}

		resp, err := e.ExecuteContent(ctx, content)
		if err != nil {
			e.logger.Error().Err(err).Int("batch", i).Msg("Batch execution stopped")
			return responses, err
		}
		responses.Add(content.IDs(), resp)
	}

	return responses, nil
}
