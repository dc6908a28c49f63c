// Package pipeline provides the request envelope and the composable
// middleware chain every SDK request travels through.
//
// A Stage receives the request and the next Handler; it may answer with its
// own response, or delegate to next and post-process the result:
//
//	h := pipeline.Chain(pipeline.NewHTTPTransport(nil),
//		telemetry, odataQuery, compression, auth, redirect, retry)
//	resp, err := h.Send(ctx, req)
//
// The first stage passed to Chain is the outermost one.
package pipeline

import (
	"context"
	"io"
	"net/http"
)

// Handler sends a request and returns its response.
type Handler interface {
	Send(ctx context.Context, req *Request) (*http.Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*http.Response, error)

// Send calls f.
func (f HandlerFunc) Send(ctx context.Context, req *Request) (*http.Response, error) {
	return f(ctx, req)
}

// Stage is one link of the middleware chain.
type Stage interface {
	Handle(ctx context.Context, req *Request, next Handler) (*http.Response, error)
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, req *Request, next Handler) (*http.Response, error)

// Handle calls f.
func (f StageFunc) Handle(ctx context.Context, req *Request, next Handler) (*http.Response, error) {
	return f(ctx, req, next)
}

type link struct {
	stage Stage
	next  Handler
}

func (l link) Send(ctx context.Context, req *Request) (*http.Response, error) {
	return l.stage.Handle(ctx, req, l.next)
}

// Chain wraps transport with stages; stages[0] runs first.
func Chain(transport Handler, stages ...Stage) Handler {
	h := transport
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i] == nil {
			continue
		}
		h = link{stage: stages[i], next: h}
	}
	return h
}

// DrainBody discards the rest of a response body and closes it so the
// connection can be reused before a replay.
func DrainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// ReadBody reads and closes a response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
