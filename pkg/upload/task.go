package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/logging"
	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// SliceUnit is the granularity slice sizes must be a multiple of (320 KiB).
const SliceUnit = 320 * 1024

// Config holds the upload configuration.
type Config struct {
	// MaxSliceSize is the largest slice in bytes (default 5 MiB).
	// Must be a positive multiple of SliceUnit.
	MaxSliceSize int64

	// MaxTries is the number of passes over the missing ranges (default 3).
	MaxTries int

	// BaseDelay scales the pause between passes: BaseDelay * tries² (default 2s).
	BaseDelay time.Duration

	// Progress receives the starting offset of each slice before it is sent.
	Progress func(offset int64)

	// Store persists the session after every change. Optional.
	Store SessionStore

	// StoreID identifies the session in Store.
	StoreID string
}

// DefaultConfig returns the default upload configuration.
func DefaultConfig() Config {
	return Config{
		MaxSliceSize: 5 * 1024 * 1024,
		MaxTries:     3,
		BaseDelay:    2 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxSliceSize <= 0 || c.MaxSliceSize%SliceUnit != 0 {
		return sdkerrors.Newf(sdkerrors.CodeInvalidArgument,
			"max slice size must be a positive multiple of %d (got %d)", SliceUnit, c.MaxSliceSize)
	}
	if c.MaxTries < 1 {
		return sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "max tries must be at least 1 (got %d)", c.MaxTries)
	}
	if c.BaseDelay < 0 {
		return sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "base delay must not be negative (got %s)", c.BaseDelay)
	}
	if c.Store != nil && c.StoreID == "" {
		return sdkerrors.New(sdkerrors.CodeInvalidArgument, "store id is required with a session store")
	}
	return nil
}

// Task uploads a stream to an upload session.
type Task struct {
	handler     pipeline.Handler
	stream      io.ReadSeeker
	totalLength int64
	session     Session
	ranges      []Range
	cfg         Config
	logger      zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTask creates an upload task. The stream must implement io.ReadSeeker;
// its length is taken from seeking to the end. Empty streams are rejected:
// a Content-Range cannot describe a zero-length slice, so empty files are
// created with a plain PUT instead of an upload session.
//
// The session's upload URL is pre-authenticated and may live on another
// host, so handler should not attach credentials. Pass the handler of a
// client created with Anonymous set, not the one used to create the session.
func NewTask(handler pipeline.Handler, session Session, stream io.Reader, cfg Config) (*Task, error) {
	if handler == nil {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "handler is required")
	}
	if session.UploadURL == "" {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "upload url is required")
	}
	seeker, ok := stream.(io.ReadSeeker)
	if !ok || stream == nil {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "stream must be readable and seekable")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	total, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.CodeInvalidArgument, "determine stream length", err)
	}
	if total == 0 {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "stream is empty, an upload session needs at least one byte")
	}

	ranges, err := ParseRanges(session.NextExpectedRanges, total)
	if err != nil {
		return nil, err
	}

	return &Task{
		handler:     handler,
		stream:      seeker,
		totalLength: total,
		session:     session,
		ranges:      ranges,
		cfg:         cfg,
		logger:      logging.NewLogger("upload-task"),
		now:         time.Now,
		sleep:       sleepContext,
	}, nil
}

// Session returns the current upload session.
func (t *Task) Session() Session {
	return t.session
}

// TotalLength returns the stream length.
func (t *Task) TotalLength() int64 {
	return t.totalLength
}

// Slices returns the slice plan for the ranges still missing.
func (t *Task) Slices() iter.Seq[Slice] {
	return planSlices(t.ranges, t.cfg.MaxSliceSize, t.totalLength)
}

// Upload sends the missing ranges until the service returns the final item.
func (t *Task) Upload(ctx context.Context) (*Result, error) {
	if err := t.save(ctx); err != nil {
		return nil, err
	}

	var errs []error
	for tries := 0; tries < t.cfg.MaxTries; {
		for slice := range t.Slices() {
			if t.cfg.Progress != nil {
				t.cfg.Progress(slice.RangeBegin)
			}

			res, err := t.uploadSlice(ctx, slice, &errs)
			if err != nil {
				uploadsTotal.WithLabelValues("failed").Inc()
				return nil, err
			}
			if res != nil {
				uploadsTotal.WithLabelValues("completed").Inc()
				t.logger.Info().
					Int64("bytes", t.totalLength).
					Int("status", res.StatusCode).
					Msg("Upload completed")
				if err := t.forget(ctx); err != nil {
					t.logger.Warn().Err(err).Str("id", t.cfg.StoreID).Msg("Failed to remove upload session")
				}
				return res, nil
			}
		}

		tries++
		t.logger.Debug().Int("tries", tries).Msg("Upload pass ended without item, refreshing session")

		if err := t.UpdateSession(ctx); err != nil {
			uploadsTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		if tries < t.cfg.MaxTries {
			if err := t.sleep(ctx, t.cfg.BaseDelay*time.Duration(tries*tries)); err != nil {
				uploadsTotal.WithLabelValues("failed").Inc()
				return nil, err
			}
		}
	}

	uploadsTotal.WithLabelValues("canceled").Inc()
	return nil, sdkerrors.Wrap(sdkerrors.CodeUploadCanceled,
		fmt.Sprintf("upload did not complete after %d tries", t.cfg.MaxTries),
		multierr.Combine(errs...))
}

// Resume fetches the session status and continues the upload. An expired
// session fails with sdkerrors.CodeUploadSessionExpired before any slice is sent.
func (t *Task) Resume(ctx context.Context) (*Result, error) {
	if err := t.checkExpired(); err != nil {
		return nil, err
	}
	if err := t.UpdateSession(ctx); err != nil {
		return nil, err
	}
	if err := t.checkExpired(); err != nil {
		return nil, err
	}
	return t.Upload(ctx)
}

// Delete cancels the upload session on the service.
func (t *Task) Delete(ctx context.Context) error {
	if err := t.checkExpired(); err != nil {
		return err
	}

	req, err := pipeline.NewRequest(http.MethodDelete, t.session.UploadURL, nil)
	if err != nil {
		return sdkerrors.Wrap(sdkerrors.CodeInvalidArgument, "invalid upload url", err)
	}
	resp, err := t.handler.Send(ctx, req)
	if err != nil {
		return err
	}
	if err := sdkerrors.CheckResponse(resp); err != nil {
		return err
	}
	pipeline.DrainBody(resp)

	t.logger.Debug().Str("url", req.URL.Redacted()).Msg("Upload session deleted")
	return t.forget(ctx)
}

// UpdateSession fetches the session status and recomputes the missing ranges.
func (t *Task) UpdateSession(ctx context.Context) error {
	req, err := pipeline.NewRequest(http.MethodGet, t.session.UploadURL, nil)
	if err != nil {
		return sdkerrors.Wrap(sdkerrors.CodeInvalidArgument, "invalid upload url", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.handler.Send(ctx, req)
	if err != nil {
		return err
	}
	if err := sdkerrors.CheckResponse(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return sdkerrors.Wrap(sdkerrors.CodeGeneralException, "decode upload session", err)
	}
	if err := t.applySession(session); err != nil {
		return err
	}
	return t.save(ctx)
}

// applySession merges a session update. Fields the service omitted keep
// their current value, except the ranges.
func (t *Task) applySession(update Session) error {
	ranges, err := ParseRanges(update.NextExpectedRanges, t.totalLength)
	if err != nil {
		return err
	}

	if update.UploadURL != "" {
		t.session.UploadURL = update.UploadURL
	}
	if !update.ExpirationDateTime.IsZero() {
		t.session.ExpirationDateTime = update.ExpirationDateTime
	}
	t.session.NextExpectedRanges = update.NextExpectedRanges
	t.ranges = ranges
	return nil
}

// uploadSlice sends a slice, once more on a retryable failure. It returns
// the final item when the service completed the upload.
func (t *Task) uploadSlice(ctx context.Context, slice Slice, errs *[]error) (*Result, error) {
	res := t.sendSlice(ctx, slice)
	if res.kind == resultRetryable {
		*errs = append(*errs, res.err)
		t.logger.Warn().Err(res.err).Str("range", slice.ContentRange()).Msg("Slice failed, sending again")
		first := res.err
		res = t.sendSlice(ctx, slice)
		if res.kind == resultRetryable {
			*errs = append(*errs, res.err)
			return nil, sdkerrors.Wrap(sdkerrors.CodeUploadSliceFailed,
				"slice "+slice.ContentRange()+" failed twice", multierr.Combine(first, res.err))
		}
	}
	slicesTotal.WithLabelValues(res.kind.String()).Inc()

	switch res.kind {
	case resultCompleted:
		return res.result, nil
	case resultFatal:
		return nil, res.err
	}

	if res.err != nil {
		t.logger.Debug().Str("range", slice.ContentRange()).Msg("Slice already applied")
		*errs = append(*errs, res.err)
	}
	if res.session != nil {
		if err := t.applySession(*res.session); err != nil {
			return nil, err
		}
		if err := t.save(ctx); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (t *Task) sendSlice(ctx context.Context, slice Slice) sliceResult {
	if err := ctx.Err(); err != nil {
		return sliceResult{kind: resultFatal, err: err}
	}

	data := make([]byte, slice.Len())
	if _, err := t.stream.Seek(slice.RangeBegin, io.SeekStart); err != nil {
		return sliceResult{kind: resultFatal, err: fmt.Errorf("seek to %d: %w", slice.RangeBegin, err)}
	}
	if _, err := io.ReadFull(t.stream, data); err != nil {
		return sliceResult{kind: resultFatal, err: fmt.Errorf("read slice %s: %w", slice.ContentRange(), err)}
	}

	req, err := pipeline.NewRequest(http.MethodPut, t.session.UploadURL, data)
	if err != nil {
		return sliceResult{kind: resultFatal, err: sdkerrors.Wrap(sdkerrors.CodeInvalidArgument, "invalid upload url", err)}
	}
	req.Header.Set("Content-Range", slice.ContentRange())
	req.Header.Set("Content-Type", "application/octet-stream")

	t.logger.Debug().Str("range", slice.ContentRange()).Msg("Sending slice")

	resp, err := t.handler.Send(ctx, req)
	res := classifySlice(resp, err)
	if res.kind != resultRetryable && res.kind != resultFatal {
		bytesUploadedTotal.Add(float64(slice.Len()))
	}
	return res
}

func (t *Task) checkExpired() error {
	if t.session.IsExpired(t.now()) {
		return sdkerrors.Newf(sdkerrors.CodeUploadSessionExpired,
			"upload session expired at %s", t.session.ExpirationDateTime.Format(time.RFC3339))
	}
	return nil
}

func (t *Task) save(ctx context.Context) error {
	if t.cfg.Store == nil {
		return nil
	}
	return t.cfg.Store.SaveSession(ctx, t.cfg.StoreID, t.session)
}

func (t *Task) forget(ctx context.Context) error {
	if t.cfg.Store == nil {
		return nil
	}
	return t.cfg.Store.DeleteSession(ctx, t.cfg.StoreID)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
