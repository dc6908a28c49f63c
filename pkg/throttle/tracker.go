package throttle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/middleware"
	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/Sternrassler/graph-core-go/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for shared throttling.
var (
	throttleBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphcore_throttle_blocks_total",
		Help: "Total number of throttle blocks recorded by status",
	}, []string{"status"})

	throttleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphcore_throttle_waits_total",
		Help: "Total number of requests held by a shared throttle block",
	})

	throttleRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphcore_throttle_rejects_total",
		Help: "Total number of requests rejected because the block outlasts MaxWait",
	})
)

// Tracker records throttle blocks in Redis and gates requests on them.
type Tracker struct {
	store   *store.Manager
	maxWait time.Duration
	logger  zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a new throttle tracker. Requests wait for at most
// maxWait; longer blocks fail immediately. A zero maxWait waits without limit.
func NewTracker(manager *store.Manager, maxWait time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:   manager,
		maxWait: maxWait,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func stateKey(scope string) store.Key {
	return store.Key{Namespace: store.NamespaceThrottle, ID: scope}
}

// GetState retrieves the throttle state of scope.
// Returns an unblocked state if no block is stored.
func (t *Tracker) GetState(ctx context.Context, scope string) (*State, error) {
	var state State
	if err := t.store.Get(ctx, stateKey(scope), &state); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("get throttle state: %w", err)
	}
	return &state, nil
}

// Record blocks scope for d. An existing longer block is kept.
func (t *Tracker) Record(ctx context.Context, scope string, status int, d time.Duration) error {
	now := t.now()
	until := now.Add(d)

	current, err := t.GetState(ctx, scope)
	if err != nil {
		return err
	}
	if !current.BlockedUntil.Before(until) {
		return nil
	}

	state := State{BlockedUntil: until, Status: status, LastUpdate: now}
	if err := t.store.Set(ctx, stateKey(scope), state, until); err != nil {
		return fmt.Errorf("store throttle state: %w", err)
	}

	throttleBlocksTotal.WithLabelValues(fmt.Sprint(status)).Inc()
	t.logger.Warn().
		Str("scope", scope).
		Int("status", status).
		Time("blocked_until", until).
		Msg("Service throttling, holding requests")
	return nil
}

// UpdateFromResponse records a block for 429 and 503 responses carrying
// Retry-After.
func (t *Tracker) UpdateFromResponse(ctx context.Context, scope string, resp *http.Response) error {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return nil
	}
	d, ok := middleware.ParseRetryAfter(resp.Header.Get(middleware.RetryAfterHeader), t.now())
	if !ok || d <= 0 {
		return nil
	}
	return t.Record(ctx, scope, resp.StatusCode, d)
}

// Wait holds the caller while scope is blocked. Blocks longer than maxWait
// fail with sdkerrors.CodeTooManyRetries.
func (t *Tracker) Wait(ctx context.Context, scope string) error {
	state, err := t.GetState(ctx, scope)
	if err != nil {
		return err
	}

	now := t.now()
	if !state.IsBlocked(now) {
		return nil
	}

	wait := state.TimeUntilReset(now)
	if t.maxWait > 0 && wait > t.maxWait {
		throttleRejectsTotal.Inc()
		return sdkerrors.Newf(sdkerrors.CodeTooManyRetries,
			"%s is throttled until %s", scope, state.BlockedUntil.Format(time.RFC3339)).
			WithDetail("blockedUntil", state.BlockedUntil)
	}

	throttleWaitsTotal.Inc()
	t.logger.Debug().Str("scope", scope).Dur("wait", wait).Msg("Waiting for shared throttle block")
	return t.sleep(ctx, wait)
}

// Stage gates requests on the tracker. The scope is the request host.
type Stage struct {
	tracker *Tracker
}

// NewStage creates a pipeline stage backed by tracker.
func NewStage(tracker *Tracker) *Stage {
	return &Stage{tracker: tracker}
}

// Handle implements pipeline.Stage. Redis failures are logged and do not
// stop the request.
func (s *Stage) Handle(ctx context.Context, req *pipeline.Request, next pipeline.Handler) (*http.Response, error) {
	scope := req.URL.Host

	if err := s.tracker.Wait(ctx, scope); err != nil {
		if sdkerrors.HasCode(err, sdkerrors.CodeTooManyRetries) || ctx.Err() != nil {
			return nil, err
		}
		s.tracker.logger.Warn().Err(err).Str("scope", scope).Msg("Throttle state unavailable")
	}

	resp, err := next.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.tracker.UpdateFromResponse(ctx, scope, resp); err != nil {
		s.tracker.logger.Warn().Err(err).Str("scope", scope).Msg("Failed to record throttle state")
	}
	return resp, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
