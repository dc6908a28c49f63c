package pagination

import (
	"context"
	"net/http"

	"github.com/Sternrassler/graph-core-go/pkg/logging"
	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/rs/zerolog"
)

// State is the iterator's position in its state machine.
type State int

const (
	StateNotStarted State = iota
	StateIntrapageIteration
	StateInterpageIteration
	StatePaused
	StateDelta
	StateComplete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateIntrapageIteration:
		return "IntrapageIteration"
	case StateInterpageIteration:
		return "InterpageIteration"
	case StatePaused:
		return "Paused"
	case StateDelta:
		return "Delta"
	case StateComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// DeltaStore persists the delta link reached by an iterator.
type DeltaStore interface {
	SaveDeltaLink(ctx context.Context, id, link string) error
}

// Option configures an Iterator.
type Option[T any] func(*Iterator[T])

// WithRequestConfigurator sets a hook that may mutate every next-page and
// delta request before it is sent.
func WithRequestConfigurator[T any](configure func(*pipeline.Request)) Option[T] {
	return func(it *Iterator[T]) { it.configure = configure }
}

// WithParser replaces ParseCollectionPage for fetched pages.
func WithParser[T any](parse PageParser[T]) Option[T] {
	return func(it *Iterator[T]) { it.parse = parse }
}

// WithDeltaStore saves the delta link under id when the iterator reaches StateDelta.
func WithDeltaStore[T any](store DeltaStore, id string) Option[T] {
	return func(it *Iterator[T]) {
		it.deltaStore = store
		it.deltaID = id
	}
}

// WithLogger sets the iterator's logger.
func WithLogger[T any](logger zerolog.Logger) Option[T] {
	return func(it *Iterator[T]) { it.logger = logger }
}

// Iterator hands the items of a paged collection to a callback, fetching
// following pages as needed.
type Iterator[T any] struct {
	handler  pipeline.Handler
	callback func(T) bool
	parse    PageParser[T]

	page      Page[T]
	queue     []T
	nextLink  string
	deltaLink string
	state     State
	visited   *hashset.Set

	configure  func(*pipeline.Request)
	deltaStore DeltaStore
	deltaID    string
	logger     zerolog.Logger
}

// New creates an iterator starting at the first page. The callback returns
// false to pause iteration.
func New[T any](handler pipeline.Handler, first Page[T], callback func(T) bool, opts ...Option[T]) (*Iterator[T], error) {
	if handler == nil {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "handler is required")
	}
	if first == nil {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "first page is required")
	}
	if callback == nil {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "callback is required")
	}

	it := &Iterator[T]{
		handler:  handler,
		callback: callback,
		parse:    ParseCollectionPage[T],
		state:    StateNotStarted,
		visited:  hashset.New(),
		logger:   logging.NewLogger("page-iterator"),
	}
	for _, opt := range opts {
		opt(it)
	}
	it.setPage(first)

	return it, nil
}

// State returns the current state.
func (it *Iterator[T]) State() State {
	return it.state
}

// NextLink returns the next link of the current page, "" if none.
func (it *Iterator[T]) NextLink() string {
	return it.nextLink
}

// DeltaLink returns the delta link reached, "" if none.
func (it *Iterator[T]) DeltaLink() string {
	return it.deltaLink
}

// Iterate hands items to the callback until it returns false, ctx is done,
// or the collection ends. It returns nil when paused by the callback and
// ctx.Err() when paused by cancellation. In StateDelta and StateComplete it
// does nothing.
func (it *Iterator[T]) Iterate(ctx context.Context) error {
	if it.state == StateDelta || it.state == StateComplete {
		return nil
	}

	for {
		it.state = StateIntrapageIteration

		for len(it.queue) > 0 {
			if err := ctx.Err(); err != nil {
				it.state = StatePaused
				return err
			}

			item := it.queue[0]
			it.queue = it.queue[1:]
			itemsIteratedTotal.Inc()

			if !it.callback(item) {
				it.state = StatePaused
				it.logger.Debug().Int("remaining", len(it.queue)).Msg("Iteration paused by callback")
				return nil
			}
		}

		if err := ctx.Err(); err != nil {
			it.state = StatePaused
			return err
		}

		req, ok := it.page.NextPageRequest()
		if !ok {
			return it.finish(ctx)
		}

		it.state = StateInterpageIteration
		link := req.URL.String()
		if it.visited.Contains(link) {
			return sdkerrors.New(sdkerrors.CodeNextLinkLoopDetected,
				"next-link loop detected: "+req.URL.Redacted()+" was already visited")
		}

		page, err := it.fetch(ctx, req, "next")
		if err != nil {
			return err
		}
		it.visited.Add(link)
		it.setPage(page)
	}
}

// Resume continues a paused iterator. In StateDelta it fetches the delta link
// and iterates the changes since the last round. In any other state it
// behaves like Iterate.
func (it *Iterator[T]) Resume(ctx context.Context) error {
	if it.state != StateDelta {
		return it.Iterate(ctx)
	}

	req, err := pipeline.NewRequest(http.MethodGet, it.deltaLink, nil)
	if err != nil {
		return sdkerrors.Wrap(sdkerrors.CodeGeneralException, "invalid delta link", err)
	}
	req.Header.Set("Accept", "application/json")

	page, err := it.fetch(ctx, req, "delta")
	if err != nil {
		return err
	}

	it.visited.Clear()
	it.deltaLink = ""
	it.setPage(page)

	return it.Iterate(ctx)
}

// finish moves to Delta or Complete once the last page is consumed.
func (it *Iterator[T]) finish(ctx context.Context) error {
	link, ok := it.page.DeltaLink()
	if !ok {
		it.state = StateComplete
		it.logger.Debug().Msg("Iteration complete")
		return nil
	}

	it.state = StateDelta
	it.deltaLink = link
	it.logger.Debug().Str("delta_link", link).Msg("Iteration reached delta link")

	if it.deltaStore != nil {
		if err := it.deltaStore.SaveDeltaLink(ctx, it.deltaID, link); err != nil {
			it.logger.Warn().Err(err).Str("id", it.deltaID).Msg("Failed to persist delta link")
			return err
		}
	}
	return nil
}

func (it *Iterator[T]) fetch(ctx context.Context, req *pipeline.Request, kind string) (Page[T], error) {
	if it.configure != nil {
		it.configure(req)
	}

	it.logger.Debug().Str("kind", kind).Str("url", req.URL.Redacted()).Msg("Fetching page")

	resp, err := it.handler.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	page, err := it.parse(resp)
	if err != nil {
		return nil, err
	}

	pagesFetchedTotal.WithLabelValues(kind).Inc()
	return page, nil
}

func (it *Iterator[T]) setPage(page Page[T]) {
	it.page = page
	it.queue = append([]T(nil), page.Items()...)
	it.nextLink = ""
	if req, ok := page.NextPageRequest(); ok {
		it.nextLink = req.URL.String()
	}
}
