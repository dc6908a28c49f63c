package pagination

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID string `json:"id"`
}

// pageServer answers GET requests with canned JSON bodies keyed by URL.
type pageServer struct {
	pages    map[string]string
	requests []*pipeline.Request
}

func (s *pageServer) Send(_ context.Context, req *pipeline.Request) (*http.Response, error) {
	s.requests = append(s.requests, req)
	body, ok := s.pages[req.URL.String()]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(`{"error":{"code":"notFound","message":"no page"}}`)),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func newPage(ids []string, next, delta string) *CollectionPage[user] {
	p := &CollectionPage[user]{ODataNextLink: next, ODataDelta: delta}
	for _, id := range ids {
		p.Value = append(p.Value, user{ID: id})
	}
	return p
}

func collect(seen *[]string) func(user) bool {
	return func(u user) bool {
		*seen = append(*seen, u.ID)
		return true
	}
}

type memoryDeltaStore map[string]string

func (m memoryDeltaStore) SaveDeltaLink(_ context.Context, id, link string) error {
	m[id] = link
	return nil
}

func TestIterator_SinglePageCompletes(t *testing.T) {
	var seen []string
	it, err := New[user](&pageServer{}, newPage([]string{"a", "b"}, "", ""), collect(&seen))
	require.NoError(t, err)
	assert.Equal(t, StateNotStarted, it.State())

	require.NoError(t, it.Iterate(context.Background()))

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, StateComplete, it.State())
}

func TestIterator_FollowsNextLinks(t *testing.T) {
	server := &pageServer{pages: map[string]string{
		"https://graph.example.com/v1.0/users?$skiptoken=2": `{"value":[{"id":"c"}],"@odata.nextLink":"https://graph.example.com/v1.0/users?$skiptoken=3"}`,
		"https://graph.example.com/v1.0/users?$skiptoken=3": `{"value":[{"id":"d"},{"id":"e"}]}`,
	}}

	var seen []string
	it, err := New[user](server, newPage([]string{"a", "b"}, "https://graph.example.com/v1.0/users?$skiptoken=2", ""), collect(&seen),
		WithRequestConfigurator[user](func(req *pipeline.Request) {
			req.Header.Set("ConsistencyLevel", "eventual")
		}))
	require.NoError(t, err)
	assert.Equal(t, "https://graph.example.com/v1.0/users?$skiptoken=2", it.NextLink())

	require.NoError(t, it.Iterate(context.Background()))

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
	assert.Equal(t, StateComplete, it.State())
	require.Len(t, server.requests, 2)
	for _, req := range server.requests {
		assert.Equal(t, "eventual", req.Header.Get("ConsistencyLevel"))
	}
}

func TestIterator_PauseAndResume(t *testing.T) {
	server := &pageServer{pages: map[string]string{
		"https://graph.example.com/next": `{"value":[{"id":"c"}]}`,
	}}

	var seen []string
	it, err := New[user](server, newPage([]string{"a", "b"}, "https://graph.example.com/next", ""), func(u user) bool {
		seen = append(seen, u.ID)
		return u.ID != "a"
	})
	require.NoError(t, err)

	require.NoError(t, it.Iterate(context.Background()))
	assert.Equal(t, StatePaused, it.State())
	assert.Equal(t, []string{"a"}, seen)
	assert.Empty(t, server.requests)

	require.NoError(t, it.Resume(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, StateComplete, it.State())
}

func TestIterator_CancellationPauses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var seen []string
	it, err := New[user](&pageServer{}, newPage([]string{"a", "b", "c"}, "", ""), func(u user) bool {
		seen = append(seen, u.ID)
		cancel()
		return true
	})
	require.NoError(t, err)

	err = it.Iterate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatePaused, it.State())
	assert.Equal(t, []string{"a"}, seen)

	require.NoError(t, it.Iterate(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestIterator_DeltaLink(t *testing.T) {
	deltaLink := "https://graph.example.com/v1.0/users/delta?$deltatoken=abc"
	server := &pageServer{pages: map[string]string{
		deltaLink: `{"value":[{"id":"changed"}],"@odata.deltaLink":"https://graph.example.com/v1.0/users/delta?$deltatoken=def"}`,
	}}
	store := memoryDeltaStore{}

	var seen []string
	it, err := New[user](server, newPage([]string{"a"}, "", deltaLink), collect(&seen),
		WithDeltaStore[user](store, "users"))
	require.NoError(t, err)

	require.NoError(t, it.Iterate(context.Background()))
	assert.Equal(t, StateDelta, it.State())
	assert.Equal(t, deltaLink, it.DeltaLink())
	assert.Equal(t, deltaLink, store["users"])

	require.NoError(t, it.Iterate(context.Background()), "Iterate in Delta is a no-op")
	assert.Empty(t, server.requests)

	require.NoError(t, it.Resume(context.Background()))
	assert.Equal(t, []string{"a", "changed"}, seen)
	assert.Equal(t, StateDelta, it.State())
	assert.Equal(t, "https://graph.example.com/v1.0/users/delta?$deltatoken=def", store["users"])
}

type failingDeltaStore struct{ err error }

func (f failingDeltaStore) SaveDeltaLink(context.Context, string, string) error { return f.err }

func TestIterator_DeltaStoreFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	storeErr := errors.New("redis down")
	var seen []string
	it, err := New[user](&pageServer{}, newPage([]string{"a"}, "", "https://graph.example.com/v1.0/users/delta?$deltatoken=abc"),
		collect(&seen), WithDeltaStore[user](failingDeltaStore{err: storeErr}, "users"))
	require.NoError(t, err)

	assert.ErrorIs(t, it.Iterate(context.Background()), storeErr)
	assert.Equal(t, StateDelta, it.State())
	assert.Contains(t, buf.String(), `"component":"page-iterator"`)
	assert.Contains(t, buf.String(), "Failed to persist delta link")
}

func TestIterator_NextLinkLoop(t *testing.T) {
	loop := "https://graph.example.com/v1.0/users?$skiptoken=loop"
	server := &pageServer{pages: map[string]string{
		loop: `{"value":[{"id":"x"}],"@odata.nextLink":"` + loop + `"}`,
	}}

	var seen []string
	it, err := New[user](server, newPage([]string{"a"}, loop, ""), collect(&seen))
	require.NoError(t, err)

	err = it.Iterate(context.Background())
	require.Error(t, err)
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeNextLinkLoopDetected))
	assert.Contains(t, err.Error(), "loop")
	assert.Equal(t, []string{"a", "x"}, seen)
	assert.Len(t, server.requests, 1)
}

func TestIterator_FetchErrorIsReturned(t *testing.T) {
	var seen []string
	it, err := New[user](&pageServer{}, newPage([]string{"a"}, "https://graph.example.com/missing", ""), collect(&seen))
	require.NoError(t, err)

	err = it.Iterate(context.Background())

	var se *sdkerrors.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, StateInterpageIteration, it.State())
}

func TestNew_Validation(t *testing.T) {
	cb := func(user) bool { return true }

	_, err := New[user](nil, newPage(nil, "", ""), cb)
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeInvalidArgument))

	_, err = New[user](&pageServer{}, nil, cb)
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeInvalidArgument))

	_, err = New[user](&pageServer{}, newPage(nil, "", ""), nil)
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeInvalidArgument))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "IntrapageIteration", StateIntrapageIteration.String())
	assert.Equal(t, "Unknown", State(99).String())
}
