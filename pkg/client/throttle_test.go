package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/Sternrassler/graph-core-go/pkg/store"
	"github.com/Sternrassler/graph-core-go/pkg/throttle"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two clients sharing one tracker: the 429 seen by the first blocks the second.
func TestClient_SharedThrottle(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	mini := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { rdb.Close() })
	tracker := throttle.NewTracker(store.NewManager(rdb), time.Minute, zerolog.Nop())

	newClient := func() *Client {
		cfg := testConfig(server.URL)
		cfg.Retry.MaxRetry = 0
		cfg.Throttle = tracker
		c, err := New(cfg)
		require.NoError(t, err)
		return c
	}
	first, second := newClient(), newClient()
	ctx := context.Background()

	resp, err := first.Get(ctx, "/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	_, err = second.Get(ctx, "/me")
	require.Error(t, err)
	assert.True(t, sdkerrors.HasCode(err, sdkerrors.CodeTooManyRetries), "got %v", err)
	assert.Equal(t, int32(1), requests.Load(), "blocked request must not reach the server")
}
