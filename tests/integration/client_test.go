//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/graph-core-go/internal/testutil"
	"github.com/Sternrassler/graph-core-go/pkg/client"
	"github.com/Sternrassler/graph-core-go/pkg/pagination"
	"github.com/Sternrassler/graph-core-go/pkg/store"
	"github.com/Sternrassler/graph-core-go/pkg/upload"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newClient(t *testing.T, mock *testutil.MockGraph) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig(nil)
	cfg.Anonymous = true
	cfg.BaseURL = mock.URL()
	cfg.Retry.Delay = time.Millisecond
	cfg.Retry.MaxDelay = 10 * time.Millisecond

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

type item struct {
	ID string `json:"id"`
}

// TestDeltaLinkPersistence pages through a collection and stores the delta
// link in Redis, then starts the next round from the stored link.
func TestDeltaLinkPersistence(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGraph()
	defer mock.Close()

	deltaLink := mock.URL() + "/v1.0/items/delta"
	mock.SetHandler("/v1.0/items", mock.NewPagedHandler("/v1.0/items", deltaLink,
		[]any{item{ID: "a"}, item{ID: "b"}},
		[]any{item{ID: "c"}},
	))
	mock.SetResponse("/v1.0/items/delta", testutil.NewJSONResponse(
		`{"value":[{"id":"d"}],"@odata.deltaLink":"`+deltaLink+`"}`))

	c := newClient(t, mock)
	manager := store.NewManager(redisClient)
	ctx := context.Background()

	resp, err := c.Get(ctx, "/items")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	first, err := pagination.ParseCollectionPage[item](resp)
	if err != nil {
		t.Fatalf("ParseCollectionPage() error = %v", err)
	}

	var seen []string
	it, err := pagination.New(c.Handler(), first, func(i item) bool {
		seen = append(seen, i.ID)
		return true
	}, pagination.WithDeltaStore[item](manager, "items"))
	if err != nil {
		t.Fatalf("pagination.New() error = %v", err)
	}

	if err := it.Iterate(ctx); err != nil {
		t.Fatalf("Iterate() error = %v", err)
	}

	stored, err := manager.LoadDeltaLink(ctx, "items")
	if err != nil {
		t.Fatalf("LoadDeltaLink() error = %v", err)
	}
	if stored != deltaLink {
		t.Errorf("stored delta link = %q, want %q", stored, deltaLink)
	}

	if err := it.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if fmt.Sprint(seen) != "[a b c d]" {
		t.Errorf("seen = %v, want [a b c d]", seen)
	}
}

// uploadEndpoint emulates an upload session that accepts slices in order.
type uploadEndpoint struct {
	mu       sync.Mutex
	received []byte
	next     int64
	failAt   int64 // slice begin answered with 500, -1 for none
}

func (u *uploadEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	total := int64(len(u.received))

	if r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"nextExpectedRanges": []string{fmt.Sprintf("%d-", u.next)},
		})
		return
	}

	var begin, end, length int64
	fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &begin, &end, &length)
	if begin == u.failAt {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	body, _ := io.ReadAll(r.Body)
	copy(u.received[begin:], body)
	u.next = end + 1

	if end == total-1 {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"file-1"}`)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"nextExpectedRanges": []string{fmt.Sprintf("%d-", u.next)},
	})
}

// TestUploadResumeAcrossProcesses interrupts an upload, then resumes it from
// the session stored in Redis with a fresh task.
func TestUploadResumeAcrossProcesses(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGraph()
	defer mock.Close()

	data := bytes.Repeat([]byte("graph"), 200_000)
	endpoint := &uploadEndpoint{received: make([]byte, len(data)), failAt: 2 * upload.SliceUnit}
	mock.SetHandler("/upload/session-1", endpoint.handle)

	c := newClient(t, mock)
	sessions := upload.NewRedisSessionStore(store.NewManager(redisClient))
	ctx := context.Background()

	cfg := upload.DefaultConfig()
	cfg.MaxSliceSize = upload.SliceUnit
	cfg.Store = sessions
	cfg.StoreID = "report.bin"

	session := upload.Session{
		UploadURL:          mock.URL() + "/upload/session-1",
		ExpirationDateTime: time.Now().Add(time.Hour),
		NextExpectedRanges: []string{"0-"},
	}
	task, err := upload.NewTask(c.Handler(), session, bytes.NewReader(data), cfg)
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}

	// The third slice is rejected twice, which stops the upload.
	if _, err := task.Upload(ctx); err == nil {
		t.Fatal("Expected first upload to fail")
	}

	endpoint.mu.Lock()
	endpoint.failAt = -1
	endpoint.mu.Unlock()

	resumed, err := upload.LoadTask(ctx, c.Handler(), sessions, "report.bin", bytes.NewReader(data), upload.Config{
		MaxSliceSize: upload.SliceUnit,
		MaxTries:     1,
	})
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if got := resumed.Session().NextExpectedRanges; len(got) != 1 || got[0] != fmt.Sprintf("%d-", 2*upload.SliceUnit) {
		t.Errorf("stored ranges = %v", got)
	}

	result, err := resumed.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if result.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", result.StatusCode)
	}
	if !bytes.Equal(endpoint.received, data) {
		t.Error("Received bytes differ from the source")
	}

	if _, err := sessions.LoadSession(ctx, "report.bin"); err == nil {
		t.Error("Expected session to be removed after completion")
	}
}
