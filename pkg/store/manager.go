package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates the requested key does not exist or has expired
	ErrNotFound = errors.New("store: key not found")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("store: invalid entry")
)

// Manager persists JSON values in Redis.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new store manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get decodes the value stored under key into v.
// Returns ErrNotFound if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, key Key, v any) error {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			StoreMisses.WithLabelValues(key.Namespace).Inc()
			return ErrNotFound
		}
		StoreErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		StoreErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		StoreMisses.WithLabelValues(key.Namespace).Inc()
		return ErrNotFound
	}

	if err := json.Unmarshal(entry.Data, v); err != nil {
		StoreErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	StoreHits.WithLabelValues(key.Namespace).Inc()
	return nil
}

// Set stores v under key. A zero expires keeps the value until deleted;
// an expires in the past stores nothing.
func (m *Manager) Set(ctx context.Context, key Key, v any, expires time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		StoreErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal value: %w", err)
	}

	entry := Entry{
		Data:     data,
		Expires:  expires,
		StoredAt: time.Now(),
	}

	ttl := entry.TTL()
	if ttl < 0 {
		return nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		StoreErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), payload, ttl).Err(); err != nil {
		StoreErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a stored value. Deleting a missing key is not an error.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		StoreErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SaveDeltaLink stores the delta link reached for id. Delta links do not expire.
func (m *Manager) SaveDeltaLink(ctx context.Context, id, link string) error {
	return m.Set(ctx, Key{Namespace: NamespaceDeltaLink, ID: id}, link, time.Time{})
}

// LoadDeltaLink returns the delta link stored for id, or ErrNotFound.
func (m *Manager) LoadDeltaLink(ctx context.Context, id string) (string, error) {
	var link string
	if err := m.Get(ctx, Key{Namespace: NamespaceDeltaLink, ID: id}, &link); err != nil {
		return "", err
	}
	return link, nil
}
