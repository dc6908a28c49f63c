package upload

import (
	"context"
	"errors"
	"io"

	"github.com/Sternrassler/graph-core-go/pkg/pipeline"
	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
	"github.com/Sternrassler/graph-core-go/pkg/store"
)

// SessionStore persists upload sessions between processes.
type SessionStore interface {
	SaveSession(ctx context.Context, id string, session Session) error
	LoadSession(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// RedisSessionStore keeps sessions in Redis through a store.Manager. Entries
// expire together with the session.
type RedisSessionStore struct {
	manager *store.Manager
}

// NewRedisSessionStore creates a session store backed by manager.
func NewRedisSessionStore(manager *store.Manager) *RedisSessionStore {
	return &RedisSessionStore{manager: manager}
}

func sessionKey(id string) store.Key {
	return store.Key{Namespace: store.NamespaceUploadSession, ID: id}
}

// SaveSession implements SessionStore.
func (s *RedisSessionStore) SaveSession(ctx context.Context, id string, session Session) error {
	return s.manager.Set(ctx, sessionKey(id), session, session.ExpirationDateTime)
}

// LoadSession implements SessionStore. A missing or expired session returns
// an error wrapping store.ErrNotFound.
func (s *RedisSessionStore) LoadSession(ctx context.Context, id string) (Session, error) {
	var session Session
	if err := s.manager.Get(ctx, sessionKey(id), &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// DeleteSession implements SessionStore.
func (s *RedisSessionStore) DeleteSession(ctx context.Context, id string) error {
	return s.manager.Delete(ctx, sessionKey(id))
}

// LoadTask recreates a task from the session stored under id. Call Resume on
// the returned task to continue the upload.
func LoadTask(ctx context.Context, handler pipeline.Handler, sessions SessionStore, id string, stream io.Reader, cfg Config) (*Task, error) {
	if sessions == nil {
		return nil, sdkerrors.New(sdkerrors.CodeInvalidArgument, "session store is required")
	}

	session, err := sessions.LoadSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, sdkerrors.Wrap(sdkerrors.CodeUploadSessionExpired, "no stored upload session for "+id, err)
		}
		return nil, err
	}

	cfg.Store = sessions
	cfg.StoreID = id
	return NewTask(handler, session, stream, cfg)
}
