package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/onnwee/grizzpector/persistence"
	"github.com/onnwee/grizzpector/telemetry"
)

// Loader rebuilds a session that is not in memory. It returns an error matching
// persistence.ErrNotFound when the user has never signed in.
type Loader func(ctx context.Context, id Identity) (*Session, error)

// Store maps identities to their active session. It is unbounded and never evicts.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	loader   Loader
}

// NewStore creates an empty store. loader may be nil.
func NewStore(loader Loader) *Store {
	return &Store{sessions: make(map[string]*Session), loader: loader}
}

// Put registers s for id, replacing any previous session.
func (st *Store) Put(id Identity, s *Session) {
	st.mu.Lock()
	st.sessions[id.Key()] = s
	n := len(st.sessions)
	st.mu.Unlock()
	telemetry.SetActiveSessions(n)
}

// Get returns the session for id, consulting the loader on a miss.
func (st *Store) Get(ctx context.Context, id Identity) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id.Key()]
	st.mu.RUnlock()
	if ok || st.loader == nil {
		return s, ok
	}

	loaded, err := st.loader(ctx, id)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			telemetry.LoggerWithCorr(ctx).Warn("failed to restore session",
				slog.String("component", "session"),
				slog.String("user", id.Key()),
				slog.Any("err", err))
		}
		return nil, false
	}

	st.mu.Lock()
	// A session registered while loading is newer than the persisted one.
	if existing, ok := st.sessions[id.Key()]; ok {
		st.mu.Unlock()
		return existing, true
	}
	st.sessions[id.Key()] = loaded
	n := len(st.sessions)
	st.mu.Unlock()
	telemetry.SetActiveSessions(n)
	return loaded, true
}

// Len reports the number of sessions in memory.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
