// Package session holds short-lived conversational state between chat
// turns. Sessions live in process memory only: they expire after an idle
// timeout and do not survive a restart.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Exchange is one retained (user message, generated SQL) pair. SQL is nil
// for purely conversational turns.
type Exchange struct {
	UserMessage string    `json:"user_message"`
	SQL         *string   `json:"sql,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is a point-in-time snapshot of one conversation. History is a
// copy; mutating it does not affect the store.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	History      []Exchange
}

type Config struct {
	// IdleTimeout after which an untouched session is purged.
	IdleTimeout time.Duration
	// MaxHistory bounds retained exchanges; oldest are evicted first.
	MaxHistory int
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Store is the only state shared across concurrent pipeline executions.
// Every read-modify-write happens under one store-wide mutex; contention is
// low enough that per-session locking is not worth the bookkeeping.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*state
	timeout  time.Duration
	maxHist  int
	now      func() time.Time
	logger   *slog.Logger
}

type state struct {
	createdAt    time.Time
	lastActivity time.Time
	history      []Exchange
}

func NewStore(cfg Config, logger *slog.Logger) *Store {
	timeout := cfg.IdleTimeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	maxHist := cfg.MaxHistory
	if maxHist < 1 {
		maxHist = 5
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: map[string]*state{},
		timeout:  timeout,
		maxHist:  maxHist,
		now:      now,
		logger:   logger,
	}
}

// ResolveOrCreate purges expired sessions, then returns the session for id
// with its activity refreshed, or a brand-new session when id is empty or
// no longer known. An expired or unknown id is not an error; the caller
// simply starts fresh.
func (s *Store) ResolveOrCreate(id string) (string, Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()

	now := s.now()
	if id != "" {
		if st, ok := s.sessions[id]; ok {
			st.lastActivity = now
			return id, snapshot(id, st)
		}
	}

	newID := uuid.NewString()
	st := &state{createdAt: now, lastActivity: now}
	s.sessions[newID] = st
	if s.logger != nil {
		s.logger.Info("created new session", slog.String("session_id", newID))
	}
	return newID, snapshot(newID, st)
}

// Append records an exchange and truncates history to the most recent
// MaxHistory entries. Appending to an unknown (already expired) session is
// a no-op: continuity degrades silently instead of failing the caller.
func (s *Store) Append(id, userMessage string, sql *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()

	st, ok := s.sessions[id]
	if !ok {
		return
	}
	now := s.now()
	st.history = append(st.history, Exchange{
		UserMessage: userMessage,
		SQL:         sql,
		CreatedAt:   now,
	})
	if len(st.history) > s.maxHist {
		st.history = st.history[len(st.history)-s.maxHist:]
	}
	st.lastActivity = now
}

// EvictExpired removes every session idle for longer than the timeout. It
// also runs at the start of every call that touches the store, so there is
// no background sweeper.
func (s *Store) EvictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()
}

// Len reports the number of live sessions after a purge.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()
	return len(s.sessions)
}

func (s *Store) evictExpiredLocked() {
	now := s.now()
	for id, st := range s.sessions {
		if now.Sub(st.lastActivity) > s.timeout {
			delete(s.sessions, id)
			if s.logger != nil {
				s.logger.Info("evicted expired session", slog.String("session_id", id))
			}
		}
	}
}

func snapshot(id string, st *state) Session {
	history := make([]Exchange, len(st.history))
	copy(history, st.history)
	return Session{
		ID:           id,
		CreatedAt:    st.createdAt,
		LastActivity: st.lastActivity,
		History:      history,
	}
}
