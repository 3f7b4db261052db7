// Package session provides the per-caller USSD session store.
//
// Sessions live in process memory with a sliding inactivity TTL. The Store
// interface keeps the dialogue state machine independent of the backing cache
// so an external cache could replace the in-memory one without touching the
// state machine.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/QuickReach/QuickReach/internal/models"
)

// DefaultTTL is the inactivity window after which a session is treated as if
// it never existed.
const DefaultTTL = 5 * time.Minute

// Store defines the interface for per-caller session state.
type Store interface {
	// Get retrieves the session, or a fresh START session if absent or expired.
	Get(sessionID string) (models.Session, error)

	// Update merges patch into the session data (last-write-wins per key),
	// replaces the state and resets the expiry window.
	Update(sessionID string, state models.SessionState, patch map[models.DataKey]string) error

	// Clear removes the session immediately, independent of expiry.
	Clear(sessionID string) error
}

type entry struct {
	session   models.Session
	expiresAt time.Time
}

// CacheStore implements Store with an expiring in-memory map.
type CacheStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
}

// Option defines a configuration option for the CacheStore.
type Option func(*CacheStore)

// WithTTL overrides the default inactivity window.
func WithTTL(ttl time.Duration) Option {
	return func(s *CacheStore) { s.ttl = ttl }
}

// NewCacheStore creates a new in-memory session store.
func NewCacheStore(opts ...Option) *CacheStore {
	s := &CacheStore{
		entries: make(map[string]*entry),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("session.NewCacheStore created", "ttl", s.ttl)
	return s
}

// Get retrieves the stored session or a fresh START session. Expired entries
// are purged lazily here; Sweep handles the rest.
func (s *CacheStore) Get(sessionID string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if ok && time.Now().Before(e.expiresAt) {
		slog.Debug("session.Get found", "sessionID", sessionID, "state", e.session.State)
		return cloneSession(e.session), nil
	}
	if ok {
		delete(s.entries, sessionID)
		slog.Debug("session.Get purged expired entry", "sessionID", sessionID)
	}
	return freshSession(sessionID), nil
}

// Update merges patch into the session data, replaces the state and resets
// the expiry window.
func (s *CacheStore) Update(sessionID string, state models.SessionState, patch map[models.DataKey]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[sessionID]
	if !ok || now.After(e.expiresAt) {
		e = &entry{session: freshSession(sessionID)}
		s.entries[sessionID] = e
	}
	e.session.State = state
	for k, v := range patch {
		e.session.Data[k] = v
	}
	e.session.UpdatedAt = now
	e.expiresAt = now.Add(s.ttl)

	slog.Debug("session.Update succeeded", "sessionID", sessionID, "state", state, "patchKeys", len(patch))
	return nil
}

// Clear removes the session entry immediately.
func (s *CacheStore) Clear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	slog.Debug("session.Clear succeeded", "sessionID", sessionID)
	return nil
}

// Sweep removes all expired entries. Intended to run periodically.
func (s *CacheStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("session.Sweep removed expired entries", "count", removed)
	}
}

// Len returns the number of live entries, expired or not. Used in tests.
func (s *CacheStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func freshSession(sessionID string) models.Session {
	return models.Session{
		ID:    sessionID,
		State: models.StateStart,
		Data:  make(map[models.DataKey]string),
	}
}

// cloneSession copies the data map so callers cannot mutate stored state.
func cloneSession(src models.Session) models.Session {
	out := src
	out.Data = make(map[models.DataKey]string, len(src.Data))
	for k, v := range src.Data {
		out.Data[k] = v
	}
	return out
}
