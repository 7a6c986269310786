// Package session keeps uploaded datasets in memory between requests.
//
// A session is created when a dataset is uploaded or pulled from the
// warehouse, read by any number of analysis requests, and removed either
// explicitly or once it has been idle longer than the configured TTL.
// Tables are immutable, so readers share them without copying.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"captainpulse/internal/table"
)

// Kind distinguishes analysis datasets from warehouse staging data.
type Kind string

const (
	// KindAnalysis holds a validated dataset with cohort and date columns.
	KindAnalysis Kind = "analysis"
	// KindFunnel holds warehouse staging data (mobile numbers, captain ids,
	// AO funnel pulls) before it is promoted to an analysis session.
	KindFunnel Kind = "funnel"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Session is one stored dataset.
type Session struct {
	ID         string       `json:"session_id"`
	Kind       Kind         `json:"kind"`
	Source     string       `json:"source"`
	Table      *table.Table `json:"-"`
	CreatedAt  time.Time    `json:"created_at"`
	LastAccess time.Time    `json:"last_access"`
}

// Store is the session lifecycle used by the services.
type Store interface {
	Create(kind Kind, source string, t *table.Table) (*Session, error)
	Get(id string) (*Session, error)
	Replace(id string, t *table.Table) error
	Delete(id string) error
	Len() int
	Sweep(now time.Time) int
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	max      int
	now      func() time.Time
	logger   *slog.Logger

	// OnChange, when set, receives the session count delta after every
	// create, delete and eviction.
	OnChange func(delta int)
}

// NewMemoryStore creates a store. A zero ttl disables expiry and a zero
// maxSessions disables the capacity limit.
func NewMemoryStore(ttl time.Duration, maxSessions int, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		max:      maxSessions,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "session_store")),
	}
}

// Create stores a table under a new id. When the store is full the least
// recently used session is evicted first.
func (s *MemoryStore) Create(kind Kind, source string, t *table.Table) (*Session, error) {
	if t == nil {
		return nil, fmt.Errorf("session table must not be nil")
	}
	now := s.now()
	sess := &Session{
		ID:         uuid.New().String(),
		Kind:       kind,
		Source:     source,
		Table:      t,
		CreatedAt:  now,
		LastAccess: now,
	}

	s.mu.Lock()
	evicted := 0
	for s.max > 0 && len(s.sessions) >= s.max {
		id := s.oldestLocked()
		s.logger.Info("evicting least recently used session",
			slog.String("session_id", id),
			slog.Int("max_sessions", s.max))
		delete(s.sessions, id)
		evicted++
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.notify(1 - evicted)
	s.logger.Debug("session created",
		slog.String("session_id", sess.ID),
		slog.String("kind", string(kind)),
		slog.Int("rows", t.Len()))
	copied := *sess
	return &copied, nil
}

// Get returns a session and refreshes its last access time.
func (s *MemoryStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	now := s.now()
	if s.expired(sess, now) {
		delete(s.sessions, id)
		s.mu.Unlock()
		s.notify(-1)
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	sess.LastAccess = now
	// Return a copy to prevent external modification
	copied := *sess
	s.mu.Unlock()
	return &copied, nil
}

// Replace swaps the table held by a session.
func (s *MemoryStore) Replace(id string, t *table.Table) error {
	if t == nil {
		return fmt.Errorf("session table must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	sess.Table = t
	sess.LastAccess = s.now()
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.notify(-1)
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes every session idle for longer than the TTL and returns how
// many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.notify(-removed)
		s.logger.Info("expired sessions removed", slog.Int("count", removed))
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

func (s *MemoryStore) expired(sess *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.LastAccess) > s.ttl
}

func (s *MemoryStore) oldestLocked() string {
	var (
		oldest string
		at     time.Time
	)
	for id, sess := range s.sessions {
		if oldest == "" || sess.LastAccess.Before(at) {
			oldest, at = id, sess.LastAccess
		}
	}
	return oldest
}

func (s *MemoryStore) notify(delta int) {
	if s.OnChange != nil && delta != 0 {
		s.OnChange(delta)
	}
}
