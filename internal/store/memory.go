package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memorySession struct {
	mu            sync.Mutex
	id            string
	messages      []Message
	createdAt     time.Time
	lastUpdatedAt time.Time
}

// MemorySessionStore is a process-local SessionStore. The map lock is only held to
// look sessions up or register new ones; appends take the per-session lock, so
// traffic on different sessions never contends.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	now      func() time.Time
	newID    func() string
}

// MemoryOption configures a MemorySessionStore.
type MemoryOption func(*MemorySessionStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemorySessionStore) { s.now = now }
}

// WithIDGenerator overrides session id allocation.
func WithIDGenerator(newID func() string) MemoryOption {
	return func(s *MemorySessionStore) { s.newID = newID }
}

func NewMemorySessionStore(opts ...MemoryOption) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySessionStore) Create(_ context.Context) (string, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for _, exists := s.sessions[id]; exists; _, exists = s.sessions[id] {
		id = s.newID()
	}
	s.sessions[id] = &memorySession{id: id, createdAt: now, lastUpdatedAt: now}
	return id, nil
}

func (s *MemorySessionStore) lookup(sessionID string) (*memorySession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

func (s *MemorySessionStore) Append(_ context.Context, sessionID string, msg Message) error {
	sess, ok := s.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := s.now()
	if now.Before(sess.lastUpdatedAt) {
		now = sess.lastUpdatedAt
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	sess.messages = append(sess.messages, cloneMessage(msg))
	sess.lastUpdatedAt = now
	return nil
}

func (s *MemorySessionStore) History(_ context.Context, sessionID string) ([]Message, error) {
	sess, ok := s.lookup(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return cloneMessages(sess.messages), nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*Session, error) {
	sess, ok := s.lookup(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &Session{
		ID:            sess.id,
		Messages:      cloneMessages(sess.messages),
		CreatedAt:     sess.createdAt,
		LastUpdatedAt: sess.lastUpdatedAt,
	}, nil
}

// Len reports the number of sessions held.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
