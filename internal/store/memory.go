package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/deckdraft/deckdraft/internal/domain"
)

// MemoryStore implements Repository in process memory. Used by tests and by
// STORE_DRIVER=memory for throwaway deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	updated  map[string]time.Time
}

// NewMemory creates an in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		updated:  make(map[string]time.Time),
	}
}

// LoadSession retrieves a session by id.
func (s *MemoryStore) LoadSession(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	data, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// SaveSession stores a snapshot of the session. Sessions are kept as
// serialized bytes so callers cannot share mutable state through the store.
func (s *MemoryStore) SaveSession(_ context.Context, sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.mu.Lock()
	s.sessions[sess.SessionID] = data
	s.updated[sess.SessionID] = sess.UpdatedAt
	s.mu.Unlock()
	return nil
}

// DeleteExpiredSessions removes sessions idle longer than ttl.
func (s *MemoryStore) DeleteExpiredSessions(_ context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, at := range s.updated {
		if at.Before(threshold) {
			delete(s.sessions, id)
			delete(s.updated, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
