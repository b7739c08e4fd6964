// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/deckdraft/deckdraft/internal/domain"
)

// Repository defines the interface for persisting conversation sessions.
// Implementations must be safe for concurrent use per key; read-modify-write
// cycles are performed only inside a session's serialization point.
type Repository interface {
	// LoadSession retrieves a session by id. Returns (nil, nil) when the
	// session does not exist.
	LoadSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// SaveSession creates or replaces a session record.
	SaveSession(ctx context.Context, sess *domain.Session) error

	// DeleteExpiredSessions removes sessions idle longer than ttl and
	// returns the number removed.
	DeleteExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying store.
	Close() error
}
