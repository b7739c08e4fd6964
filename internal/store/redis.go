package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deckdraft/deckdraft/internal/domain"
)

const redisKeyPrefix = "deckdraft:session:"

// RedisStore implements Repository on a Redis instance. Sessions are JSON
// documents expired by Redis itself, so DeleteExpiredSessions is a no-op.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed repository. ttl bounds how long an idle
// session survives; every save refreshes it.
func NewRedis(addr string, ttl time.Duration) (Repository, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: client, ttl: ttl}, nil
}

// LoadSession retrieves a session by id.
func (s *RedisStore) LoadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !sess.State.Valid() {
		return nil, fmt.Errorf("session %s has unknown state %q", sessionID, sess.State)
	}
	return &sess, nil
}

// SaveSession creates or replaces a session record and refreshes its TTL.
func (s *RedisStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sess.SessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions is a no-op; Redis key TTLs handle expiry.
func (s *RedisStore) DeleteExpiredSessions(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
