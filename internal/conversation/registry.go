// Package conversation implements the session connection gateway: one
// WebSocket per logical session, control-traffic filtering, the per-session
// conversational state machine, and at-most-once strawman generation.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// StatusDuplicateSession is the close code sent to a connection rejected
// because its session already has a live connection elsewhere.
const StatusDuplicateSession websocket.StatusCode = 4409

// Conn is one live transport channel bound to exactly one session.
type Conn struct {
	ID          string
	SessionID   string
	UserID      string
	ConnectedAt time.Time

	ws *websocket.Conn
}

// NewConn wraps an accepted WebSocket for registry tracking. ws may be nil in
// tests that exercise the registry alone.
func NewConn(sessionID, userID string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		UserID:      userID,
		ConnectedAt: time.Now(),
		ws:          ws,
	}
}

// WriteJSON marshals v and writes it as a text message. Uses a background
// context for the write since the WebSocket library tracks its own connection
// state.
func (c *Conn) WriteJSON(v any) error {
	if c.ws == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.ws.Write(context.Background(), websocket.MessageText, data)
}

// Close closes the underlying WebSocket with the given status.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	if c.ws == nil {
		return
	}
	if err := c.ws.Close(code, reason); err != nil {
		slog.Debug("Failed to close websocket", "error", err, "session_id", c.SessionID)
	}
}

// Registry maps each session id to its single live connection. A newcomer for
// an already-mapped session is refused; the incumbent is never evicted.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Conn)}
}

// Register atomically installs conn as the session's live connection. The
// check and install happen under one lock so two concurrent attempts cannot
// both observe "no existing entry". Returns ErrDuplicateSession when the
// session already has a live connection.
func (r *Registry) Register(sessionID string, conn *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[sessionID]; ok {
		return fmt.Errorf("%w: held by connection %s", ErrDuplicateSession, existing.ID)
	}
	r.active[sessionID] = conn
	slog.Info("Connection registered", "session_id", sessionID, "user_id", conn.UserID, "conn_id", conn.ID)
	return nil
}

// Unregister removes the mapping only if it currently points at conn, so a
// late unregister from a rejected attempt cannot evict a valid registration.
func (r *Registry) Unregister(sessionID string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[sessionID]; ok && current == conn {
		delete(r.active, sessionID)
		slog.Info("Connection unregistered", "session_id", sessionID, "conn_id", conn.ID)
	}
}

// Current returns the live connection for a session, or nil.
func (r *Registry) Current(sessionID string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[sessionID]
}

// CloseSession forcefully terminates the session's live connection, if any.
// Used by the TTL sweeper.
func (r *Registry) CloseSession(sessionID string) {
	r.mu.Lock()
	conn, ok := r.active[sessionID]
	if ok {
		delete(r.active, sessionID)
	}
	r.mu.Unlock()

	if ok {
		conn.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Connection closed by registry", "session_id", sessionID, "conn_id", conn.ID)
	}
}
