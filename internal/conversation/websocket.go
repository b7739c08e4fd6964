package conversation

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/deckdraft/deckdraft/internal/domain"
	"github.com/deckdraft/deckdraft/internal/generate"
	"github.com/deckdraft/deckdraft/internal/identity"
	"github.com/deckdraft/deckdraft/internal/store"
)

// frameQueueSize bounds the per-session application frame queue. Control
// frames are never queued.
const frameQueueSize = 32

// GatewayConfig configures the WebSocket gateway.
type GatewayConfig struct {
	AllowedOrigin     string
	IsDev             bool
	HeartbeatAck      bool
	RequiredAnswers   int
	GenerationTimeout time.Duration
}

// Gateway accepts one WebSocket per session and runs the dispatcher for it.
type Gateway struct {
	repo     store.Repository
	gen      generate.Generator
	registry *Registry
	cfg      GatewayConfig

	mu       sync.Mutex
	runtimes map[string]*sessionRuntime
}

// sessionRuntime is the per-session in-process state that outlives single
// connections: the idempotency guard and the serialization lock that keeps a
// connection handover from interleaving frame application.
type sessionRuntime struct {
	guard      *Guard
	applyMu    sync.Mutex
	lastActive time.Time
}

// NewGateway creates a WebSocket gateway.
func NewGateway(repo store.Repository, gen generate.Generator, registry *Registry, cfg GatewayConfig) *Gateway {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}
	return &Gateway{
		repo:     repo,
		gen:      gen,
		registry: registry,
		cfg:      cfg,
		runtimes: make(map[string]*sessionRuntime),
	}
}

// Registry exposes the connection registry, e.g. for the TTL sweeper.
func (gw *Gateway) Registry() *Registry { return gw.registry }

// runtime returns the session's runtime, creating it on first use.
func (gw *Gateway) runtime(sessionID string) *sessionRuntime {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	rt, ok := gw.runtimes[sessionID]
	if !ok {
		rt = &sessionRuntime{guard: NewGuard(gw.cfg.GenerationTimeout)}
		gw.runtimes[sessionID] = rt
	}
	rt.lastActive = time.Now()
	return rt
}

// PruneRuntimes drops runtimes idle longer than ttl with no live connection
// and no generation in flight. Returns the number pruned.
func (gw *Gateway) PruneRuntimes(ttl time.Duration) int {
	threshold := time.Now().Add(-ttl)
	gw.mu.Lock()
	defer gw.mu.Unlock()

	pruned := 0
	for id, rt := range gw.runtimes {
		if rt.lastActive.After(threshold) || rt.guard.InFlight() {
			continue
		}
		if gw.registry.Current(id) != nil {
			continue
		}
		delete(gw.runtimes, id)
		pruned++
	}
	return pruned
}

// ServeHTTP upgrades the request and runs the connection until it ends.
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !gw.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}

	conn := NewConn(sessionID, userID, ws)

	if err := gw.registry.Register(sessionID, conn); err != nil {
		// The incumbent stays; only the newcomer is terminated, and session
		// state is never touched.
		slog.Warn("Duplicate session connection rejected", "session_id", sessionID, "conn_id", conn.ID)
		conn.Close(StatusDuplicateSession, "session already active elsewhere")
		return
	}
	defer gw.registry.Unregister(sessionID, conn)
	defer conn.Close(websocket.StatusNormalClosure, "session ended")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := gw.repo.LoadSession(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		gw.sendTo(conn, errorUpdate{Type: "error", Error: "internal"})
		return
	}
	if sess == nil {
		sess = domain.NewSession(sessionID, userID)
		if err := gw.repo.SaveSession(ctx, sess); err != nil {
			slog.Error("Failed to create session", "error", err, "session_id", sessionID)
			gw.sendTo(conn, errorUpdate{Type: "error", Error: "internal"})
			return
		}
	}
	// The persisted marker is advisory; the in-memory guard is authoritative
	// and survives reconnects through the session runtime.
	sess.GenerationInFlight = false

	rt := gw.runtime(sessionID)
	m := NewMachine(sess, rt.guard, gw.gen, gw.repo, func(v any) { gw.sendTo(conn, v) }, gw.cfg.RequiredAnswers)

	snapshot := sessionSnapshot{Type: "session", State: sess.State, Turns: len(sess.History), Cycle: sess.Cycle}
	if sess.Strawman != nil {
		snapshot.ArtifactID = sess.Strawman.ArtifactID
	}
	gw.sendTo(conn, snapshot)

	frames := make(chan Frame, frameQueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		gw.consume(ctx, rt, m, conn, frames)
	}()

	gw.readLoop(ctx, conn, frames)

	cancel()
	close(frames)
	wg.Wait()
	slog.Info("Conversation connection ended", "session_id", sessionID, "conn_id", conn.ID)
}

func (gw *Gateway) checkOrigin(r *http.Request) bool {
	if gw.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || gw.cfg.AllowedOrigin == "*" || origin == gw.cfg.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", gw.cfg.AllowedOrigin)
	return false
}
