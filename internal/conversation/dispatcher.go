package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coder/websocket"
)

// readLoop reads frames off the connection until it closes. Control frames
// are classified and answered inline with no suspension point; application
// frames are queued in strict arrival order.
func (gw *Gateway) readLoop(ctx context.Context, conn *Conn, frames chan<- Frame) {
	for {
		_, raw, err := conn.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", conn.SessionID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "session_id", conn.SessionID)
			}
			return
		}

		f, kind, cerr := Classify(raw)
		if cerr != nil {
			// Answered to the sender; session state unchanged.
			gw.sendTo(conn, errorUpdate{Type: "error", Error: "malformed_frame", Detail: cerr.Error()})
			continue
		}
		if kind == KindControl {
			if gw.cfg.HeartbeatAck {
				gw.sendTo(conn, pongUpdate{Type: "pong"})
			}
			continue
		}

		select {
		case frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

// consume applies queued application frames to the session's state machine,
// one at a time, in arrival order. Frames from a connection that lost its
// registry mapping are discarded rather than applied.
func (gw *Gateway) consume(ctx context.Context, rt *sessionRuntime, m *Machine, conn *Conn, frames <-chan Frame) {
	for f := range frames {
		if ctx.Err() != nil {
			continue // drain remaining frames after disconnect
		}
		if gw.registry.Current(conn.SessionID) != conn {
			slog.Debug("Discarding frame from superseded connection", "session_id", conn.SessionID, "conn_id", conn.ID)
			continue
		}

		rt.applyMu.Lock()
		err := m.Apply(ctx, f)
		rt.applyMu.Unlock()

		switch {
		case err == nil:
		case errors.Is(err, ErrInvalidTransition):
			gw.sendTo(conn, errorUpdate{Type: "error", Error: "invalid_action", Detail: err.Error(), State: m.Session().State})
		case isRetryableGeneration(err):
			gw.sendTo(conn, errorUpdate{Type: "error", Error: "generation_failed", Detail: err.Error(), State: m.Session().State})
		case errors.Is(err, context.Canceled):
			// Connection went away mid-apply; session state is preserved in
			// the store for a later reconnect.
		default:
			slog.Error("Frame application failed", "error", err, "session_id", conn.SessionID, "action", f.Type)
			gw.sendTo(conn, errorUpdate{Type: "error", Error: "internal"})
		}
	}
}

// sendTo delivers an update best effort. A dead connection only loses the
// delivery, never the state transition behind it.
func (gw *Gateway) sendTo(conn *Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		slog.Debug("Outbound update dropped", "error", err, "session_id", conn.SessionID)
	}
}
