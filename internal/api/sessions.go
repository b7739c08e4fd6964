package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/deckdraft/deckdraft/internal/conversation"
	"github.com/deckdraft/deckdraft/internal/store"
	"github.com/go-chi/chi/v5"
)

// SessionHandler handles session inspection endpoints.
type SessionHandler struct {
	*Handler
	registry          *conversation.Registry
	generationEnabled bool
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler, registry *conversation.Registry, generationEnabled bool) *SessionHandler {
	return &SessionHandler{Handler: base, registry: registry, generationEnabled: generationEnabled}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/sessions/{sessionID}", h.GetSession)
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *SessionHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"generation_enabled": h.generationEnabled,
	})
}

// GetSession returns a read-only summary of a session's progress.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "missing session id")
		return
	}

	sess, err := h.repo.LoadSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	artifactID := ""
	slideCount := 0
	if sess.Strawman != nil {
		artifactID = sess.Strawman.ArtifactID
		slideCount = len(sess.Strawman.Slides)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id":  sess.SessionID,
		"state":       sess.State,
		"topic":       sess.Topic,
		"cycle":       sess.Cycle,
		"turns":       len(sess.History),
		"artifact_id": artifactID,
		"slide_count": slideCount,
		"connected":   h.registry.Current(sessionID) != nil,
		"updated_at":  sess.UpdatedAt,
	})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["store"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
