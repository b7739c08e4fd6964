package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deckdraft/deckdraft/internal/conversation"
	"github.com/deckdraft/deckdraft/internal/domain"
	"github.com/deckdraft/deckdraft/internal/store"
	"github.com/go-chi/chi/v5"
)

func newSessionRouter(t *testing.T, repo store.Repository, registry *conversation.Registry) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	NewSessionHandler(NewHandler(repo), registry, false).RegisterRoutes(r)
	return r
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	repo := store.NewMemory()
	sess := domain.NewSession("sess-1", "anon_0123")
	sess.State = domain.StateStrawmanReview
	sess.Topic = "incident reviews"
	sess.Cycle = 2
	sess.Strawman = &domain.Strawman{
		ArtifactID: "art-7",
		Slides:     []domain.SlideDraft{{Heading: "Intro"}},
	}
	sess.AppendTurn("user", "incident reviews")
	if err := repo.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	registry := conversation.NewRegistry()
	conn := conversation.NewConn("sess-1", "anon_0123", nil)
	if err := registry.Register("sess-1", conn); err != nil {
		t.Fatalf("register: %v", err)
	}

	r := newSessionRouter(t, repo, registry)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["state"] != string(domain.StateStrawmanReview) {
		t.Errorf("state = %v", body["state"])
	}
	if body["artifact_id"] != "art-7" {
		t.Errorf("artifact_id = %v", body["artifact_id"])
	}
	if int(body["cycle"].(float64)) != 2 {
		t.Errorf("cycle = %v", body["cycle"])
	}
	if int(body["turns"].(float64)) != 1 {
		t.Errorf("turns = %v", body["turns"])
	}
	if body["connected"] != true {
		t.Errorf("connected = %v, want true", body["connected"])
	}
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	r := newSessionRouter(t, store.NewMemory(), conversation.NewRegistry())
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetConfig(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	NewSessionHandler(NewHandler(store.NewMemory()), conversation.NewRegistry(), true).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["generation_enabled"] != true {
		t.Errorf("generation_enabled = %v, want true", body["generation_enabled"])
	}
}

// failingRepo simulates a store whose connectivity check fails.
type failingRepo struct {
	store.Repository
}

func (f *failingRepo) Ping(context.Context) error { return fmt.Errorf("store down") }

func (f *failingRepo) DeleteExpiredSessions(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func TestHealth(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	NewHealthHandler(store.NewMemory()).RegisterHealth(r)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthDegraded(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	NewHealthHandler(&failingRepo{Repository: store.NewMemory()}).RegisterHealth(r)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}
