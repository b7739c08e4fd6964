package store

import (
	"context"
	"testing"
	"time"

	"github.com/deckdraft/deckdraft/internal/domain"
)

func TestMemorySaveAndLoadIsolated(t *testing.T) {
	t.Parallel()

	repo := NewMemory()
	ctx := context.Background()

	sess := domain.NewSession("sess-1", "anon_0123")
	sess.Topic = "original"
	if err := repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Mutating the caller's copy must not leak into the stored snapshot.
	sess.Topic = "mutated"

	got, err := repo.LoadSession(ctx, "sess-1")
	if err != nil || got == nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.Topic != "original" {
		t.Fatalf("topic = %q, store shared mutable state", got.Topic)
	}
}

func TestMemoryLoadMissingReturnsNil(t *testing.T) {
	t.Parallel()

	repo := NewMemory()
	got, err := repo.LoadSession(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("got %#v, %v; want nil, nil", got, err)
	}
}

func TestMemoryDeleteExpiredSessions(t *testing.T) {
	t.Parallel()

	repo := NewMemory()
	ctx := context.Background()

	stale := domain.NewSession("stale", "anon_0123")
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	if err := repo.SaveSession(ctx, stale); err != nil {
		t.Fatalf("save stale: %v", err)
	}
	fresh := domain.NewSession("fresh", "anon_0123")
	if err := repo.SaveSession(ctx, fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	deleted, err := repo.DeleteExpiredSessions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if got, _ := repo.LoadSession(ctx, "fresh"); got == nil {
		t.Fatal("fresh session was deleted")
	}
}
