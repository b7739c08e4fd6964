package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/deckdraft/deckdraft/internal/store"
)

const ttlWorkerInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically removes
// sessions idle beyond ttl from the store and prunes their in-process
// runtimes. Live connections keep their sessions fresh, so a sweep never
// touches an active conversation.
func StartTTLWorker(ctx context.Context, repo store.Repository, gw *Gateway, ttl time.Duration) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpiredSessions(ctx, repo, gw, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredSessions(ctx context.Context, repo store.Repository, gw *Gateway, ttl time.Duration) {
	deleted, err := repo.DeleteExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to delete expired sessions", "error", err)
		return
	}
	pruned := gw.PruneRuntimes(ttl)
	if deleted > 0 || pruned > 0 {
		slog.Info("TTL worker sweep completed", "sessions_deleted", deleted, "runtimes_pruned", pruned)
	}
}
