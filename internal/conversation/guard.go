package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deckdraft/deckdraft/internal/domain"
)

// Guard enforces at-most-once execution of the expensive strawman generation
// per (session, planning cycle). The flag check and cache read form a single
// mutex-guarded decision point; a second trigger while a run is in flight
// waits for that run instead of starting another.
//
// The run executes on a context detached from the triggering connection, so a
// disconnect mid-generation lets the result complete and cache for a fast
// reconnect.
type Guard struct {
	timeout time.Duration

	mu       sync.Mutex
	cycle    int
	inFlight bool
	done     chan struct{}
	artifact *domain.Strawman
	err      error
}

// NewGuard creates a guard. timeout bounds each underlying generation call.
func NewGuard(timeout time.Duration) *Guard {
	return &Guard{timeout: timeout}
}

// Do returns the cycle's artifact, running run at most once per cycle. All
// concurrent and subsequent callers for the same cycle observe the same
// result. Failures clear the in-flight flag and cache nothing, so an explicit
// re-trigger may start a fresh run. A caller whose ctx ends while waiting
// gets the ctx error; the run itself keeps going.
func (g *Guard) Do(ctx context.Context, cycle int, run func(context.Context) (*domain.Strawman, error)) (*domain.Strawman, error) {
	g.mu.Lock()
	if g.cycle != cycle {
		// Stale guard state from a previous cycle.
		g.resetLocked(cycle)
	}
	if g.artifact != nil {
		artifact := g.artifact
		g.mu.Unlock()
		return artifact, nil
	}
	if g.inFlight {
		done := g.done
		g.mu.Unlock()
		return g.wait(ctx, done)
	}

	g.inFlight = true
	g.err = nil
	done := make(chan struct{})
	g.done = done
	g.mu.Unlock()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	go func() {
		defer cancel()
		artifact, err := run(runCtx)

		g.mu.Lock()
		if g.cycle == cycle {
			if err != nil {
				g.err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
			} else {
				g.artifact = artifact
			}
			g.inFlight = false
		}
		g.mu.Unlock()
		close(done)
	}()

	return g.wait(ctx, done)
}

func (g *Guard) wait(ctx context.Context, done chan struct{}) (*domain.Strawman, error) {
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	artifact, err := g.artifact, g.err
	g.mu.Unlock()
	if artifact != nil {
		return artifact, nil
	}
	return nil, err
}

// Reset starts a fresh cycle window, discarding the cached artifact and any
// pending outcome. An in-flight run from the old cycle may still finish but
// its result is dropped.
func (g *Guard) Reset(cycle int) {
	g.mu.Lock()
	g.resetLocked(cycle)
	g.mu.Unlock()
}

func (g *Guard) resetLocked(cycle int) {
	g.cycle = cycle
	g.inFlight = false
	g.done = nil
	g.artifact = nil
	g.err = nil
}

// InFlight reports whether a generation run is currently executing.
func (g *Guard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
