// Package generate defines the upstream generation collaborator: the remote
// service that drafts strawman decks and per-slide content. The remote call is
// idempotent from the caller's perspective only because the gateway's
// idempotency guard makes it so; nothing here deduplicates.
package generate

import (
	"context"

	"github.com/deckdraft/deckdraft/internal/domain"
)

// StrawmanRequest carries the session context for a draft generation call.
type StrawmanRequest struct {
	SessionID string
	Topic     string
	Answers   []string
	PlanNotes []string
	Plan      *domain.SlidePlan
}

// SlideRequest asks for final content for one drafted slide.
type SlideRequest struct {
	SessionID string
	Topic     string
	Index     int
	Slide     domain.SlideDraft
}

// Generator is the upstream generation collaborator interface.
type Generator interface {
	// GenerateStrawman produces a draft deck for the accepted plan. Slow;
	// callers must route through the gateway's idempotency guard.
	GenerateStrawman(ctx context.Context, req StrawmanRequest) (*domain.Strawman, error)

	// GenerateSlide produces the final body text for one slide.
	GenerateSlide(ctx context.Context, req SlideRequest) (string, error)
}
