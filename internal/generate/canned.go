package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deckdraft/deckdraft/internal/domain"
)

// CannedGenerator produces deterministic drafts derived from the plan alone.
// Used when no Anthropic API key is configured so the gateway still runs end
// to end in development.
type CannedGenerator struct{}

// NewCanned creates a canned generator.
func NewCanned() *CannedGenerator { return &CannedGenerator{} }

// GenerateStrawman derives a draft directly from the accepted plan.
func (g *CannedGenerator) GenerateStrawman(_ context.Context, req StrawmanRequest) (*domain.Strawman, error) {
	if req.Plan == nil {
		return nil, fmt.Errorf("strawman generation requires an accepted plan")
	}

	slides := make([]domain.SlideDraft, 0, len(req.Plan.Slides))
	for _, s := range req.Plan.Slides {
		slides = append(slides, domain.SlideDraft{
			Heading: s.Heading,
			Bullets: []string{s.Summary},
			Notes:   "draft generated without an upstream model",
		})
	}

	return &domain.Strawman{
		ArtifactID:  uuid.NewString(),
		Title:       req.Plan.Title,
		Slides:      slides,
		GeneratedAt: time.Now(),
	}, nil
}

// GenerateSlide expands the draft bullets into placeholder prose.
func (g *CannedGenerator) GenerateSlide(_ context.Context, req SlideRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.", req.Slide.Heading)
	for _, bullet := range req.Slide.Bullets {
		fmt.Fprintf(&b, " %s.", bullet)
	}
	return b.String(), nil
}

var _ Generator = (*CannedGenerator)(nil)
var _ Generator = (*AnthropicGenerator)(nil)
