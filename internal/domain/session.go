// Package domain holds the conversation data model shared by the gateway,
// the store, and the generation layer.
package domain

import (
	"time"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// PlanSlide is one outlined slide in the proposed plan.
type PlanSlide struct {
	Heading string `json:"heading"`
	Summary string `json:"summary"`
}

// SlidePlan is the outline proposed during planning. Accepting it starts a
// strawman generation cycle.
type SlidePlan struct {
	Title  string      `json:"title"`
	Slides []PlanSlide `json:"slides"`
}

// SlideDraft is one drafted slide inside a strawman.
type SlideDraft struct {
	Heading string   `json:"heading"`
	Bullets []string `json:"bullets"`
	Notes   string   `json:"notes,omitempty"`
}

// Strawman is the draft artifact produced at most once per planning cycle.
type Strawman struct {
	ArtifactID  string       `json:"artifact_id"`
	Cycle       int          `json:"cycle"`
	Title       string       `json:"title"`
	Slides      []SlideDraft `json:"slides"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// SlideContent is the final generated content for one slide.
type SlideContent struct {
	Index   int    `json:"index"`
	Heading string `json:"heading"`
	Body    string `json:"body,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Session is one logical conversation. It outlives any single connection and
// is persisted by the store between connects.
type Session struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	State     State  `json:"state"`

	Topic     string   `json:"topic,omitempty"`
	Answers   []string `json:"answers,omitempty"`
	PlanNotes []string `json:"plan_notes,omitempty"`

	Plan     *SlidePlan     `json:"plan,omitempty"`
	Strawman *Strawman      `json:"strawman,omitempty"`
	Slides   []SlideContent `json:"slides,omitempty"`

	History []Turn `json:"history,omitempty"`

	// Cycle counts planning cycles; a revision from review increments it.
	Cycle int `json:"cycle"`

	// GenerationInFlight is an advisory persisted marker. The in-memory
	// idempotency guard is authoritative; loaders reset this flag so a
	// crash mid-generation never wedges the session.
	GenerationInFlight bool `json:"generation_in_flight,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a fresh session in the initial state.
func NewSession(sessionID, userID string) *Session {
	now := time.Now()
	return &Session{
		SessionID: sessionID,
		UserID:    userID,
		State:     StateInit,
		Cycle:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendTurn records one conversation turn. History is append-only.
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content, At: time.Now()})
	s.UpdatedAt = time.Now()
}

// StartNewCycle begins a fresh planning cycle: the cached strawman and any
// generated slides from the old cycle are discarded and the in-flight marker
// is cleared.
func (s *Session) StartNewCycle() {
	s.Cycle++
	s.Strawman = nil
	s.Slides = nil
	s.GenerationInFlight = false
	s.UpdatedAt = time.Now()
}

// RestartTopic resets the conversational content for a new topic while
// preserving identity and history. Used when a finished session submits a
// fresh topic.
func (s *Session) RestartTopic(topic string) {
	s.Topic = topic
	s.Answers = nil
	s.PlanNotes = nil
	s.Plan = nil
	s.StartNewCycle()
	s.State = StateClarifying
}
