package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deckdraft/deckdraft/internal/domain"
	"github.com/deckdraft/deckdraft/internal/generate"
	"github.com/deckdraft/deckdraft/internal/store"
)

// Sender delivers one outbound update to the session's live connection.
// Delivery is best effort: a connection that died while generation finished
// must not fail the state transition itself.
type Sender func(v any)

// Machine drives one session's conversation. It is not safe for concurrent
// use; the dispatcher funnels all application frames for a session through a
// single serialization point before calling Apply.
type Machine struct {
	sess  *domain.Session
	guard *Guard
	gen   generate.Generator
	repo  store.Repository
	send  Sender

	requiredAnswers int
}

// NewMachine binds a machine to a loaded session.
func NewMachine(sess *domain.Session, guard *Guard, gen generate.Generator, repo store.Repository, send Sender, requiredAnswers int) *Machine {
	if requiredAnswers <= 0 {
		requiredAnswers = 1
	}
	return &Machine{
		sess:            sess,
		guard:           guard,
		gen:             gen,
		repo:            repo,
		send:            send,
		requiredAnswers: requiredAnswers,
	}
}

// Session exposes the machine's session for snapshotting.
func (m *Machine) Session() *domain.Session { return m.sess }

type handler func(ctx context.Context, m *Machine, f Frame) error

// transitions is the total transition table: every (state, recognized action)
// pair either maps to a handler or answers ErrInvalidTransition with state
// unchanged. No silent fallthrough.
var transitions = map[domain.State]map[string]handler{
	domain.StateInit: {
		ActionTopic: handleTopic,
	},
	domain.StateClarifying: {
		ActionAnswer: handleAnswer,
	},
	domain.StatePlanning: {
		ActionAcceptPlan: handleAcceptPlan,
		ActionRevisePlan: handleRevisePlan,
	},
	domain.StateGenerateStrawman: {
		ActionGenerate: handleGenerate,
	},
	domain.StateStrawmanReview: {
		ActionAcceptStrawman: handleAcceptStrawman,
		ActionReviseStrawman: handleReviseStrawman,
		// A late duplicate trigger re-serves the cycle's cached artifact.
		ActionGenerate: handleServeCached,
	},
	domain.StateContentGeneration: {},
	domain.StateDone: {
		ActionNewTopic: handleNewTopic,
	},
}

// Apply routes one application frame through the transition table.
func (m *Machine) Apply(ctx context.Context, f Frame) error {
	byAction, ok := transitions[m.sess.State]
	if !ok {
		return fmt.Errorf("%w: session %s in unknown state %q", ErrInvalidTransition, m.sess.SessionID, m.sess.State)
	}
	h, ok := byAction[f.Type]
	if !ok {
		return fmt.Errorf("%w: %q in state %q", ErrInvalidTransition, f.Type, m.sess.State)
	}
	return h(ctx, m, f)
}

var clarifyingQuestions = []string{
	"Who is the audience for this presentation?",
	"Roughly how many slides do you want?",
	"What tone should it strike?",
}

func (m *Machine) nextQuestion() string {
	if i := len(m.sess.Answers); i < len(clarifyingQuestions) {
		return clarifyingQuestions[i]
	}
	return "Anything else I should know before planning?"
}

func (m *Machine) save(ctx context.Context) error {
	if err := m.repo.SaveSession(ctx, m.sess); err != nil {
		return fmt.Errorf("save session %s: %w", m.sess.SessionID, err)
	}
	return nil
}

func handleTopic(ctx context.Context, m *Machine, f Frame) error {
	topic := strings.TrimSpace(f.Content)
	if topic == "" {
		// Re-prompt; state unchanged.
		m.send(stateUpdate{Type: "state", State: m.sess.State, Prompt: "Describe the presentation topic."})
		return nil
	}

	m.sess.Topic = topic
	m.sess.AppendTurn("user", topic)
	m.sess.State = domain.StateClarifying
	q := m.nextQuestion()
	m.sess.AppendTurn("assistant", q)
	if err := m.save(ctx); err != nil {
		return err
	}
	m.send(stateUpdate{Type: "state", State: m.sess.State, Prompt: q})
	return nil
}

func handleAnswer(ctx context.Context, m *Machine, f Frame) error {
	answer := strings.TrimSpace(f.Content)
	if answer == "" {
		m.send(stateUpdate{Type: "state", State: m.sess.State, Prompt: m.nextQuestion()})
		return nil
	}

	m.sess.Answers = append(m.sess.Answers, answer)
	m.sess.AppendTurn("user", answer)

	if len(m.sess.Answers) < m.requiredAnswers {
		q := m.nextQuestion()
		m.sess.AppendTurn("assistant", q)
		if err := m.save(ctx); err != nil {
			return err
		}
		m.send(stateUpdate{Type: "state", State: m.sess.State, Prompt: q})
		return nil
	}

	m.sess.Plan = buildPlan(m.sess.Topic, m.sess.Answers, m.sess.PlanNotes)
	m.sess.State = domain.StatePlanning
	m.sess.AppendTurn("assistant", "proposed plan: "+m.sess.Plan.Title)
	if err := m.save(ctx); err != nil {
		return err
	}
	m.send(planUpdate{Type: "plan", State: m.sess.State, Plan: m.sess.Plan})
	return nil
}

func handleAcceptPlan(ctx context.Context, m *Machine, f Frame) error {
	m.sess.AppendTurn("user", "plan accepted")
	m.sess.State = domain.StateGenerateStrawman
	if err := m.save(ctx); err != nil {
		return err
	}
	// Entering the state triggers generation immediately.
	return m.runGeneration(ctx)
}

func handleRevisePlan(ctx context.Context, m *Machine, f Frame) error {
	note := strings.TrimSpace(f.Content)
	if note != "" {
		m.sess.PlanNotes = append(m.sess.PlanNotes, note)
		m.sess.AppendTurn("user", note)
	}
	m.sess.Plan = buildPlan(m.sess.Topic, m.sess.Answers, m.sess.PlanNotes)
	if err := m.save(ctx); err != nil {
		return err
	}
	m.send(planUpdate{Type: "plan", State: m.sess.State, Plan: m.sess.Plan})
	return nil
}

func handleGenerate(ctx context.Context, m *Machine, f Frame) error {
	return m.runGeneration(ctx)
}

// runGeneration routes through the idempotency guard: for a given cycle the
// upstream call executes at most once, and every trigger observes the same
// cached artifact with the same artifact id.
func (m *Machine) runGeneration(ctx context.Context) error {
	m.sess.GenerationInFlight = true
	if err := m.save(ctx); err != nil {
		slog.Warn("Failed to persist in-flight marker", "session_id", m.sess.SessionID, "error", err)
	}

	artifact, err := m.guard.Do(ctx, m.sess.Cycle, func(runCtx context.Context) (*domain.Strawman, error) {
		return m.gen.GenerateStrawman(runCtx, generate.StrawmanRequest{
			SessionID: m.sess.SessionID,
			Topic:     m.sess.Topic,
			Answers:   m.sess.Answers,
			PlanNotes: m.sess.PlanNotes,
			Plan:      m.sess.Plan,
		})
	})

	m.sess.GenerationInFlight = false
	if err != nil {
		if ctx.Err() != nil {
			// The connection went away while waiting; the run keeps going
			// and caches for a reconnect.
			return ctx.Err()
		}
		if saveErr := m.save(ctx); saveErr != nil {
			slog.Warn("Failed to persist after generation failure", "session_id", m.sess.SessionID, "error", saveErr)
		}
		return err
	}

	artifact.Cycle = m.sess.Cycle
	m.sess.Strawman = artifact
	m.sess.State = domain.StateStrawmanReview
	m.sess.AppendTurn("assistant", "strawman ready: "+artifact.ArtifactID)
	if err := m.save(ctx); err != nil {
		return err
	}
	m.send(strawmanUpdate{
		Type:       "strawman",
		State:      m.sess.State,
		ArtifactID: artifact.ArtifactID,
		Title:      artifact.Title,
		Slides:     artifact.Slides,
	})
	return nil
}

// handleServeCached answers a duplicate trigger with the cycle's cached
// artifact. Output for a cycle is deterministic from the client's view: the
// same artifact id, never a second generation.
func handleServeCached(ctx context.Context, m *Machine, f Frame) error {
	artifact := m.sess.Strawman
	if artifact == nil {
		return fmt.Errorf("%w: no cached strawman for cycle %d", ErrInvalidTransition, m.sess.Cycle)
	}
	m.send(strawmanUpdate{
		Type:       "strawman",
		State:      m.sess.State,
		ArtifactID: artifact.ArtifactID,
		Title:      artifact.Title,
		Slides:     artifact.Slides,
	})
	return nil
}

func handleAcceptStrawman(ctx context.Context, m *Machine, f Frame) error {
	m.sess.AppendTurn("user", "strawman accepted")
	m.sess.State = domain.StateContentGeneration
	if err := m.save(ctx); err != nil {
		return err
	}
	m.send(stateUpdate{Type: "state", State: m.sess.State})

	failed := 0
	for i, slide := range m.sess.Strawman.Slides {
		body, err := m.gen.GenerateSlide(ctx, generate.SlideRequest{
			SessionID: m.sess.SessionID,
			Topic:     m.sess.Topic,
			Index:     i,
			Slide:     slide,
		})
		content := domain.SlideContent{Index: i, Heading: slide.Heading}
		if err != nil {
			// Partial failures are forwarded, not fatal to the run.
			failed++
			content.Failed = true
			content.Error = err.Error()
			slog.Warn("Slide generation failed", "session_id", m.sess.SessionID, "index", i, "error", err)
		} else {
			content.Body = body
		}
		m.sess.Slides = append(m.sess.Slides, content)
		m.send(slideUpdate{
			Type:    "slide",
			Index:   content.Index,
			Heading: content.Heading,
			Body:    content.Body,
			Failed:  content.Failed,
			Error:   content.Error,
		})
	}

	m.sess.State = domain.StateDone
	if err := m.save(ctx); err != nil {
		return err
	}
	m.send(doneUpdate{Type: "done", Slides: len(m.sess.Slides), Failed: failed})
	return nil
}

// handleReviseStrawman returns to planning, starting a new cycle: the cached
// strawman is cleared and exactly one fresh generation becomes permitted.
func handleReviseStrawman(ctx context.Context, m *Machine, f Frame) error {
	note := strings.TrimSpace(f.Content)
	if note != "" {
		m.sess.PlanNotes = append(m.sess.PlanNotes, note)
		m.sess.AppendTurn("user", note)
	} else {
		m.sess.AppendTurn("user", "strawman revision requested")
	}

	m.sess.StartNewCycle()
	m.guard.Reset(m.sess.Cycle)
	m.sess.Plan = buildPlan(m.sess.Topic, m.sess.Answers, m.sess.PlanNotes)
	m.sess.State = domain.StatePlanning
	if err := m.save(ctx); err != nil {
		return err
	}
	m.send(planUpdate{Type: "plan", State: m.sess.State, Plan: m.sess.Plan})
	return nil
}

func handleNewTopic(ctx context.Context, m *Machine, f Frame) error {
	topic := strings.TrimSpace(f.Content)
	if topic == "" {
		m.send(stateUpdate{Type: "state", State: m.sess.State, Prompt: "Describe the next presentation topic."})
		return nil
	}

	m.sess.AppendTurn("user", topic)
	m.sess.RestartTopic(topic)
	m.guard.Reset(m.sess.Cycle)
	q := m.nextQuestion()
	m.sess.AppendTurn("assistant", q)
	if err := m.save(ctx); err != nil {
		return err
	}
	m.send(stateUpdate{Type: "state", State: m.sess.State, Prompt: q})
	return nil
}

// buildPlan derives a deterministic outline from the collected conversation.
// Revision notes surface as emphasis entries so the client sees its feedback
// reflected in the proposal.
func buildPlan(topic string, answers, notes []string) *domain.SlidePlan {
	slides := make([]domain.PlanSlide, 0, len(answers)+len(notes)+2)
	slides = append(slides, domain.PlanSlide{
		Heading: "Introduction",
		Summary: fmt.Sprintf("Set the stage for %s", topic),
	})
	for i, a := range answers {
		slides = append(slides, domain.PlanSlide{
			Heading: fmt.Sprintf("Section %d", i+1),
			Summary: a,
		})
	}
	for _, n := range notes {
		slides = append(slides, domain.PlanSlide{
			Heading: "Revision focus",
			Summary: n,
		})
	}
	slides = append(slides, domain.PlanSlide{
		Heading: "Summary",
		Summary: fmt.Sprintf("Key takeaways on %s", topic),
	})
	return &domain.SlidePlan{Title: topic, Slides: slides}
}

// isRetryableGeneration reports whether the error should be answered as a
// retryable generation failure rather than surfaced as an internal error.
func isRetryableGeneration(err error) bool {
	return errors.Is(err, ErrGenerationFailed)
}
