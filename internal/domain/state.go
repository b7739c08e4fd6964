package domain

// State is the current node of the per-session conversation state machine.
// The progression is strictly forward except for the explicit revision edge
// from StateStrawmanReview back to StatePlanning.
type State string

const (
	// StateInit awaits the initial topic description.
	StateInit State = "init"
	// StateClarifying collects answers to clarifying questions.
	StateClarifying State = "clarifying"
	// StatePlanning awaits acceptance or revision of the slide plan.
	StatePlanning State = "planning"
	// StateGenerateStrawman runs the expensive draft generation.
	StateGenerateStrawman State = "generate_strawman"
	// StateStrawmanReview awaits acceptance or revision of the draft.
	StateStrawmanReview State = "strawman_review"
	// StateContentGeneration produces per-slide content.
	StateContentGeneration State = "content_generation"
	// StateDone is terminal; only a new topic restarts the conversation.
	StateDone State = "done"
)

// Valid reports whether s is a known state. Used when loading persisted
// sessions so a corrupt row cannot put the machine in an unnamed node.
func (s State) Valid() bool {
	switch s {
	case StateInit, StateClarifying, StatePlanning, StateGenerateStrawman,
		StateStrawmanReview, StateContentGeneration, StateDone:
		return true
	}
	return false
}

// Terminal reports whether the conversation has finished.
func (s State) Terminal() bool {
	return s == StateDone
}
