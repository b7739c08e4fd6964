package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/deckdraft/deckdraft/internal/domain"
)

// Application action types recognized by the state machine.
const (
	ActionTopic          = "topic"
	ActionAnswer         = "answer"
	ActionAcceptPlan     = "accept_plan"
	ActionRevisePlan     = "revise_plan"
	ActionGenerate       = "generate"
	ActionAcceptStrawman = "accept_strawman"
	ActionReviseStrawman = "revise_strawman"
	ActionNewTopic       = "new_topic"
)

// controlPing is the protocol-level keepalive marker. Its timestamp is
// informational only and never interpreted as application input.
const controlPing = "ping"

// Frame is one parsed inbound message.
type Frame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Kind tags a frame as protocol noise or application traffic.
type Kind int

const (
	// KindControl frames are acked or dropped and never routed further.
	KindControl Kind = iota
	// KindApplication frames feed the session state machine.
	KindApplication
)

var applicationActions = map[string]bool{
	ActionTopic:          true,
	ActionAnswer:         true,
	ActionAcceptPlan:     true,
	ActionRevisePlan:     true,
	ActionGenerate:       true,
	ActionAcceptStrawman: true,
	ActionReviseStrawman: true,
	ActionNewTopic:       true,
}

// Classify parses a raw inbound frame and tags it. Anything that does not
// parse to a recognized shape is a malformed-input error, never silently
// dropped and never treated as control traffic.
func Classify(raw []byte) (Frame, Kind, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, KindControl, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
	}
	switch {
	case f.Type == controlPing:
		return f, KindControl, nil
	case applicationActions[f.Type]:
		return f, KindApplication, nil
	case f.Type == "":
		return Frame{}, KindControl, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return Frame{}, KindControl, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}
}

// Outbound message shapes pushed to the client. At most one push per logical
// transition.

type stateUpdate struct {
	Type   string       `json:"type"` // "state"
	State  domain.State `json:"state"`
	Prompt string       `json:"prompt,omitempty"`
}

type planUpdate struct {
	Type  string            `json:"type"` // "plan"
	State domain.State      `json:"state"`
	Plan  *domain.SlidePlan `json:"plan"`
}

type strawmanUpdate struct {
	Type       string              `json:"type"` // "strawman"
	State      domain.State        `json:"state"`
	ArtifactID string              `json:"artifact_id"`
	Title      string              `json:"title"`
	Slides     []domain.SlideDraft `json:"slides"`
}

type slideUpdate struct {
	Type    string `json:"type"` // "slide"
	Index   int    `json:"index"`
	Heading string `json:"heading"`
	Body    string `json:"body,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
	Error   string `json:"error,omitempty"`
}

type doneUpdate struct {
	Type   string `json:"type"` // "done"
	Slides int    `json:"slides"`
	Failed int    `json:"failed"`
}

type errorUpdate struct {
	Type   string       `json:"type"` // "error"
	Error  string       `json:"error"`
	Detail string       `json:"detail,omitempty"`
	State  domain.State `json:"state,omitempty"`
}

type pongUpdate struct {
	Type string `json:"type"` // "pong"
}

// sessionSnapshot is sent once on connect so a reconnecting client observes
// the preserved state, history, and any cached strawman.
type sessionSnapshot struct {
	Type       string       `json:"type"` // "session"
	State      domain.State `json:"state"`
	Turns      int          `json:"turns"`
	Cycle      int          `json:"cycle"`
	ArtifactID string       `json:"artifact_id,omitempty"`
}
