package conversation

import "errors"

// Sentinel errors for the gateway's error taxonomy. Matched with errors.Is;
// wrap with %w to attach detail.
var (
	// ErrDuplicateSession rejects a second connection attempt for a live
	// session id. Fatal only to the rejected connection.
	ErrDuplicateSession = errors.New("session already active elsewhere")

	// ErrMalformedFrame marks an inbound message that does not parse to a
	// recognized shape. Answered to the sender; session state unchanged.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrInvalidTransition marks a recognized action that is not valid for
	// the session's current state. Answered; state unchanged.
	ErrInvalidTransition = errors.New("invalid action for current state")

	// ErrGenerationFailed marks an upstream generation failure. Retryable:
	// the session stays in the generating state awaiting a fresh trigger.
	ErrGenerationFailed = errors.New("strawman generation failed")
)
