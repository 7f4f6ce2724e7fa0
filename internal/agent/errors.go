package agent

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/turnstream/internal/sessions"
)

var (
	// ErrSessionNotFound is returned when a request names a session that
	// does not exist. Nothing has been streamed when it is returned.
	ErrSessionNotFound = sessions.ErrNotFound

	// ErrEmptyMessage is returned for a request without message text.
	ErrEmptyMessage = errors.New("message is required")

	// ErrTurnStarted is returned when Run is called twice on one turn.
	ErrTurnStarted = errors.New("turn already started")
)

// LoopPhase is the state of a turn stream.
type LoopPhase string

const (
	// PhaseResolve resolves or creates the session.
	PhaseResolve LoopPhase = "resolving_session"

	// PhaseStream consumes one model stream.
	PhaseStream LoopPhase = "streaming_model"

	// PhaseExecuteTools runs the tool calls the model requested.
	PhaseExecuteTools LoopPhase = "executing_tools"

	// PhaseFinalize commits history and emits the final snapshot.
	PhaseFinalize LoopPhase = "finalizing"

	// PhaseClosed is the terminal state.
	PhaseClosed LoopPhase = "closed"
)

// LoopError reports a turn stream failure with the phase and model turn
// it happened in.
type LoopError struct {
	// Phase is the loop phase where the error occurred
	Phase LoopPhase

	// Turn is the model turn (1-based), or 0 before the first turn
	Turn int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("turn stream failed at %s (turn %d)", e.Phase, e.Turn)
	}
	return fmt.Sprintf("turn stream failed at %s (turn %d): %v", e.Phase, e.Turn, e.Cause)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error {
	return e.Cause
}
