package sessions

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for operations on an unknown session id.
var ErrNotFound = errors.New("session not found")

// ErrBusy is returned when an operation needs the session idle but a turn
// is in flight.
var ErrBusy = errors.New("session has a turn in progress")

// BindError reports that an engine handle could not be constructed for a
// session. No session state is changed when it is returned.
type BindError struct {
	SessionID     string
	WorkspaceRoot string
	Cause         error
}

func (e *BindError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("bind session %s to %s: %v", e.SessionID, e.WorkspaceRoot, e.Cause)
	}
	return fmt.Sprintf("bind session to %s: %v", e.WorkspaceRoot, e.Cause)
}

func (e *BindError) Unwrap() error {
	return e.Cause
}
