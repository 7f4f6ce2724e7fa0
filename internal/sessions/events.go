package sessions

import "time"

// EventType identifies a session lifecycle notification.
type EventType string

const (
	EventCreated EventType = "session_created"
	EventDeleted EventType = "session_deleted"
	EventUpdated EventType = "session_updated"
	EventExpired EventType = "sessions_expired"
)

// UpdateType values of EventUpdated notifications.
const (
	UpdateWorkspaceRoot  = "workspaceRoot"
	UpdateHistoryCleared = "history"
)

// Event is a lifecycle notification. Expiry is reported once per sweep with
// every removed id in SessionIDs.
type Event struct {
	Type       EventType
	SessionID  string
	OwnerID    string
	UpdateType string
	SessionIDs []string
	Count      int
	Lifetime   time.Duration
	Time       time.Time
}

// Observer receives lifecycle notifications. It is called without the store
// lock held and must not block.
type Observer func(Event)
