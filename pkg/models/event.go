package models

// EventType identifies a discrete (non-snapshot) frame on the stream.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventFileReferences EventType = "file_references"
	EventWarning        EventType = "warning"
	EventError          EventType = "error"
	EventCancelled      EventType = "cancelled"
	EventStreamEnd      EventType = "stream_end"
)

// Event is a discrete frame. Snapshots use StreamResponse instead; the
// remaining frame types are kept for clients that predate snapshots. Engine
// events without a collector mapping are forwarded with their own Type and
// the raw Value.
type Event struct {
	Type      EventType       `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Files     []FileReference `json:"files,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	Value     any             `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent returns an event of the given type stamped with the current time.
func NewEvent(typ EventType) Event {
	return Event{Type: typ, Timestamp: NowMillis()}
}
