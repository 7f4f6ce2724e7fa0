// Package models provides the wire and domain types shared by the turnstream
// server and its clients.
package models

import (
	"strings"
	"time"
)

// MessageStatus is the lifecycle status of a single StreamMessage.
type MessageStatus string

const (
	StatusGenerating MessageStatus = "generating"
	StatusGenerated  MessageStatus = "generated"
)

// StreamStatus is the aggregate status of a StreamResponse snapshot.
type StreamStatus string

const (
	StreamGenerating StreamStatus = "generating"
	StreamFinished   StreamStatus = "finished"
)

// MessageType identifies the kind of a StreamMessage. Values outside the
// constants below are allowed and treated as opaque passthrough types.
type MessageType string

const (
	MessageContent               MessageType = "content"
	MessageToolCallRequest       MessageType = "tool_call_request"
	MessageToolExecutionStart    MessageType = "tool_execution_start"
	MessageToolExecutionComplete MessageType = "tool_execution_complete"
	MessageToolExecutionError    MessageType = "tool_execution_error"
	MessageFileReferences        MessageType = "file_references"
	MessageWarning               MessageType = "warning"
	MessageError                 MessageType = "error"
)

// ResponseMode selects how snapshots are rendered on the wire.
type ResponseMode string

const (
	// ModeIncremental sends only messages created or mutated since the
	// previous snapshot, with content values carrying just the new text.
	ModeIncremental ResponseMode = "incremental"

	// ModeFull sends every message on each snapshot with cumulative content.
	ModeFull ResponseMode = "full"
)

// ParseResponseMode returns the mode named by s. Unknown or empty values
// fall back to ModeIncremental.
func ParseResponseMode(s string) ResponseMode {
	switch ResponseMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull
	default:
		return ModeIncremental
	}
}

// StreamMessage is the addressable unit of collected output.
type StreamMessage struct {
	ID        string        `json:"id"`
	Type      MessageType   `json:"type"`
	Value     any           `json:"value"`
	Timestamp int64         `json:"timestamp"`
	Status    MessageStatus `json:"status"`

	// Revision increases every time the message is mutated. Clients use it
	// to discard replayed or stale copies of the same message.
	Revision int64 `json:"rev,omitempty"`
}

// StreamResponse is one snapshot frame sent to the client.
type StreamResponse struct {
	SessionID string          `json:"sessionId"`
	MessageID string          `json:"messageId"`
	MsgStatus StreamStatus    `json:"msgStatus"`
	Messages  []StreamMessage `json:"messages"`
}

// Finished reports whether the snapshot marks the end of the turn stream.
func (r StreamResponse) Finished() bool {
	return r.MsgStatus == StreamFinished
}

// NowMillis returns the current time as unix milliseconds, the timestamp
// unit used on the wire.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
