package models

// Role identifies the author of a history item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// HistoryItem is one committed entry of a session's conversation history.
// Items are append-only and never mutated once stored.
type HistoryItem struct {
	ID        int64          `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp int64          `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
