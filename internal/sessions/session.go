package sessions

import (
	"time"

	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// Session is a read-only view of one conversation context, detached from
// the store.
type Session struct {
	ID            string
	OwnerID       string
	WorkspaceRoot string
	Model         string
	CreatedAt     time.Time
	LastActivity  time.Time
	MessageCount  int
	Metadata      map[string]any

	// Handle is the engine binding at the time of the read.
	Handle *engine.Handle
}

// Stats converts the session to its API representation.
func (s Session) Stats(now time.Time) models.SessionStats {
	return models.SessionStats{
		ID:            s.ID,
		UserID:        s.OwnerID,
		WorkspaceRoot: s.WorkspaceRoot,
		Model:         s.Model,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
		Duration:      now.Sub(s.CreatedAt).Milliseconds(),
		MessageCount:  s.MessageCount,
		Metadata:      deepCloneMap(s.Metadata),
	}
}

// Summary converts the session to its list representation.
func (s Session) Summary() models.SessionSummary {
	return models.SessionSummary{
		ID:           s.ID,
		UserID:       s.OwnerID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		Metadata:     deepCloneMap(s.Metadata),
	}
}

// record is the store-owned mutable state of a session.
type record struct {
	id           string
	ownerID      string
	createdAt    time.Time
	lastActivity time.Time
	metadata     map[string]any
	handle       *engine.Handle
	history      []models.HistoryItem
}

func (r *record) view() Session {
	s := Session{
		ID:           r.id,
		OwnerID:      r.ownerID,
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
		MessageCount: len(r.history),
		Metadata:     deepCloneMap(r.metadata),
		Handle:       r.handle,
	}
	if r.handle != nil {
		s.WorkspaceRoot = r.handle.WorkspaceRoot
		s.Model = r.handle.Model
	}
	return s
}

// deepCloneMap creates a deep copy of a map[string]any to prevent shared references.
func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

// deepCloneValue recursively clones a value, handling nested maps and slices.
func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = deepCloneValue(item)
		}
		return cloned
	case []string:
		cloned := make([]string, len(val))
		copy(cloned, val)
		return cloned
	default:
		return v
	}
}

func cloneHistory(items []models.HistoryItem) []models.HistoryItem {
	out := make([]models.HistoryItem, len(items))
	for i, item := range items {
		out[i] = item
		out[i].Metadata = deepCloneMap(item.Metadata)
	}
	return out
}
