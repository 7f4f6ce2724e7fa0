package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/haasonsaas/turnstream/pkg/models"
)

// FrontendMessage is a collected message in the shape a chat UI renders.
type FrontendMessage struct {
	ID             string                 `json:"id"`
	Type           models.MessageType     `json:"type"`
	Content        string                 `json:"content"`
	Timestamp      int64                  `json:"timestamp"`
	Status         models.MessageStatus   `json:"status"`
	ToolCall       *models.ToolCall       `json:"toolCall,omitempty"`
	ToolExecution  *models.ToolExecution  `json:"toolExecution,omitempty"`
	FileReferences []models.FileReference `json:"fileReferences,omitempty"`
	Revision       int64                  `json:"rev,omitempty"`
}

// Complete reports whether the message has stopped changing.
func (m FrontendMessage) Complete() bool {
	return m.Status == models.StatusGenerated
}

// Adapter turns the snapshots of one turn stream into FrontendMessages.
// Content fragments are kept per message and revision, so replayed or
// reordered incremental snapshots rebuild the same text. An Adapter is not
// safe for concurrent use.
type Adapter struct {
	mode      models.ResponseMode
	fragments map[string]map[int64]string
	// seq numbers fragments from servers that send no revision.
	seq    map[string]int64
	logger *slog.Logger
}

// NewAdapter creates an adapter for snapshots rendered in mode.
func NewAdapter(mode models.ResponseMode) *Adapter {
	if mode == "" {
		mode = models.ModeIncremental
	}
	return &Adapter{
		mode:      mode,
		fragments: make(map[string]map[int64]string),
		seq:       make(map[string]int64),
		logger:    slog.Default().With("component", "client"),
	}
}

// Reset discards accumulated content before the next turn stream.
func (a *Adapter) Reset() {
	a.fragments = make(map[string]map[int64]string)
	a.seq = make(map[string]int64)
}

// Content returns the text accumulated for a content message.
func (a *Adapter) Content(id string) string {
	return a.joined(id)
}

// AdaptResponse converts every valid message of resp. Messages without an
// id, a type or a timestamp are dropped.
func (a *Adapter) AdaptResponse(resp models.StreamResponse) []FrontendMessage {
	out := make([]FrontendMessage, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		if msg.ID == "" || msg.Type == "" || msg.Timestamp == 0 {
			a.logger.Warn("dropping malformed stream message", "id", msg.ID, "type", msg.Type)
			continue
		}
		out = append(out, a.adapt(msg))
	}
	return out
}

// AdaptEvent turns a discrete event that carries user-visible information
// into a synthetic message. Other events report false.
func (a *Adapter) AdaptEvent(ev models.Event) (FrontendMessage, bool) {
	msg := FrontendMessage{
		ID:        fmt.Sprintf("%s-%d", ev.Type, ev.Timestamp),
		Timestamp: ev.Timestamp,
		Status:    models.StatusGenerated,
	}
	switch ev.Type {
	case models.EventFileReferences:
		msg.Type = models.MessageFileReferences
		msg.FileReferences = ev.Files
		msg.Content = referencedFiles(len(ev.Files))
	case models.EventWarning:
		msg.Type = models.MessageWarning
		msg.Content = firstNonEmpty(ev.Message, ev.Error, "Unknown")
	case models.EventError:
		msg.Type = models.MessageError
		msg.Content = firstNonEmpty(ev.Error, ev.Message, "Unknown")
	case models.EventCancelled:
		msg.Type = models.MessageWarning
		msg.Content = firstNonEmpty(ev.Message, "Request cancelled")
	default:
		return FrontendMessage{}, false
	}
	return msg, true
}

// Apply adapts resp and merges the result into existing.
func (a *Adapter) Apply(existing []FrontendMessage, resp models.StreamResponse) []FrontendMessage {
	return Merge(existing, a.AdaptResponse(resp))
}

func (a *Adapter) adapt(msg models.StreamMessage) FrontendMessage {
	out := FrontendMessage{
		ID:        msg.ID,
		Type:      msg.Type,
		Timestamp: msg.Timestamp,
		Status:    msg.Status,
		Revision:  msg.Revision,
	}
	if out.Status == "" {
		out.Status = models.StatusGenerated
	}

	switch msg.Type {
	case models.MessageContent:
		text, _ := msg.Value.(string)
		if a.mode == models.ModeFull {
			a.replace(msg.ID, msg.Revision, text)
		} else {
			a.addFragment(msg.ID, msg.Revision, text)
		}
		out.Content = a.joined(msg.ID)

	case models.MessageToolCallRequest, models.MessageToolExecutionStart:
		var call models.ToolCall
		if err := decodeValue(msg.Value, &call); err == nil {
			out.ToolCall = &call
		}
		verb := "call tool"
		if msg.Type == models.MessageToolExecutionStart {
			verb = "run tool"
		}
		out.Content = fmt.Sprintf("%s: %s", verb, toolName(out.ToolCall))

	case models.MessageToolExecutionComplete:
		exec := decodeExecution(msg.Value)
		out.ToolExecution = exec
		out.ToolCall = &exec.ToolCall
		out.Content = "tool finished: " + exec.ToolCall.Name

	case models.MessageToolExecutionError:
		exec := decodeExecution(msg.Value)
		out.ToolExecution = exec
		out.ToolCall = &exec.ToolCall
		out.Content = "tool error: " + firstNonEmpty(exec.Error, "Unknown error")

	case models.MessageFileReferences:
		out.FileReferences = decodeFiles(msg.Value)
		out.Content = referencedFiles(len(out.FileReferences))

	case models.MessageWarning, models.MessageError:
		out.Content = messageText(msg.Value)

	default:
		out.Content = stringify(msg.Value)
	}
	return out
}

func (a *Adapter) addFragment(id string, rev int64, text string) {
	frags, ok := a.fragments[id]
	if !ok {
		frags = make(map[int64]string)
		a.fragments[id] = frags
	}
	if rev <= 0 {
		a.seq[id]++
		rev = a.seq[id]
	}
	frags[rev] = text
}

// replace keeps the newest cumulative value of a full-mode content message.
func (a *Adapter) replace(id string, rev int64, text string) {
	for have := range a.fragments[id] {
		if have > rev {
			return
		}
	}
	a.fragments[id] = map[int64]string{rev: text}
}

func (a *Adapter) joined(id string) string {
	frags := a.fragments[id]
	if len(frags) == 0 {
		return ""
	}
	revs := make([]int64, 0, len(frags))
	for rev := range frags {
		revs = append(revs, rev)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i] < revs[j] })
	var b strings.Builder
	for _, rev := range revs {
		b.WriteString(frags[rev])
	}
	return b.String()
}

// Merge folds incoming into existing by id and returns the list sorted by
// timestamp. An incoming record never replaces one with a higher revision.
// Merging the same records again yields the same list.
func Merge(existing, incoming []FrontendMessage) []FrontendMessage {
	merged := make([]FrontendMessage, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))
	for _, msg := range existing {
		if i, ok := index[msg.ID]; ok {
			merged[i] = mergeOne(merged[i], msg)
			continue
		}
		index[msg.ID] = len(merged)
		merged = append(merged, msg)
	}
	for _, msg := range incoming {
		if i, ok := index[msg.ID]; ok {
			merged[i] = mergeOne(merged[i], msg)
			continue
		}
		index[msg.ID] = len(merged)
		merged = append(merged, msg)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

func mergeOne(old, next FrontendMessage) FrontendMessage {
	if next.Revision < old.Revision {
		// A late content fragment still extends the accumulated text.
		if next.Type == models.MessageContent && len(next.Content) > len(old.Content) {
			old.Content = next.Content
		}
		return old
	}
	if next.ToolCall == nil {
		next.ToolCall = old.ToolCall
	}
	if next.ToolExecution == nil {
		next.ToolExecution = old.ToolExecution
	}
	if next.FileReferences == nil {
		next.FileReferences = old.FileReferences
	}
	return next
}

// decodeValue converts a message value into out. Values decoded from JSON
// arrive as generic maps; values produced in process already have their
// concrete type.
func decodeValue(value, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func decodeExecution(value any) *models.ToolExecution {
	var exec models.ToolExecution
	if err := decodeValue(value, &exec); err == nil && exec.ToolCall.Name != "" {
		return &exec
	}
	// Older servers send the bare tool call.
	var call models.ToolCall
	_ = decodeValue(value, &call)
	exec.ToolCall = call
	return &exec
}

func decodeFiles(value any) []models.FileReference {
	var files []models.FileReference
	if err := decodeValue(value, &files); err == nil {
		return files
	}
	var wrapped struct {
		Files []models.FileReference `json:"files"`
	}
	if err := decodeValue(value, &wrapped); err == nil {
		return wrapped.Files
	}
	return nil
}

func messageText(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeValue(value, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return "Unknown"
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func toolName(call *models.ToolCall) string {
	if call == nil {
		return "unknown"
	}
	return call.Name
}

func referencedFiles(n int) string {
	if n == 1 {
		return "referenced 1 file"
	}
	return fmt.Sprintf("referenced %d files", n)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
