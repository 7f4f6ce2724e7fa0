// Package stream assembles per-turn output into snapshot frames and carries
// them over server-sent events.
package stream

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/turnstream/pkg/models"
)

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

type entry struct {
	msg models.StreamMessage

	// text is the cumulative content of a content message.
	text strings.Builder
	// pending is the content appended since the message was last emitted.
	pending strings.Builder
	dirty   bool
}

// renderFunc produces the wire copy of one message and reports whether the
// message belongs in the next snapshot.
type renderFunc func(e *entry) (models.StreamMessage, bool)

// Collector accumulates the ordered messages of one turn stream. Message ids
// are "<prefix>-<index>" and stable for the life of the collector. It is safe
// for concurrent use.
type Collector struct {
	mu      sync.Mutex
	prefix  string
	mode    models.ResponseMode
	entries []*entry
	open    *entry
	render  renderFunc
	now     func() time.Time
}

// NewCollector creates a collector whose message ids start with prefix.
func NewCollector(prefix string, mode models.ResponseMode, opts ...CollectorOption) *Collector {
	c := &Collector{
		prefix: prefix,
		mode:   mode,
		now:    time.Now,
	}
	if mode == models.ModeFull {
		c.render = renderFull
	} else {
		c.mode = models.ModeIncremental
		c.render = renderIncremental
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the wire policy of the collector.
func (c *Collector) Mode() models.ResponseMode {
	return c.mode
}

// AppendContent adds a text fragment to the open content message, creating
// one when none is open. When isComplete is set the message is marked
// generated and closed, so the next fragment starts a new message.
func (c *Collector) AppendContent(fragment string, isComplete bool) models.StreamMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.open
	if e == nil {
		e = c.push(models.MessageContent, nil, models.StatusGenerating)
		c.open = e
	}
	e.text.WriteString(fragment)
	e.pending.WriteString(fragment)
	if isComplete {
		e.msg.Status = models.StatusGenerated
		c.open = nil
	}
	c.touch(e)
	return c.snapshotOf(e)
}

// CompleteContentMessage marks the open content message generated and
// closes it. It is a no-op when no content message is open.
func (c *Collector) CompleteContentMessage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeOpen()
}

// AddMessage appends a non-content message, closing any open content
// message first.
func (c *Collector) AddMessage(typ models.MessageType, value any, status models.MessageStatus) models.StreamMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeOpen()
	e := c.push(typ, value, status)
	return c.snapshotOf(e)
}

// UpdateLastMessageStatus sets the status of the most recent message. It is
// a no-op on an empty collector.
func (c *Collector) UpdateLastMessageStatus(status models.MessageStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		return
	}
	e := c.entries[len(c.entries)-1]
	e.msg.Status = status
	if status == models.StatusGenerated && e == c.open {
		c.open = nil
	}
	c.touch(e)
}

// Seal closes the open content message and marks every remaining
// generating message generated.
func (c *Collector) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeOpen()
	for _, e := range c.entries {
		if e.msg.Status != models.StatusGenerated {
			e.msg.Status = models.StatusGenerated
			c.touch(e)
		}
	}
}

// IsAllComplete reports whether every message is generated. An empty
// collector is complete.
func (c *Collector) IsAllComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allComplete()
}

// Len returns the number of messages collected.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Messages returns copies of every message with cumulative content.
func (c *Collector) Messages() []models.StreamMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.StreamMessage, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, c.snapshotOf(e))
	}
	return out
}

// ContentText returns the concatenated text of every content message.
func (c *Collector) ContentText() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for _, e := range c.entries {
		if e.msg.Type == models.MessageContent {
			b.WriteString(e.text.String())
		}
	}
	return b.String()
}

// BuildResponse renders the next snapshot. In full mode every message is
// included with cumulative content. In incremental mode only messages
// appended or mutated since the previous call are included, and content
// values carry the text appended since the message was last emitted.
func (c *Collector) BuildResponse(sessionID, messageID string) models.StreamResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]models.StreamMessage, 0, len(c.entries))
	for _, e := range c.entries {
		if msg, ok := c.render(e); ok {
			messages = append(messages, msg)
		}
		e.dirty = false
		e.pending.Reset()
	}

	status := models.StreamGenerating
	if c.allComplete() {
		status = models.StreamFinished
	}
	return models.StreamResponse{
		SessionID: sessionID,
		MessageID: messageID,
		MsgStatus: status,
		Messages:  messages,
	}
}

func renderFull(e *entry) (models.StreamMessage, bool) {
	msg := e.msg
	if msg.Type == models.MessageContent {
		msg.Value = e.text.String()
	}
	return msg, true
}

func renderIncremental(e *entry) (models.StreamMessage, bool) {
	if !e.dirty {
		return models.StreamMessage{}, false
	}
	msg := e.msg
	if msg.Type == models.MessageContent {
		msg.Value = e.pending.String()
	}
	return msg, true
}

func (c *Collector) push(typ models.MessageType, value any, status models.MessageStatus) *entry {
	e := &entry{
		msg: models.StreamMessage{
			ID:        c.prefix + "-" + strconv.Itoa(len(c.entries)),
			Type:      typ,
			Value:     value,
			Timestamp: c.now().UnixMilli(),
			Status:    status,
			Revision:  1,
		},
		dirty: true,
	}
	c.entries = append(c.entries, e)
	return e
}

func (c *Collector) touch(e *entry) {
	e.msg.Revision++
	e.msg.Timestamp = c.now().UnixMilli()
	e.dirty = true
}

func (c *Collector) closeOpen() {
	if c.open == nil {
		return
	}
	c.open.msg.Status = models.StatusGenerated
	c.touch(c.open)
	c.open = nil
}

func (c *Collector) allComplete() bool {
	for _, e := range c.entries {
		if e.msg.Status != models.StatusGenerated {
			return false
		}
	}
	return true
}

func (c *Collector) snapshotOf(e *entry) models.StreamMessage {
	msg := e.msg
	if msg.Type == models.MessageContent {
		msg.Value = e.text.String()
	}
	return msg
}
