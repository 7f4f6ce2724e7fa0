package client

import (
	"context"

	"github.com/haasonsaas/turnstream/pkg/models"
)

// ChatResult is the outcome of one streamed chat turn.
type ChatResult struct {
	RequestID string
	SessionID string
	MessageID string
	Messages  []FrontendMessage
	Cancelled bool

	// Error is the message of a stream-level error event.
	Error string
}

// Chat streams req and folds every frame into a message list. onUpdate, if
// set, is called with the list after each change; onConnected receives the
// request id as soon as the server assigns it so the caller can cancel.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest, onConnected func(requestID string), onUpdate func([]FrontendMessage)) (*ChatResult, error) {
	adapter := NewAdapter(models.ParseResponseMode(string(req.ResponseMode)))
	result := &ChatResult{SessionID: req.SessionID}

	err := c.Stream(ctx, req, func(f Frame) error {
		changed := false
		switch {
		case f.Response != nil:
			result.SessionID = f.Response.SessionID
			result.MessageID = f.Response.MessageID
			result.Messages = adapter.Apply(result.Messages, *f.Response)
			changed = true

		case f.Event != nil:
			ev := *f.Event
			switch ev.Type {
			case models.EventConnected:
				result.RequestID = ev.RequestID
				result.SessionID = ev.SessionID
				result.MessageID = ev.MessageID
				if onConnected != nil {
					onConnected(ev.RequestID)
				}
			case models.EventCancelled:
				result.Cancelled = true
			case models.EventError:
				result.Error = ev.Error
			}
			// file_references arrives as a collected message too.
			if ev.Type != models.EventFileReferences {
				if msg, ok := adapter.AdaptEvent(ev); ok {
					result.Messages = Merge(result.Messages, []FrontendMessage{msg})
					changed = true
				}
			}
		}
		if changed && onUpdate != nil {
			onUpdate(result.Messages)
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}
