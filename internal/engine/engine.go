// Package engine defines the collaborators a turn stream drives: the model
// engine that produces generation events and the tool executor that runs the
// tools those events request.
package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/haasonsaas/turnstream/pkg/models"
)

// EventKind is the normalized kind of a generation event.
type EventKind string

const (
	// KindContent carries a text fragment in Text.
	KindContent EventKind = "content"

	// KindToolCallRequest carries a tool invocation in ToolCall.
	KindToolCallRequest EventKind = "tool_call_request"

	// KindFinished marks the end of the model's output for this turn.
	KindFinished EventKind = "finished"

	// KindError carries a stream failure in Err. It is always the last event.
	KindError EventKind = "error"

	// KindOther is an engine event with no collector mapping. Type and Raw
	// are forwarded to the client unchanged.
	KindOther EventKind = "other"
)

// Event is one element of an engine stream. Exactly the fields that belong
// to Kind are set.
type Event struct {
	Kind         EventKind
	Text         string
	ToolCall     *models.ToolCall
	FinishReason string
	Err          error
	Type         string
	Raw          any
}

// ContentEvent returns a content event.
func ContentEvent(text string) Event {
	return Event{Kind: KindContent, Text: text}
}

// ToolCallEvent returns a tool call request event.
func ToolCallEvent(call models.ToolCall) Event {
	return Event{Kind: KindToolCallRequest, ToolCall: &call}
}

// FinishedEvent returns a finished event.
func FinishedEvent(reason string) Event {
	return Event{Kind: KindFinished, FinishReason: reason}
}

// ErrorEvent returns an error event.
func ErrorEvent(err error) Event {
	return Event{Kind: KindError, Err: err}
}

// Part is one element of a model input: user text or a tool result.
type Part struct {
	Text       string      `json:"text,omitempty"`
	ToolResult *ToolResult `json:"toolResult,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ToolResult is the output of one tool call fed back to the model.
type ToolResult struct {
	CallID  string `json:"callId"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"isError,omitempty"`
}

// Engine produces generation events for a list of input parts. It is bound
// to one workspace and model and owns the conversation transcript, so each
// call continues the previous one.
type Engine interface {
	// Stream starts a model turn. The returned channel is closed when the
	// turn ends; a failure after the stream started is delivered as a final
	// KindError event. Cancelling ctx stops the stream.
	Stream(ctx context.Context, parts []Part, turnLabel string) (<-chan Event, error)
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolResponse is the outcome of one tool call. Error is set when the tool
// ran and reported a failure.
type ToolResponse struct {
	Parts []Part
	Error string
}

// ToolExecutor runs tool calls requested by the model.
type ToolExecutor interface {
	// Execute runs one tool call. A non-nil error means the executor could
	// not run the tool at all.
	Execute(ctx context.Context, call models.ToolCall) (ToolResponse, error)

	// Definitions lists the tools offered to the model.
	Definitions() []ToolDefinition
}

// Handle is the engine binding a session holds: one engine and one tool
// executor scoped to a workspace root and model.
type Handle struct {
	Engine        Engine
	Tools         ToolExecutor
	WorkspaceRoot string
	Model         string

	// Instructions is the project instruction text added to the engine's
	// system prompt, and InstructionFiles the files it came from.
	Instructions     string
	InstructionFiles []string

	closeFn func() error
}

// NewHandle builds a handle. closeFn may be nil.
func NewHandle(eng Engine, tools ToolExecutor, workspaceRoot, model string, closeFn func() error) *Handle {
	return &Handle{
		Engine:        eng,
		Tools:         tools,
		WorkspaceRoot: workspaceRoot,
		Model:         model,
		closeFn:       closeFn,
	}
}

// Close releases the engine binding.
func (h *Handle) Close() error {
	if h == nil || h.closeFn == nil {
		return nil
	}
	return h.closeFn()
}

// BindOptions selects what a new handle is bound to.
type BindOptions struct {
	SessionID     string
	WorkspaceRoot string
	Model         string
}

// Factory constructs engine handles.
type Factory interface {
	NewHandle(ctx context.Context, opts BindOptions) (*Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, opts BindOptions) (*Handle, error)

// NewHandle calls f.
func (f FactoryFunc) NewHandle(ctx context.Context, opts BindOptions) (*Handle, error) {
	return f(ctx, opts)
}

// ErrNoEngine is returned when a handle has no engine attached.
var ErrNoEngine = errors.New("no engine bound")
