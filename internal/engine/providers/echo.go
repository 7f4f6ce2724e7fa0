package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// EchoConfig configures the local echo engine.
type EchoConfig struct {
	// ChunkDelay is the pause between streamed fragments.
	ChunkDelay time.Duration
}

// EchoEngine is a deterministic engine that needs no network. It streams
// the input text back word by word. Input of the form
// "/tool <name> <json-args>" requests that tool instead, and "/fail <text>"
// ends the stream with an error. Tool results are summarized in the reply.
type EchoEngine struct {
	cfg EchoConfig

	mu    sync.Mutex
	calls int
}

// NewEchoEngine creates an echo engine.
func NewEchoEngine(cfg EchoConfig) *EchoEngine {
	return &EchoEngine{cfg: cfg}
}

// Stream replies to parts.
func (e *EchoEngine) Stream(ctx context.Context, parts []engine.Part, _ string) (<-chan engine.Event, error) {
	text, results := splitParts(parts)
	planned, err := e.plan(text, results)
	if err != nil {
		return nil, err
	}

	events := make(chan engine.Event)
	go func() {
		defer close(events)
		for i, ev := range planned {
			if i > 0 && e.cfg.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.cfg.ChunkDelay):
				}
			}
			if !emit(ctx, events, ev) {
				return
			}
		}
	}()
	return events, nil
}

func (e *EchoEngine) plan(text string, results []engine.ToolResult) ([]engine.Event, error) {
	var out []engine.Event

	for _, r := range results {
		status := "returned"
		if r.IsError {
			status = "failed"
		}
		out = append(out, engine.ContentEvent(fmt.Sprintf("Tool %s %s:\n%s\n", r.Name, status, r.Output)))
	}

	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "/tool "):
		call, err := e.parseToolCommand(strings.TrimPrefix(trimmed, "/tool "))
		if err != nil {
			return nil, err
		}
		out = append(out,
			engine.ContentEvent(fmt.Sprintf("Calling %s.", call.Name)),
			engine.ToolCallEvent(call),
			engine.FinishedEvent("tool_calls"),
		)
		return out, nil

	case strings.HasPrefix(trimmed, "/fail"):
		msg := strings.TrimSpace(strings.TrimPrefix(trimmed, "/fail"))
		if msg == "" {
			msg = "echo failure"
		}
		out = append(out, engine.ContentEvent("Failing."), engine.ErrorEvent(errors.New(msg)))
		return out, nil

	case trimmed != "":
		for i, word := range strings.Fields(trimmed) {
			if i > 0 {
				word = " " + word
			}
			out = append(out, engine.ContentEvent(word))
		}
	}
	out = append(out, engine.FinishedEvent("stop"))
	return out, nil
}

func (e *EchoEngine) parseToolCommand(rest string) (models.ToolCall, error) {
	name, rawArgs, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if name == "" {
		return models.ToolCall{}, errors.New("echo: /tool requires a tool name")
	}
	args := map[string]any{}
	if rawArgs = strings.TrimSpace(rawArgs); rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return models.ToolCall{}, fmt.Errorf("echo: invalid tool arguments: %w", err)
		}
	}

	e.mu.Lock()
	e.calls++
	id := fmt.Sprintf("call_%d", e.calls)
	e.mu.Unlock()

	return models.ToolCall{CallID: id, Name: name, Args: args}, nil
}
