// Package tools implements the workspace tool executor bound to each session.
package tools

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrToolNotFound is returned when a call names a tool that is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Tool is a callable capability exposed to the model.
type Tool interface {
	// Name returns the tool name for function calling.
	Name() string

	// Description returns a natural language description of what the tool does.
	Description() string

	// Schema returns the JSON Schema of the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool with arguments that already passed schema
	// validation.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is the output of a tool execution. IsError marks a tool-level
// failure whose Content describes the problem.
type Result struct {
	Content string
	IsError bool
}

func errorResult(message string) *Result {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &Result{Content: message, IsError: true}
	}
	return &Result{Content: string(payload), IsError: true}
}

func jsonResult(v any) *Result {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encode result: " + err.Error())
	}
	return &Result{Content: string(payload)}
}
