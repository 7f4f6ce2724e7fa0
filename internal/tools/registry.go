package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry manages available tools with thread-safe registration and lookup.
// It implements engine.ToolExecutor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

var _ engine.ToolExecutor = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds a tool by name, replacing any tool with the same name. The
// tool's schema is compiled once here.
func (r *Registry) Register(tool Tool) error {
	schema, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = registered{tool: tool, schema: schema}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry.tool, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions describes every registered tool for a model request, sorted by
// name.
func (r *Registry) Definitions() []engine.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]engine.ToolDefinition, 0, len(r.tools))
	for _, entry := range r.tools {
		defs = append(defs, engine.ToolDefinition{
			Name:        entry.tool.Name(),
			Description: entry.tool.Description(),
			Schema:      entry.tool.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool. Tool-level failures, including argument
// validation failures, are reported in ToolResponse.Error together with an
// error tool-result part; a returned error means the executor itself failed.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) (engine.ToolResponse, error) {
	if len(call.Name) > MaxToolNameLength {
		return engine.ToolResponse{}, fmt.Errorf("tool name exceeds maximum length of %d characters", MaxToolNameLength)
	}
	if err := ctx.Err(); err != nil {
		return engine.ToolResponse{}, err
	}

	r.mu.RLock()
	entry, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return engine.ToolResponse{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	params, err := json.Marshal(argsOrEmpty(call.Args))
	if err != nil {
		return engine.ToolResponse{}, fmt.Errorf("encode arguments: %w", err)
	}
	if len(params) > MaxToolParamsSize {
		return failure(call, fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)), nil
	}
	if err := validateArgs(entry.schema, params); err != nil {
		return failure(call, fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	result, err := entry.tool.Execute(ctx, params)
	if err != nil {
		return engine.ToolResponse{}, err
	}
	if result == nil {
		result = &Result{}
	}
	resp := engine.ToolResponse{
		Parts: []engine.Part{{ToolResult: &engine.ToolResult{
			CallID:  call.CallID,
			Name:    call.Name,
			Output:  result.Content,
			IsError: result.IsError,
		}}},
	}
	if result.IsError {
		resp.Error = errorMessage(result.Content)
	}
	return resp, nil
}

func failure(call models.ToolCall, message string) engine.ToolResponse {
	res := errorResult(message)
	return engine.ToolResponse{
		Parts: []engine.Part{{ToolResult: &engine.ToolResult{
			CallID:  call.CallID,
			Name:    call.Name,
			Output:  res.Content,
			IsError: true,
		}}},
		Error: message,
	}
}

// errorMessage unwraps the {"error": "..."} envelope used by error results.
func errorMessage(content string) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return content
}

func argsOrEmpty(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
