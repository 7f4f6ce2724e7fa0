package models

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	CallID      string         `json:"callId"`
	Name        string         `json:"name"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description,omitempty"`
}

// ToolExecution is the value carried by tool_execution_complete and
// tool_execution_error messages.
type ToolExecution struct {
	ToolCall ToolCall `json:"toolCall"`
	Result   any      `json:"result,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ToolResultPayload is the structured result reported to clients for a
// completed tool call.
type ToolResultPayload struct {
	CallID string `json:"callId"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FileReference describes a file pulled into a prompt by an @path reference.
type FileReference struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}
