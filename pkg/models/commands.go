package models

// CommandAction tells the client what to do with a command's output.
type CommandAction string

const (
	// CommandActionMessage displays the output.
	CommandActionMessage CommandAction = "message"

	// CommandActionSubmitPrompt sends the output to the model as a chat
	// message.
	CommandActionSubmitPrompt CommandAction = "submit_prompt"
)

// CommandInfo describes one slash command available to a session.
type CommandInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
	Usage       string   `json:"usage,omitempty"`
	Kind        string   `json:"kind"`
}

// CommandListRequest lists the commands available to a session.
type CommandListRequest struct {
	SessionID string `json:"sessionId"`
}

// CommandListResponse lists commands sorted by name.
type CommandListResponse struct {
	Success  bool          `json:"success"`
	Commands []CommandInfo `json:"commands"`
	Total    int           `json:"total"`
}

// CommandExecuteRequest runs one slash command in a session.
type CommandExecuteRequest struct {
	SessionID string `json:"sessionId"`
	Command   string `json:"command"`
	Args      string `json:"args,omitempty"`
}

// CommandExecuteResponse is the outcome of a command. Error is set when
// Success is false.
type CommandExecuteResponse struct {
	Success bool          `json:"success"`
	Command string        `json:"command,omitempty"`
	Output  string        `json:"output,omitempty"`
	Action  CommandAction `json:"action,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// CommandHelpRequest asks for help on one command, or all when Command is
// empty.
type CommandHelpRequest struct {
	SessionID string `json:"sessionId"`
	Command   string `json:"command,omitempty"`
}

// CommandHelpResponse carries either one command or the full list.
type CommandHelpResponse struct {
	Success  bool          `json:"success"`
	Command  *CommandInfo  `json:"command,omitempty"`
	Commands []CommandInfo `json:"commands,omitempty"`
	Error    string        `json:"error,omitempty"`
}
