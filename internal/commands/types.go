// Package commands implements the slash commands a session can run: the
// built-in session commands and prompt commands loaded from TOML files in
// the session's workspace.
package commands

import (
	"context"
	"time"

	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// Kind tells where a command came from.
type Kind string

const (
	KindBuiltIn Kind = "built-in"
	KindFile    Kind = "file"
)

// Command represents a registered slash command.
type Command struct {
	// Name is the command name without the leading slash (e.g., "help")
	Name string

	// Aliases are alternative names for the command
	Aliases []string

	Description string
	Usage       string

	// AcceptsArgs indicates if the command accepts arguments
	AcceptsArgs bool

	Kind Kind

	// Source is the defining file of a file command
	Source string

	Handler Handler
}

// Info converts the command to its API representation.
func (c *Command) Info() models.CommandInfo {
	return models.CommandInfo{
		Name:        c.Name,
		Aliases:     append([]string(nil), c.Aliases...),
		Description: c.Description,
		Usage:       c.Usage,
		Kind:        string(c.Kind),
	}
}

// Handler processes a command invocation.
type Handler func(ctx context.Context, inv *Invocation) (*Result, error)

// HistoryClearer resets a session's conversation.
type HistoryClearer interface {
	ClearHistory(ctx context.Context, sessionID string) (int, error)
}

// Env is the session a command runs against.
type Env struct {
	Session sessions.Session
	History HistoryClearer
	Now     func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Invocation represents a parsed command invocation.
type Invocation struct {
	// Command is the matched command definition
	Command *Command

	// Name is the actual name/alias used to invoke
	Name string

	// Args is the text after the command name
	Args string

	Env Env
}

// Result is the output of a command execution.
type Result struct {
	// Text is shown to the user, or sent to the model when Action is
	// models.CommandActionSubmitPrompt
	Text string

	Action models.CommandAction

	// Error is set if the command failed
	Error string
}
