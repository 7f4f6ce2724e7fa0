package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/turnstream/internal/sessions"
)

// RegisterBuiltins registers the built-in session commands.
func RegisterBuiltins(r *Registry) {
	mustRegister := func(cmd *Command) {
		cmd.Kind = KindBuiltIn
		if err := r.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register builtin command %q: %v", cmd.Name, err))
		}
	}

	mustRegister(&Command{
		Name:        "help",
		Aliases:     []string{"?"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		AcceptsArgs: true,
		Handler:     helpHandler(r),
	})

	mustRegister(&Command{
		Name:        "clear",
		Aliases:     []string{"reset"},
		Description: "Clear the conversation history and start over",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			if inv.Env.History == nil {
				return &Result{Error: "History cannot be cleared in this context"}, nil
			}
			removed, err := inv.Env.History.ClearHistory(ctx, inv.Env.Session.ID)
			if errors.Is(err, sessions.ErrBusy) {
				return &Result{Error: "A response is still streaming. Cancel it before clearing."}, nil
			}
			if err != nil {
				return nil, err
			}
			return &Result{Text: fmt.Sprintf("Cleared %d message(s). The conversation starts over.", removed)}, nil
		},
	})

	mustRegister(&Command{
		Name:        "stats",
		Aliases:     []string{"status"},
		Description: "Show session statistics",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			sess := inv.Env.Session
			stats := sess.Stats(inv.Env.now())
			var b strings.Builder
			fmt.Fprintf(&b, "Session: %s\n", stats.ID)
			fmt.Fprintf(&b, "User: %s\n", stats.UserID)
			fmt.Fprintf(&b, "Workspace: %s\n", stats.WorkspaceRoot)
			if stats.Model != "" {
				fmt.Fprintf(&b, "Model: %s\n", stats.Model)
			}
			fmt.Fprintf(&b, "Messages: %d\n", stats.MessageCount)
			fmt.Fprintf(&b, "Duration: %s", (time.Duration(stats.Duration) * time.Millisecond).Round(time.Second))
			return &Result{Text: b.String()}, nil
		},
	})

	mustRegister(&Command{
		Name:        "tools",
		Description: "List the tools available to the model",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			handle := inv.Env.Session.Handle
			if handle == nil || handle.Tools == nil {
				return &Result{Text: "No tools are available."}, nil
			}
			defs := handle.Tools.Definitions()
			if len(defs) == 0 {
				return &Result{Text: "No tools are available."}, nil
			}
			var b strings.Builder
			b.WriteString("Available tools:")
			for _, def := range defs {
				fmt.Fprintf(&b, "\n  %s - %s", def.Name, def.Description)
			}
			return &Result{Text: b.String()}, nil
		},
	})

	mustRegister(&Command{
		Name:        "memory",
		Aliases:     []string{"instructions"},
		Description: "Show the project instructions loaded from the workspace",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			handle := inv.Env.Session.Handle
			if handle == nil || handle.Instructions == "" {
				return &Result{Text: "No project instructions are loaded."}, nil
			}
			return &Result{Text: handle.Instructions}, nil
		},
	})
}

func helpHandler(r *Registry) Handler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if name := strings.TrimSpace(inv.Args); name != "" {
			cmd, ok := r.Get(name)
			if !ok {
				return &Result{Error: fmt.Sprintf("Command not found: /%s", strings.TrimPrefix(name, "/"))}, nil
			}
			return &Result{Text: describe(cmd)}, nil
		}

		var b strings.Builder
		b.WriteString("Available commands:")
		for _, cmd := range r.List() {
			fmt.Fprintf(&b, "\n  /%s", cmd.Name)
			if cmd.Description != "" {
				fmt.Fprintf(&b, " - %s", cmd.Description)
			}
		}
		return &Result{Text: b.String()}, nil
	}
}

func describe(cmd *Command) string {
	var b strings.Builder
	fmt.Fprintf(&b, "/%s", cmd.Name)
	if cmd.Description != "" {
		fmt.Fprintf(&b, " - %s", cmd.Description)
	}
	usage := cmd.Usage
	if usage == "" {
		usage = "/" + cmd.Name
		if cmd.AcceptsArgs {
			usage += " [args]"
		}
	}
	fmt.Fprintf(&b, "\nUsage: %s", usage)
	if len(cmd.Aliases) > 0 {
		fmt.Fprintf(&b, "\nAliases: /%s", strings.Join(cmd.Aliases, ", /"))
	}
	if cmd.Kind == KindFile && cmd.Source != "" {
		fmt.Fprintf(&b, "\nDefined in: %s", cmd.Source)
	}
	return b.String()
}
