package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildChatCmd creates the "chat" command. Without arguments it reads one
// message per line from stdin and keeps the session across lines.
func buildChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message to a running server and stream the reply",
		Example: `  # One-shot message in a new session
  turnstream chat "summarize @README.md"

  # Continue a session interactively; Ctrl-C cancels the current turn
  turnstream chat --session 3f2a...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, resolveServerURL(opts.server), opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "", "Server base URL (default: $TURNSTREAM_SERVER or http://localhost:3001)")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Session id to continue")
	cmd.Flags().StringVarP(&opts.workspace, "workspace", "w", "", "Workspace root for a new session")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model override for a new session")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Response mode: incremental or full")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the collected messages as JSON instead of streaming text")
	return cmd
}

// buildHistoryCmd creates the "history" command.
func buildHistoryCmd() *cobra.Command {
	var (
		server string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a page of a session's conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, resolveServerURL(server), args[0], limit, offset)
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "Server base URL")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max number of items to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of items to skip")
	return cmd
}

// buildSessionsCmd creates the "sessions" command group.
func buildSessionsCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage sessions on a running server",
	}
	cmd.PersistentFlags().StringVarP(&server, "server", "s", "", "Server base URL")

	var userID string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, resolveServerURL(server), userID)
		},
	}
	listCmd.Flags().StringVar(&userID, "user", "", "User id (default: the server's default owner)")

	var createOpts createSessionOptions
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsCreate(cmd, resolveServerURL(server), createOpts)
		},
	}
	createCmd.Flags().StringVar(&createOpts.userID, "user", "", "Owning user id")
	createCmd.Flags().StringVarP(&createOpts.workspace, "workspace", "w", "", "Workspace root")
	createCmd.Flags().StringVarP(&createOpts.model, "model", "m", "", "Model override")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd, resolveServerURL(server), args[0])
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and release its engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(cmd, resolveServerURL(server), args[0])
		},
	}

	rebindCmd := &cobra.Command{
		Use:   "rebind <session-id> <workspace-root>",
		Short: "Move a session to another workspace root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsRebind(cmd, resolveServerURL(server), args[0], args[1])
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show server session and request counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsStats(cmd, resolveServerURL(server))
		},
	}

	cmd.AddCommand(listCmd, createCmd, showCmd, deleteCmd, rebindCmd, statsCmd)
	return cmd
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "turnstream %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
			return nil
		},
	}
}
