package main

import (
	"github.com/spf13/cobra"
)

// buildFilesCmd creates the "files" command group. Every call goes through
// the session's workspace tools, so the server's sandbox applies.
func buildFilesCmd() *cobra.Command {
	var (
		server    string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Read and search a session's workspace",
	}
	cmd.PersistentFlags().StringVarP(&server, "server", "s", "", "Server base URL")
	cmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session id (required)")
	_ = cmd.MarkPersistentFlagRequired("session")

	var (
		offset int64
		limit  int
	)
	readCmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Print a file from the workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilesRead(cmd, resolveServerURL(server), sessionID, args[0], offset, limit)
		},
	}
	readCmd.Flags().Int64Var(&offset, "offset", 0, "Byte offset to start reading from")
	readCmd.Flags().IntVar(&limit, "limit", 0, "Maximum bytes to read")

	var showHidden bool
	lsCmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a workspace directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runFilesList(cmd, resolveServerURL(server), sessionID, path, showHidden)
		},
	}
	lsCmd.Flags().BoolVarP(&showHidden, "all", "a", false, "Include hidden entries")

	var (
		include    string
		maxMatches int
	)
	searchCmd := &cobra.Command{
		Use:   "search <pattern> [path]",
		Short: "Search file contents with a regular expression",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			return runFilesSearch(cmd, resolveServerURL(server), sessionID, args[0], path, include, maxMatches)
		},
	}
	searchCmd.Flags().StringVar(&include, "include", "", "Only search files whose name matches this glob")
	searchCmd.Flags().IntVar(&maxMatches, "max", 0, "Maximum matches to return")

	cmd.AddCommand(readCmd, lsCmd, searchCmd)
	return cmd
}

// buildCommandsCmd creates the "commands" command group for slash commands.
func buildCommandsCmd() *cobra.Command {
	var (
		server    string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List and run a session's slash commands",
	}
	cmd.PersistentFlags().StringVarP(&server, "server", "s", "", "Server base URL")
	cmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session id (required)")
	_ = cmd.MarkPersistentFlagRequired("session")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List built-in and workspace commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommandsList(cmd, resolveServerURL(server), sessionID)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Run a command and print its output",
		Example: `  turnstream commands run --session 3f2a... stats
  turnstream commands run --session 3f2a... review main.go`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommandsRun(cmd, resolveServerURL(server), sessionID, args[0], args[1:])
		},
	}

	helpCmd := &cobra.Command{
		Use:   "describe [command]",
		Short: "Describe one command, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runCommandsDescribe(cmd, resolveServerURL(server), sessionID, name)
		},
	}

	cmd.AddCommand(listCmd, runCmd, helpCmd)
	return cmd
}

// buildInitCmd creates the "init" command.
func buildInitCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Seed a workspace with an instruction file and an example command",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, resolveConfigPath(configPath), dir, force)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing files")
	return cmd
}
