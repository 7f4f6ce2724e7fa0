// Package main provides the CLI entry point for turnstream, a streaming
// turn orchestration server for conversational coding agents.
//
// # Basic Usage
//
// Start the server:
//
//	turnstream serve --config turnstream.yaml
//
// Chat with a running server:
//
//	turnstream chat "explain @main.go"
//
// Inspect sessions:
//
//	turnstream sessions list
//	turnstream history <session-id>
//
// Prepare a workspace with an instruction file and a sample command:
//
//	turnstream init ./my-project
//
// # Environment Variables
//
//   - TURNSTREAM_CONFIG: Path to the configuration file
//   - TURNSTREAM_SERVER: Base URL used by the client commands
//   - PORT, HOST, LOG_LEVEL, CORS_ORIGIN: server overrides
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY: provider credentials
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/turnstream/internal/client"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// It is separate from main for testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "turnstream",
		Short: "turnstream - streaming turn orchestration for coding agents",
		Long: `turnstream runs multi-turn agent conversations against a workspace and
streams every turn to clients as server-sent events.

Supported engines: OpenAI, Anthropic, echo (offline)
Workspace tools: read_file, list_directory, read_many_files, search_file_content`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildHistoryCmd(),
		buildSessionsCmd(),
		buildFilesCmd(),
		buildCommandsCmd(),
		buildInitCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath prefers the flag, then TURNSTREAM_CONFIG. An empty
// result means built-in defaults.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv("TURNSTREAM_CONFIG"))
}

// resolveServerURL prefers the flag, then TURNSTREAM_SERVER.
func resolveServerURL(url string) string {
	if u := strings.TrimSpace(url); u != "" {
		return u
	}
	if u := strings.TrimSpace(os.Getenv("TURNSTREAM_SERVER")); u != "" {
		return u
	}
	return client.DefaultBaseURL
}
