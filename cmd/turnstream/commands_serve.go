package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the HTTP server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the turnstream server",
		Long: `Start the turnstream HTTP server.

The server will:
1. Load configuration from the given file, or use built-in defaults
2. Build the engine factory for the configured provider
3. Start the session store and its expiry sweep
4. Serve the chat stream, session and health endpoints

In-flight turn streams are cancelled on SIGINT/SIGTERM before shutdown.`,
		Example: `  # Start with defaults (echo engine, port 3001)
  turnstream serve

  # Start with a config file and reload the log level on change
  turnstream serve --config /etc/turnstream.yaml --watch

  # Start with debug logging
  turnstream serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug, watch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload logging settings when the config file changes")
	return cmd
}
