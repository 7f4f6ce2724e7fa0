package main

import (
	"github.com/spf13/cobra"
)

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}

	var validatePath string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a configuration file and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, resolveConfigPath(validatePath))
		},
	}
	validateCmd.Flags().StringVarP(&validatePath, "config", "c", "", "Path to configuration file")

	var showPath string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, resolveConfigPath(showPath))
		},
	}
	showCmd.Flags().StringVarP(&showPath, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(schemaCmd, validateCmd, showCmd)
	return cmd
}
