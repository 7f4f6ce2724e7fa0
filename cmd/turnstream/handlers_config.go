package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/turnstream/internal/config"
)

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return nil
}

func runConfigValidate(cmd *cobra.Command, path string) error {
	if path == "" {
		return fmt.Errorf("--config or TURNSTREAM_CONFIG is required")
	}
	if _, err := config.Load(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
	return nil
}

// runConfigShow prints the effective configuration with secrets masked.
func runConfigShow(cmd *cobra.Command, path string) error {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}
	shown := *cfg
	if shown.Engine.APIKey != "" {
		shown.Engine.APIKey = "********"
	}
	out, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
