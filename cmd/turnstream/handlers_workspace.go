package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/turnstream/internal/client"
	"github.com/haasonsaas/turnstream/internal/config"
	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

func runFilesRead(cmd *cobra.Command, server, sessionID, path string, offset int64, limit int) error {
	resp, err := client.New(server).ReadFile(cmd.Context(), models.FileReadRequest{
		SessionID: sessionID,
		Path:      path,
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), resp.Content)
	if resp.Truncated {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n(truncated: showed %d of %d bytes from offset %d)\n", len(resp.Content), resp.Size, resp.Offset)
	}
	return nil
}

func runFilesList(cmd *cobra.Command, server, sessionID, path string, showHidden bool) error {
	resp, err := client.New(server).ListFiles(cmd.Context(), models.FileListRequest{
		SessionID:  sessionID,
		Path:       path,
		ShowHidden: showHidden,
	})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, entry := range resp.Entries {
		name := entry.Name
		if entry.Type == "directory" {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%d\n", name, entry.Size)
	}
	return tw.Flush()
}

func runFilesSearch(cmd *cobra.Command, server, sessionID, pattern, path, include string, maxMatches int) error {
	resp, err := client.New(server).SearchFiles(cmd.Context(), models.FileSearchRequest{
		SessionID:  sessionID,
		Pattern:    pattern,
		Path:       path,
		Include:    include,
		MaxMatches: maxMatches,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, m := range resp.Matches {
		fmt.Fprintf(out, "%s:%d: %s\n", m.Path, m.Line, m.Text)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d match(es)", resp.Total)
	if resp.Truncated {
		fmt.Fprint(cmd.ErrOrStderr(), " (limit reached)")
	}
	fmt.Fprintln(cmd.ErrOrStderr())
	return nil
}

func runCommandsList(cmd *cobra.Command, server, sessionID string) error {
	resp, err := client.New(server).ListCommands(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tKIND\tDESCRIPTION")
	for _, info := range resp.Commands {
		fmt.Fprintf(tw, "/%s\t%s\t%s\n", info.Name, info.Kind, info.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d command(s)\n", resp.Total)
	return nil
}

// runCommandsRun prints the command output. For prompt commands this is
// the expanded prompt; it is not sent to the model.
func runCommandsRun(cmd *cobra.Command, server, sessionID, name string, args []string) error {
	resp, err := client.New(server).ExecuteCommand(cmd.Context(), models.CommandExecuteRequest{
		SessionID: sessionID,
		Command:   name,
		Args:      strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Output)
	return nil
}

func runCommandsDescribe(cmd *cobra.Command, server, sessionID, name string) error {
	resp, err := client.New(server).CommandHelp(cmd.Context(), sessionID, name)
	if err != nil {
		return err
	}
	infos := resp.Commands
	if resp.Command != nil {
		infos = []models.CommandInfo{*resp.Command}
	}
	out := cmd.OutOrStdout()
	for _, info := range infos {
		fmt.Fprintf(out, "/%s (%s)", info.Name, info.Kind)
		if info.Description != "" {
			fmt.Fprintf(out, " - %s", info.Description)
		}
		fmt.Fprintln(out)
		if info.Usage != "" {
			fmt.Fprintf(out, "  usage: %s\n", info.Usage)
		}
		if len(info.Aliases) > 0 {
			fmt.Fprintf(out, "  aliases: /%s\n", strings.Join(info.Aliases, ", /"))
		}
	}
	return nil
}

// runInit seeds dir using the instruction file and commands directory of
// the effective configuration.
func runInit(cmd *cobra.Command, configPath, dir string, force bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	opts := workspace.BootstrapOptions{CommandsDir: cfg.Workspace.CommandsDir}
	if len(cfg.Workspace.InstructionFiles) > 0 {
		opts.InstructionFile = cfg.Workspace.InstructionFiles[0]
	}
	result, err := workspace.EnsureWorkspaceFiles(dir, workspace.BootstrapFiles(opts), force)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, path := range result.Created {
		fmt.Fprintf(out, "created %s\n", path)
	}
	for _, path := range result.Skipped {
		fmt.Fprintf(out, "skipped %s (exists, use --force to overwrite)\n", path)
	}
	return nil
}
