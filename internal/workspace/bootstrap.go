package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BootstrapFile represents a file to seed in a workspace.
type BootstrapFile struct {
	Name    string
	Content string
}

// BootstrapResult captures the files created or skipped.
type BootstrapResult struct {
	Created []string
	Skipped []string
}

// BootstrapOptions names the files seeded by EnsureWorkspaceFiles.
type BootstrapOptions struct {
	// InstructionFile receives the instruction template (default: AGENTS.md)
	InstructionFile string

	// CommandsDir receives the example command (default: .turnstream/commands)
	CommandsDir string
}

// BootstrapFiles returns the instruction template and an example prompt
// command.
func BootstrapFiles(opts BootstrapOptions) []BootstrapFile {
	instructions := strings.TrimSpace(opts.InstructionFile)
	if instructions == "" {
		instructions = DefaultInstructionFiles[0]
	}
	commandsDir := strings.TrimSpace(opts.CommandsDir)
	if commandsDir == "" {
		commandsDir = ".turnstream/commands"
	}
	return []BootstrapFile{
		{
			Name: instructions,
			Content: "# Project Instructions\n\n" +
				"These notes are added to the assistant's system prompt for every session in this workspace.\n\n" +
				"## Conventions\n" +
				"- Describe the build and test commands here.\n" +
				"- List directories the assistant should ignore.\n\n" +
				"## Safety\n" +
				"- Do not exfiltrate secrets or private data.\n",
		},
		{
			Name: filepath.ToSlash(filepath.Join(commandsDir, "review.toml")),
			Content: "description = \"Review a file for bugs and style problems\"\n" +
				"prompt = \"\"\"\n" +
				"Review @{{args}} and list concrete problems with line references.\n" +
				"\"\"\"\n",
		},
	}
}

// EnsureWorkspaceFiles creates missing files under root, making parent
// directories as needed. Existing files are skipped unless overwrite is
// set.
func EnsureWorkspaceFiles(root string, files []BootstrapFile, overwrite bool) (BootstrapResult, error) {
	result := BootstrapResult{}
	base := strings.TrimSpace(root)
	if base == "" {
		base = "."
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return result, fmt.Errorf("create workspace dir: %w", err)
	}
	resolver := Resolver{Root: base}

	for _, file := range files {
		name := strings.TrimSpace(file.Name)
		if name == "" {
			continue
		}
		path, err := resolver.Resolve(name)
		if err != nil {
			return result, err
		}
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				result.Skipped = append(result.Skipped, path)
				continue
			} else if !os.IsNotExist(err) {
				return result, fmt.Errorf("stat %s: %w", path, err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return result, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(file.Content), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", path, err)
		}
		result.Created = append(result.Created, path)
	}

	return result, nil
}
