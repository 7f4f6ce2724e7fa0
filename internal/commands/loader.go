package commands

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// ArgsPlaceholder is replaced by the invocation arguments in a file
// command's prompt.
const ArgsPlaceholder = "{{args}}"

const maxCommandFileBytes = 64 << 10

// fileCommand is the TOML shape of a prompt command file.
type fileCommand struct {
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"`
}

// LoadFileCommands reads every *.toml file under dir. A file at
// git/commit.toml defines /git:commit. Files that fail to parse are
// returned as errors alongside the commands that loaded.
func LoadFileCommands(dir string) ([]*Command, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{err}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("%s is not a directory", dir)}
	}

	var (
		out  []*Command
		errs []error
	)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".toml") {
			return nil
		}
		cmd, err := loadFileCommand(dir, path)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		out = append(out, cmd)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return out, errs
}

func loadFileCommand(dir, path string) (*Command, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
	name := strings.ReplaceAll(rel, "/", ":")

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxCommandFileBytes {
		return nil, fmt.Errorf("%s: file exceeds %d bytes", rel, maxCommandFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def fileCommand
	if err := toml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	if strings.TrimSpace(def.Prompt) == "" {
		return nil, fmt.Errorf("%s: prompt is required", rel)
	}

	description := strings.TrimSpace(def.Description)
	if description == "" {
		description = fmt.Sprintf("Custom command from %s", filepath.Base(path))
	}
	prompt := def.Prompt
	return &Command{
		Name:        name,
		Description: description,
		AcceptsArgs: true,
		Kind:        KindFile,
		Source:      filepath.ToSlash(path),
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			return &Result{
				Text:   expandPrompt(prompt, inv.Args),
				Action: models.CommandActionSubmitPrompt,
			}, nil
		},
	}, nil
}

// expandPrompt substitutes args for every placeholder, or appends them when
// the prompt has none.
func expandPrompt(prompt, args string) string {
	if strings.Contains(prompt, ArgsPlaceholder) {
		return strings.ReplaceAll(prompt, ArgsPlaceholder, args)
	}
	prompt = strings.TrimSpace(prompt)
	if args == "" {
		return prompt
	}
	return prompt + "\n\n" + args
}

// ForWorkspace builds the registry of one workspace: the built-ins plus the
// file commands under commandsDir, which is relative to root. File commands
// that fail to load, or whose names collide with a registered command, are
// logged and skipped.
func ForWorkspace(root, commandsDir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry(logger)
	RegisterBuiltins(r)
	if strings.TrimSpace(commandsDir) == "" {
		return r
	}

	dir, err := workspace.Resolver{Root: root}.Resolve(commandsDir)
	if err != nil {
		r.logger.Warn("commands dir rejected", "workspace_root", root, "error", err)
		return r
	}
	cmds, errs := LoadFileCommands(dir)
	for _, err := range errs {
		r.logger.Warn("command file skipped", "dir", dir, "error", err)
	}
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			r.logger.Warn("command file skipped", "source", cmd.Source, "error", err)
		}
	}
	return r
}
