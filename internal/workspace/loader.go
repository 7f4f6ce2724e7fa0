package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultInstructionFiles are the project instruction files read from a
// workspace root when no list is configured.
var DefaultInstructionFiles = []string{"AGENTS.md", "TURNSTREAM.md"}

const defaultInstructionMaxBytes = 32000

// LoaderConfig selects the instruction files read from a workspace.
type LoaderConfig struct {
	Root     string
	Files    []string
	MaxBytes int64
}

// InstructionFile is one instruction file found in a workspace.
type InstructionFile struct {
	Name      string
	Content   string
	Truncated bool
}

// Instructions are the project instructions of one workspace, in the order
// the files were configured.
type Instructions struct {
	Files []InstructionFile
}

// LoadInstructions reads every configured file present in the workspace
// root. Missing and empty files are skipped; names that escape the root
// are an error.
func LoadInstructions(cfg LoaderConfig) (*Instructions, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	files := cfg.Files
	if files == nil {
		files = DefaultInstructionFiles
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultInstructionMaxBytes
	}

	resolver := Resolver{Root: root}
	out := &Instructions{}
	seen := make(map[string]bool, len(files))
	for _, name := range files {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		path, err := resolver.Resolve(name)
		if err != nil {
			return nil, err
		}
		if seen[path] {
			continue
		}
		seen[path] = true

		content, truncated, err := readOptionalFile(path, maxBytes)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		out.Files = append(out.Files, InstructionFile{
			Name:      resolver.Rel(path),
			Content:   content,
			Truncated: truncated,
		})
	}
	return out, nil
}

// Empty reports whether no instruction file was found.
func (in *Instructions) Empty() bool {
	return in == nil || len(in.Files) == 0
}

// Names lists the loaded file names.
func (in *Instructions) Names() []string {
	if in == nil {
		return nil
	}
	names := make([]string, 0, len(in.Files))
	for _, f := range in.Files {
		names = append(names, f.Name)
	}
	return names
}

// SystemPromptContext renders the instructions for inclusion in a system
// prompt, one section per file.
func (in *Instructions) SystemPromptContext() string {
	if in.Empty() {
		return ""
	}
	var b strings.Builder
	for i, f := range in.Files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "# Project instructions (%s)\n\n%s", f.Name, strings.TrimSpace(f.Content))
		if f.Truncated {
			b.WriteString("\n\n[truncated]")
		}
	}
	return b.String()
}

// ComposeSystemPrompt appends the workspace instructions to base.
func ComposeSystemPrompt(base string, in *Instructions) string {
	extra := in.SystemPromptContext()
	switch {
	case extra == "":
		return base
	case strings.TrimSpace(base) == "":
		return extra
	default:
		return strings.TrimRight(base, "\n") + "\n\n" + extra
	}
}

// readOptionalFile reads at most maxBytes of path. A missing file yields
// empty content.
func readOptionalFile(path string, maxBytes int64) (string, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", false, err
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("%s is a directory", filepath.Base(path))
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return "", false, err
	}
	return string(data), info.Size() > maxBytes, nil
}
