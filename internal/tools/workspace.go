package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// Config controls workspace tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
	MaxFiles     int
}

func (c Config) withDefaults() Config {
	if c.MaxReadBytes <= 0 {
		c.MaxReadBytes = 200000
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = 50
	}
	return c
}

// NewWorkspaceRegistry returns a registry holding the read-only workspace
// tools bound to cfg.Workspace.
func NewWorkspaceRegistry(cfg Config) (*Registry, error) {
	cfg = cfg.withDefaults()
	registry := NewRegistry()
	for _, tool := range []Tool{
		NewReadFileTool(cfg),
		NewListDirectoryTool(cfg),
		NewReadManyFilesTool(cfg),
		NewSearchFileContentTool(cfg),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

type readFileArgs struct {
	Path   string `json:"path" jsonschema:"description=Path to the file relative to the workspace root."`
	Offset int64  `json:"offset,omitempty" jsonschema:"minimum=0,description=Byte offset to start reading from."`
	Limit  int    `json:"limit,omitempty" jsonschema:"minimum=0,description=Maximum bytes to read (capped by the tool default)."`
}

// ReadFileTool reads one file from the workspace.
type ReadFileTool struct {
	resolver workspace.Resolver
	maxBytes int
	schema   json.RawMessage
}

// NewReadFileTool creates a read tool scoped to the workspace.
func NewReadFileTool(cfg Config) *ReadFileTool {
	cfg = cfg.withDefaults()
	return &ReadFileTool{
		resolver: workspace.Resolver{Root: cfg.Workspace},
		maxBytes: cfg.MaxReadBytes,
		schema:   reflectSchema(&readFileArgs{}),
	}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the workspace with optional byte offset and limit."
}

func (t *ReadFileTool) Schema() json.RawMessage { return t.schema }

// Execute reads a file with safety limits.
func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input readFileArgs
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	limit := t.maxBytes
	if input.Limit > 0 && input.Limit < limit {
		limit = input.Limit
	}
	content, size, err := readLimited(resolved, input.Offset, limit)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	return jsonResult(map[string]any{
		"path":      t.resolver.Rel(resolved),
		"content":   content,
		"offset":    input.Offset,
		"bytes":     len(content),
		"size":      size,
		"truncated": input.Offset+int64(len(content)) < size,
	}), nil
}

type listDirectoryArgs struct {
	Path       string `json:"path,omitempty" jsonschema:"description=Directory relative to the workspace root. Defaults to the root."`
	ShowHidden bool   `json:"show_hidden,omitempty" jsonschema:"description=Include entries whose names start with a dot."`
}

// ListDirectoryTool lists the entries of one workspace directory.
type ListDirectoryTool struct {
	resolver workspace.Resolver
	schema   json.RawMessage
}

// NewListDirectoryTool creates a directory listing tool scoped to the workspace.
func NewListDirectoryTool(cfg Config) *ListDirectoryTool {
	return &ListDirectoryTool{
		resolver: workspace.Resolver{Root: cfg.Workspace},
		schema:   reflectSchema(&listDirectoryArgs{}),
	}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List files and directories in a workspace directory."
}

func (t *ListDirectoryTool) Schema() json.RawMessage { return t.schema }

// Execute lists a directory, directories first.
func (t *ListDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input listDirectoryArgs
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimSpace(input.Path)
	if path == "" {
		path = "."
	}
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return errorResult(fmt.Sprintf("read directory: %v", err)), nil
	}
	out := make([]models.DirEntry, 0, len(entries))
	for _, e := range entries {
		if !input.ShowHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		item := models.DirEntry{Name: e.Name(), Type: "file"}
		if e.IsDir() {
			item.Type = "directory"
		} else if info, err := e.Info(); err == nil {
			item.Size = info.Size()
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type == "directory"
		}
		return out[i].Name < out[j].Name
	})

	return jsonResult(map[string]any{
		"path":    t.resolver.Rel(resolved),
		"entries": out,
	}), nil
}

type readManyFilesArgs struct {
	Paths []string `json:"paths" jsonschema:"minItems=1,description=Paths or glob patterns relative to the workspace root."`
}

// ReadManyFilesTool reads several files, expanding glob patterns.
type ReadManyFilesTool struct {
	resolver workspace.Resolver
	maxBytes int
	maxFiles int
	schema   json.RawMessage
}

// NewReadManyFilesTool creates a multi-file reader scoped to the workspace.
func NewReadManyFilesTool(cfg Config) *ReadManyFilesTool {
	cfg = cfg.withDefaults()
	return &ReadManyFilesTool{
		resolver: workspace.Resolver{Root: cfg.Workspace},
		maxBytes: cfg.MaxReadBytes,
		maxFiles: cfg.MaxFiles,
		schema:   reflectSchema(&readManyFilesArgs{}),
	}
}

func (t *ReadManyFilesTool) Name() string { return "read_many_files" }

func (t *ReadManyFilesTool) Description() string {
	return "Read several workspace files at once. Accepts paths and glob patterns."
}

func (t *ReadManyFilesTool) Schema() json.RawMessage { return t.schema }

type fileContent struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int64  `json:"size"`
	Truncated bool   `json:"truncated,omitempty"`
}

type skippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Execute reads every matched file. Files that cannot be read are reported
// as skipped rather than failing the call.
func (t *ReadManyFilesTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input readManyFilesArgs
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	var (
		files   []fileContent
		skipped []skippedFile
		seen    = make(map[string]bool)
	)
	for _, pattern := range input.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := t.expand(pattern)
		if err != nil {
			skipped = append(skipped, skippedFile{Path: pattern, Reason: err.Error()})
			continue
		}
		for _, abs := range matches {
			if seen[abs] {
				continue
			}
			seen[abs] = true
			rel := t.resolver.Rel(abs)
			if len(files) >= t.maxFiles {
				skipped = append(skipped, skippedFile{Path: rel, Reason: fmt.Sprintf("file limit of %d reached", t.maxFiles)})
				continue
			}
			content, size, err := readLimited(abs, 0, t.maxBytes)
			if err != nil {
				skipped = append(skipped, skippedFile{Path: rel, Reason: err.Error()})
				continue
			}
			files = append(files, fileContent{
				Path:      rel,
				Content:   content,
				Size:      size,
				Truncated: int64(len(content)) < size,
			})
		}
	}
	if len(files) == 0 && len(skipped) > 0 {
		return errorResult(fmt.Sprintf("no files could be read: %s: %s", skipped[0].Path, skipped[0].Reason)), nil
	}
	return jsonResult(map[string]any{
		"files":   files,
		"skipped": skipped,
	}), nil
}

func (t *ReadManyFilesTool) expand(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		resolved, err := t.resolver.Resolve(pattern)
		if err != nil {
			return nil, err
		}
		return []string{resolved}, nil
	}
	base, err := t.resolver.Resolve(".")
	if err != nil {
		return nil, err
	}
	glob := pattern
	if !filepath.IsAbs(glob) {
		glob = filepath.Join(base, glob)
	}
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !workspace.Within(base, m) {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no files match %s", pattern)
	}
	sort.Strings(out)
	return out, nil
}

// readLimited reads at most limit bytes of path starting at offset and
// returns the text with the file's full size.
func readLimited(path string, offset int64, limit int) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return "", 0, fmt.Errorf("%s is a directory", filepath.Base(path))
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return "", 0, fmt.Errorf("seek file: %w", err)
		}
	}
	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return "", 0, fmt.Errorf("read file: %w", err)
	}
	return string(buf), info.Size(), nil
}
