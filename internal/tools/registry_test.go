package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/turnstream/pkg/models"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	registry, err := NewWorkspaceRegistry(Config{Workspace: root, MaxReadBytes: 16})
	if err != nil {
		t.Fatalf("NewWorkspaceRegistry() error = %v", err)
	}
	return registry, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRegistryDefinitions(t *testing.T) {
	registry, _ := newTestRegistry(t)

	defs := registry.Definitions()
	if len(defs) != 4 {
		t.Fatalf("expected 4 definitions, got %d", len(defs))
	}
	want := []string{"list_directory", "read_file", "read_many_files", "search_file_content"}
	for i, name := range want {
		if defs[i].Name != name {
			t.Fatalf("Definitions()[%d] = %s, want %s", i, defs[i].Name, name)
		}
		var schema map[string]any
		if err := json.Unmarshal(defs[i].Schema, &schema); err != nil {
			t.Fatalf("schema for %s is not JSON: %v", name, err)
		}
		if schema["type"] != "object" {
			t.Fatalf("schema for %s has type %v", name, schema["type"])
		}
	}
}

func TestRegistryReadFile(t *testing.T) {
	registry, root := newTestRegistry(t)
	writeFile(t, root, "notes.txt", "hello world")

	resp, err := registry.Execute(context.Background(), models.ToolCall{
		CallID: "c1",
		Name:   "read_file",
		Args:   map[string]any{"path": "notes.txt"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected tool error: %s", resp.Error)
	}
	if len(resp.Parts) != 1 || resp.Parts[0].ToolResult == nil {
		t.Fatalf("expected one tool result part, got %+v", resp.Parts)
	}
	part := resp.Parts[0].ToolResult
	if part.CallID != "c1" || part.Name != "read_file" {
		t.Fatalf("unexpected part identity: %+v", part)
	}
	if !strings.Contains(part.Output, "hello world") {
		t.Fatalf("expected content, got %s", part.Output)
	}
}

func TestRegistryReadFileTruncates(t *testing.T) {
	registry, root := newTestRegistry(t)
	writeFile(t, root, "big.txt", strings.Repeat("a", 40))

	resp, err := registry.Execute(context.Background(), models.ToolCall{
		Name: "read_file",
		Args: map[string]any{"path": "big.txt"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var out struct {
		Bytes     int   `json:"bytes"`
		Size      int64 `json:"size"`
		Truncated bool  `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(resp.Parts[0].ToolResult.Output), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.Bytes != 16 || out.Size != 40 || !out.Truncated {
		t.Fatalf("unexpected read summary: %+v", out)
	}
}

func TestRegistryRejectsInvalidArgs(t *testing.T) {
	registry, _ := newTestRegistry(t)

	resp, err := registry.Execute(context.Background(), models.ToolCall{
		Name: "read_file",
		Args: map[string]any{"offset": 3},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(resp.Error, "invalid arguments") {
		t.Fatalf("expected validation error, got %q", resp.Error)
	}
	if len(resp.Parts) != 1 || !resp.Parts[0].ToolResult.IsError {
		t.Fatal("expected an error tool result part")
	}

	resp, _ = registry.Execute(context.Background(), models.ToolCall{
		Name: "read_file",
		Args: map[string]any{"path": "a.txt", "bogus": true},
	})
	if resp.Error == "" {
		t.Fatal("expected unknown property to be rejected")
	}
}

func TestRegistryPathEscape(t *testing.T) {
	registry, _ := newTestRegistry(t)

	resp, err := registry.Execute(context.Background(), models.ToolCall{
		Name: "read_file",
		Args: map[string]any{"path": "../../etc/passwd"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(resp.Error, "escapes") {
		t.Fatalf("expected escape error, got %q", resp.Error)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	registry, _ := newTestRegistry(t)
	_, err := registry.Execute(context.Background(), models.ToolCall{Name: "rm_rf"})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryCancelledContext(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := registry.Execute(ctx, models.ToolCall{Name: "list_directory"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestListDirectory(t *testing.T) {
	registry, root := newTestRegistry(t)
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "a/inner.txt", "x")
	writeFile(t, root, ".hidden", "h")

	resp, err := registry.Execute(context.Background(), models.ToolCall{Name: "list_directory"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var out struct {
		Entries []models.DirEntry `json:"entries"`
	}
	if err := json.Unmarshal([]byte(resp.Parts[0].ToolResult.Output), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(out.Entries) != 2 {
		t.Fatalf("expected 2 visible entries, got %+v", out.Entries)
	}
	if out.Entries[0].Name != "a" || out.Entries[0].Type != "directory" {
		t.Fatalf("expected directory first, got %+v", out.Entries[0])
	}
	if out.Entries[1].Name != "b.txt" || out.Entries[1].Size != 1 {
		t.Fatalf("unexpected file entry: %+v", out.Entries[1])
	}
}

func TestReadManyFiles(t *testing.T) {
	registry, root := newTestRegistry(t)
	writeFile(t, root, "src/a.go", "package a")
	writeFile(t, root, "src/b.go", "package b")
	writeFile(t, root, "README.md", "readme")

	resp, err := registry.Execute(context.Background(), models.ToolCall{
		Name: "read_many_files",
		Args: map[string]any{"paths": []any{"src/*.go", "README.md", "missing.txt"}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected tool error: %s", resp.Error)
	}
	var out struct {
		Files   []fileContent `json:"files"`
		Skipped []skippedFile `json:"skipped"`
	}
	if err := json.Unmarshal([]byte(resp.Parts[0].ToolResult.Output), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(out.Files) != 3 {
		t.Fatalf("expected 3 files, got %+v", out.Files)
	}
	if out.Files[0].Path != "src/a.go" || out.Files[2].Path != "README.md" {
		t.Fatalf("unexpected file order: %+v", out.Files)
	}
	if len(out.Skipped) != 1 || out.Skipped[0].Path != "missing.txt" {
		t.Fatalf("expected missing.txt to be skipped, got %+v", out.Skipped)
	}
}

func TestReadManyFilesRequiresPaths(t *testing.T) {
	registry, _ := newTestRegistry(t)
	resp, err := registry.Execute(context.Background(), models.ToolCall{
		Name: "read_many_files",
		Args: map[string]any{"paths": []any{}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Error == "" {
		t.Fatal("expected empty paths to fail validation")
	}
}
