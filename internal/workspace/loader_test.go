package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadInstructions(t *testing.T) {
	tmpDir := t.TempDir()

	os.WriteFile(filepath.Join(tmpDir, "AGENTS.md"), []byte("Run go test before answering."), 0644)
	os.WriteFile(filepath.Join(tmpDir, "TURNSTREAM.md"), []byte("   \n"), 0644)

	in, err := LoadInstructions(LoaderConfig{Root: tmpDir})
	if err != nil {
		t.Fatalf("LoadInstructions() error = %v", err)
	}
	if len(in.Files) != 1 {
		t.Fatalf("expected 1 file (empty files skipped), got %d", len(in.Files))
	}
	if in.Files[0].Name != "AGENTS.md" {
		t.Errorf("Name = %q, want AGENTS.md", in.Files[0].Name)
	}
	if got := in.Names(); len(got) != 1 || got[0] != "AGENTS.md" {
		t.Errorf("Names() = %v", got)
	}

	prompt := in.SystemPromptContext()
	if !strings.Contains(prompt, "# Project instructions (AGENTS.md)") {
		t.Errorf("prompt missing header: %q", prompt)
	}
	if !strings.Contains(prompt, "Run go test before answering.") {
		t.Errorf("prompt missing content: %q", prompt)
	}
}

func TestLoadInstructionsMissingFiles(t *testing.T) {
	in, err := LoadInstructions(LoaderConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadInstructions() error = %v", err)
	}
	if !in.Empty() {
		t.Errorf("expected no instructions, got %+v", in.Files)
	}
	if in.SystemPromptContext() != "" {
		t.Error("expected empty prompt context")
	}
}

func TestLoadInstructionsCustomFilesAndLimit(t *testing.T) {
	tmpDir := t.TempDir()
	os.MkdirAll(filepath.Join(tmpDir, "docs"), 0755)
	os.WriteFile(filepath.Join(tmpDir, "docs", "rules.md"), []byte("0123456789"), 0644)
	os.WriteFile(filepath.Join(tmpDir, "AGENTS.md"), []byte("ignored"), 0644)

	in, err := LoadInstructions(LoaderConfig{
		Root:     tmpDir,
		Files:    []string{"docs/rules.md", "docs/rules.md"},
		MaxBytes: 4,
	})
	if err != nil {
		t.Fatalf("LoadInstructions() error = %v", err)
	}
	if len(in.Files) != 1 {
		t.Fatalf("expected duplicate names to load once, got %d", len(in.Files))
	}
	f := in.Files[0]
	if f.Name != "docs/rules.md" || f.Content != "0123" || !f.Truncated {
		t.Errorf("unexpected file: %+v", f)
	}
	if !strings.Contains(in.SystemPromptContext(), "[truncated]") {
		t.Error("expected truncation marker")
	}
}

func TestLoadInstructionsEmptyList(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "AGENTS.md"), []byte("content"), 0644)

	in, err := LoadInstructions(LoaderConfig{Root: tmpDir, Files: []string{}})
	if err != nil {
		t.Fatalf("LoadInstructions() error = %v", err)
	}
	if !in.Empty() {
		t.Error("an explicit empty list should load nothing")
	}
}

func TestLoadInstructionsRejectsEscape(t *testing.T) {
	if _, err := LoadInstructions(LoaderConfig{Root: t.TempDir(), Files: []string{"../outside.md"}}); err == nil {
		t.Fatal("expected error for a file outside the workspace")
	}
}

func TestComposeSystemPrompt(t *testing.T) {
	in := &Instructions{Files: []InstructionFile{{Name: "AGENTS.md", Content: "be brief"}}}

	tests := []struct {
		name string
		base string
		in   *Instructions
		want string
	}{
		{"no instructions", "base", nil, "base"},
		{"no base", "", in, "# Project instructions (AGENTS.md)\n\nbe brief"},
		{"both", "base\n", in, "base\n\n# Project instructions (AGENTS.md)\n\nbe brief"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeSystemPrompt(tt.base, tt.in); got != tt.want {
				t.Errorf("ComposeSystemPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}
