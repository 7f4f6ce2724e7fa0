package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	path := writeConfig(t, "turnstream.yaml", `
engine:
  provider: echo
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3001 {
		t.Fatalf("Server.Port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.Session.Timeout != 30*time.Minute {
		t.Fatalf("Session.Timeout = %v, want 30m", cfg.Session.Timeout)
	}
	if cfg.Session.SweepInterval != time.Minute {
		t.Fatalf("Session.SweepInterval = %v, want 1m", cfg.Session.SweepInterval)
	}
	if cfg.Agent.MaxTurns != 10 {
		t.Fatalf("Agent.MaxTurns = %d, want 10", cfg.Agent.MaxTurns)
	}
	if cfg.Session.DefaultOwner != "local-user" {
		t.Fatalf("Session.DefaultOwner = %q, want local-user", cfg.Session.DefaultOwner)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if len(cfg.Workspace.InstructionFiles) != 2 || cfg.Workspace.InstructionFiles[0] != "AGENTS.md" {
		t.Fatalf("Workspace.InstructionFiles = %v", cfg.Workspace.InstructionFiles)
	}
	if cfg.Workspace.CommandsDir != ".turnstream/commands" {
		t.Fatalf("Workspace.CommandsDir = %q", cfg.Workspace.CommandsDir)
	}
}

func TestLoadKeepsEmptyInstructionList(t *testing.T) {
	path := writeConfig(t, "turnstream.yaml", `
workspace:
  instruction_files: []
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workspace.InstructionFiles == nil || len(cfg.Workspace.InstructionFiles) != 0 {
		t.Fatalf("Workspace.InstructionFiles = %#v, want empty list", cfg.Workspace.InstructionFiles)
	}
}

func TestLoadRejectsEscapingCommandsDir(t *testing.T) {
	path := writeConfig(t, "turnstream.yaml", `
workspace:
  commands_dir: ../elsewhere
`)
	var verr *ValidationError
	if _, err := Load(path); !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, "turnstream.yaml", `
session:
  timeout: 5m
  sweep_interval: 10s
agent:
  max_turns: 25
  response_mode: full
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.Timeout != 5*time.Minute || cfg.Session.SweepInterval != 10*time.Second {
		t.Fatalf("session durations = %v/%v", cfg.Session.Timeout, cfg.Session.SweepInterval)
	}
	if cfg.Agent.MaxTurns != 25 || cfg.Agent.ResponseMode != "full" {
		t.Fatalf("agent = %+v", cfg.Agent)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "turnstream.yaml", `
server:
  host: 0.0.0.0
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesMaxTurns(t *testing.T) {
	for _, turns := range []string{"-1", "301"} {
		path := writeConfig(t, "turnstream.yaml", "agent:\n  max_turns: "+turns)

		_, err := Load(path)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("max_turns %s: expected *ValidationError, got %v", turns, err)
		}
		if !strings.Contains(err.Error(), "agent.max_turns") {
			t.Fatalf("expected max_turns issue, got %v", err)
		}
	}
}

func TestLoadCollectsAllIssues(t *testing.T) {
	path := writeConfig(t, "turnstream.yaml", `
engine:
  provider: carrier-pigeon
logging:
  format: xml
`)

	_, err := Load(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", verr.Issues)
	}
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	path := writeConfig(t, "turnstream.yaml", "version: 99")

	_, err := Load(path)
	var ve *VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *VersionError, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "turnstream.json5", `{
  // comments and trailing commas are allowed
  server: { port: 4000, },
  engine: { provider: "openai", model: "gpt-4o-mini" },
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Fatalf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Engine.Model != "gpt-4o-mini" {
		t.Fatalf("Engine.Model = %q, want gpt-4o-mini", cfg.Engine.Model)
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base.yaml"), `
server:
  port: 5000
  host: 127.0.0.1
engine:
  provider: anthropic
`)
	path := writeFile(t, filepath.Join(dir, "turnstream.yaml"), `
$include: base.yaml
server:
  port: 6000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Fatalf("Server.Port = %d, want including file to win", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("Server.Host = %q, want included value", cfg.Server.Host)
	}
	if cfg.Engine.Provider != "anthropic" {
		t.Fatalf("Engine.Provider = %q, want anthropic", cfg.Engine.Provider)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "$include: b.yaml")
	writeFile(t, filepath.Join(dir, "b.yaml"), "$include: a.yaml")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadIncludeWithEnvAndPlainKey(t *testing.T) {
	t.Setenv("TURNSTREAM_TEST_HOST", "10.0.0.5")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base.yaml"), `
server:
  host: ${TURNSTREAM_TEST_HOST}
`)
	writeFile(t, filepath.Join(dir, "engine.yaml"), `
engine:
  provider: anthropic
`)
	path := writeFile(t, filepath.Join(dir, "turnstream.yaml"), `
$include:
  - base.yaml
include_note: ignored
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown key include_note to fail the load")
	}

	path = writeFile(t, filepath.Join(dir, "turnstream.yaml"), `
$include:
  - base.yaml
server:
  port: 7000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "10.0.0.5" || cfg.Server.Port != 7000 {
		t.Fatalf("Server = %s:%d, want env host from include and local port", cfg.Server.Host, cfg.Server.Port)
	}

	path = writeFile(t, filepath.Join(dir, "plain.yaml"), `
include: engine.yaml
`)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Provider != "anthropic" {
		t.Fatalf("Engine.Provider = %q, want value from plain include", cfg.Engine.Provider)
	}
}

func TestExpandEnvKeepsIncludeDirective(t *testing.T) {
	t.Setenv("TURNSTREAM_TEST_PORT", "8123")
	got := expandEnv("$include: base.yaml\nport: ${TURNSTREAM_TEST_PORT}\nkey: $TURNSTREAM_TEST_UNSET")
	want := "$include: base.yaml\nport: 8123\nkey: "
	if got != want {
		t.Fatalf("expandEnv() = %q, want %q", got, want)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TURNSTREAM_TEST_KEY", "sk-from-env")
	path := writeConfig(t, "turnstream.yaml", `
engine:
  provider: openai
  api_key: ${TURNSTREAM_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.APIKey != "sk-from-env" {
		t.Fatalf("Engine.APIKey = %q, want sk-from-env", cfg.Engine.APIKey)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("HOST", "localhost")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGIN", "http://a.test, http://b.test")

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Server.Addr() != "localhost:8080" {
		t.Fatalf("Addr() = %q, want localhost:8080", cfg.Server.Addr())
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties in schema, got %v", schema)
	}
	for _, key := range []string{"server", "session", "agent", "engine"} {
		if _, ok := props[key]; !ok {
			t.Fatalf("schema missing %q", key)
		}
	}
}

func TestWatcherReloads(t *testing.T) {
	path := writeConfig(t, "turnstream.yaml", "agent:\n  max_turns: 5")

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg }, nil)
	w.debounce = 10 * time.Millisecond
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Close()

	// An invalid write is skipped.
	writeFile(t, path, "agent:\n  max_turns: 1000")
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "agent:\n  max_turns: 7")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Agent.MaxTurns == 1000 {
				t.Fatal("invalid config was delivered")
			}
			if cfg.Agent.MaxTurns == 7 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	return writeFile(t, filepath.Join(t.TempDir(), name), contents)
}

func writeFile(t *testing.T, path, contents string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
