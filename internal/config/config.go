// Package config loads the turnstream server configuration from YAML or
// JSON5 files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/turnstream/pkg/models"
)

// Config is the main configuration structure for turnstream.
type Config struct {
	Version    int              `yaml:"version" json:"version,omitempty"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Session    SessionConfig    `yaml:"session" json:"session"`
	Agent      AgentConfig      `yaml:"agent" json:"agent"`
	Engine     EngineConfig     `yaml:"engine" json:"engine"`
	Tools      ToolsConfig      `yaml:"tools" json:"tools"`
	Workspace  WorkspaceConfig  `yaml:"workspace" json:"workspace"`
	References ReferencesConfig `yaml:"references" json:"references"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Tracing    TracingConfig    `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the listen address (default: 0.0.0.0)
	Host string `yaml:"host" json:"host"`

	// Port is the listen port (default: 3001)
	Port int `yaml:"port" json:"port"`

	// ReadHeaderTimeout bounds request header reads (default: 10s)
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`

	// ShutdownTimeout bounds graceful shutdown (default: 15s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// CORSOrigins lists allowed origins; "*" allows any (default: ["*"])
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// Timeout is the idle expiry (default: 30m)
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// SweepInterval is the expiry sweep period (default: 60s)
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`

	// DefaultOwner owns sessions created without a user id (default: local-user)
	DefaultOwner string `yaml:"default_owner" json:"default_owner"`

	// DefaultWorkspace is the workspace root of sessions created without one
	// (default: the process working directory)
	DefaultWorkspace string `yaml:"default_workspace" json:"default_workspace"`
}

// AgentConfig configures the turn orchestrator.
type AgentConfig struct {
	// MaxTurns caps model round trips per request, 1..300 (default: 10)
	MaxTurns int `yaml:"max_turns" json:"max_turns"`

	// ResponseMode is "incremental" or "full" (default: incremental)
	ResponseMode string `yaml:"response_mode" json:"response_mode"`
}

// EngineConfig selects the model provider.
type EngineConfig struct {
	// Provider is openai, anthropic or echo (default: echo)
	Provider     string        `yaml:"provider" json:"provider"`
	Model        string        `yaml:"model" json:"model"`
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	APIKey       string        `yaml:"api_key" json:"api_key"`
	SystemPrompt string        `yaml:"system_prompt" json:"system_prompt"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// EchoDelay paces the echo engine's fragments
	EchoDelay time.Duration `yaml:"echo_delay" json:"echo_delay"`
}

// ToolsConfig configures the workspace tools.
type ToolsConfig struct {
	// MaxReadBytes caps one file read (default: 200000)
	MaxReadBytes int64 `yaml:"max_read_bytes" json:"max_read_bytes"`

	// MaxFiles caps read_many_files (default: 50)
	MaxFiles int `yaml:"max_files" json:"max_files"`
}

// WorkspaceConfig names the per-workspace files the server reads.
type WorkspaceConfig struct {
	// InstructionFiles are appended to the system prompt when present in a
	// session's workspace root (default: AGENTS.md, TURNSTREAM.md)
	InstructionFiles []string `yaml:"instruction_files" json:"instruction_files"`

	// InstructionMaxBytes caps each instruction file (default: 32000)
	InstructionMaxBytes int64 `yaml:"instruction_max_bytes" json:"instruction_max_bytes"`

	// CommandsDir holds TOML prompt commands, relative to the workspace root
	// (default: .turnstream/commands)
	CommandsDir string `yaml:"commands_dir" json:"commands_dir"`
}

// ReferencesConfig configures @path expansion.
type ReferencesConfig struct {
	// MaxFileBytes caps each referenced file (default: 100000)
	MaxFileBytes int64 `yaml:"max_file_bytes" json:"max_file_bytes"`

	// MaxFiles caps referenced files per message (default: 20)
	MaxFiles int `yaml:"max_files" json:"max_files"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// TracingConfig configures OpenTelemetry export. An empty endpoint disables
// tracing.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
	Environment  string  `yaml:"environment" json:"environment"`
}

// Limits on agent.max_turns.
const (
	MinMaxTurns = 1
	MaxMaxTurns = 300
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path, resolves $include directives, expands environment
// variables, applies defaults and environment overrides, and validates
// the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if cfg.Version != 0 {
		if err := ValidateVersion(cfg.Version); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults with environment
// overrides when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		return Load(path)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Session.Timeout == 0 {
		cfg.Session.Timeout = 30 * time.Minute
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = 60 * time.Second
	}
	if cfg.Session.DefaultOwner == "" {
		cfg.Session.DefaultOwner = "local-user"
	}
	if cfg.Agent.MaxTurns == 0 {
		cfg.Agent.MaxTurns = 10
	}
	if cfg.Agent.ResponseMode == "" {
		cfg.Agent.ResponseMode = string(models.ModeIncremental)
	}
	if cfg.Engine.Provider == "" {
		cfg.Engine.Provider = "echo"
	}
	if cfg.Tools.MaxReadBytes == 0 {
		cfg.Tools.MaxReadBytes = 200_000
	}
	if cfg.Tools.MaxFiles == 0 {
		cfg.Tools.MaxFiles = 50
	}
	if cfg.Workspace.InstructionFiles == nil {
		cfg.Workspace.InstructionFiles = []string{"AGENTS.md", "TURNSTREAM.md"}
	}
	if cfg.Workspace.InstructionMaxBytes == 0 {
		cfg.Workspace.InstructionMaxBytes = 32_000
	}
	if cfg.Workspace.CommandsDir == "" {
		cfg.Workspace.CommandsDir = ".turnstream/commands"
	}
	if cfg.References.MaxFileBytes == 0 {
		cfg.References.MaxFileBytes = 100_000
	}
	if cfg.References.MaxFiles == 0 {
		cfg.References.MaxFiles = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvOverrides applies PORT, HOST, LOG_LEVEL and CORS_ORIGIN.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGIN")); v != "" {
		var origins []string
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) > 0 {
			cfg.Server.CORSOrigins = origins
		}
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var issues []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port must be 0..65535, got %d", c.Server.Port))
	}
	if c.Session.Timeout < 0 {
		issues = append(issues, "session.timeout must not be negative")
	}
	if c.Session.SweepInterval < 0 {
		issues = append(issues, "session.sweep_interval must not be negative")
	}
	if c.Agent.MaxTurns < MinMaxTurns || c.Agent.MaxTurns > MaxMaxTurns {
		issues = append(issues, fmt.Sprintf("agent.max_turns must be %d..%d, got %d", MinMaxTurns, MaxMaxTurns, c.Agent.MaxTurns))
	}
	switch models.ResponseMode(strings.ToLower(c.Agent.ResponseMode)) {
	case models.ModeIncremental, models.ModeFull:
	default:
		issues = append(issues, fmt.Sprintf("agent.response_mode must be incremental or full, got %q", c.Agent.ResponseMode))
	}
	switch strings.ToLower(c.Engine.Provider) {
	case "openai", "anthropic", "echo":
	default:
		issues = append(issues, fmt.Sprintf("engine.provider must be openai, anthropic or echo, got %q", c.Engine.Provider))
	}
	if c.Engine.MaxRetries < 0 {
		issues = append(issues, "engine.max_retries must not be negative")
	}
	if c.Tools.MaxReadBytes < 0 || c.References.MaxFileBytes < 0 || c.Workspace.InstructionMaxBytes < 0 {
		issues = append(issues, "byte limits must not be negative")
	}
	if dir := filepath.Clean(c.Workspace.CommandsDir); filepath.IsAbs(dir) || dir == ".." || strings.HasPrefix(dir, ".."+string(filepath.Separator)) {
		issues = append(issues, fmt.Sprintf("workspace.commands_dir must be relative to the workspace root, got %q", c.Workspace.CommandsDir))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be 0..1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
