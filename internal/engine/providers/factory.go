package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/turnstream/internal/engine"
	"github.com/haasonsaas/turnstream/internal/tools"
	"github.com/haasonsaas/turnstream/internal/workspace"
)

// Provider names accepted by the factory.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderEcho      = "echo"
)

// FactoryConfig selects and configures the engine bound to each session.
type FactoryConfig struct {
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	SystemPrompt string
	MaxTokens    int
	Retry        RetryConfig

	// EchoDelay is the fragment delay of the echo engine.
	EchoDelay time.Duration

	// Tools configures the workspace tools bound to each session.
	Tools tools.Config

	// InstructionFiles are read from each workspace root and appended to
	// SystemPrompt. Nil selects workspace.DefaultInstructionFiles.
	InstructionFiles    []string
	InstructionMaxBytes int64
}

// Factory builds engine handles for sessions.
type Factory struct {
	cfg    FactoryConfig
	logger *slog.Logger
}

var _ engine.Factory = (*Factory)(nil)

// NewFactory validates cfg and returns a factory. The API key falls back to
// OPENAI_API_KEY or ANTHROPIC_API_KEY for the matching provider.
func NewFactory(cfg FactoryConfig, logger *slog.Logger) (*Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderEcho
	}
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case ProviderOpenAI:
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	switch cfg.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderEcho:
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return &Factory{cfg: cfg, logger: logger.With("component", "engine")}, nil
}

// Provider returns the configured provider name.
func (f *Factory) Provider() string {
	return f.cfg.Provider
}

// NewHandle binds a new engine and tool registry to opts.WorkspaceRoot.
func (f *Factory) NewHandle(_ context.Context, opts engine.BindOptions) (*engine.Handle, error) {
	root, err := workspace.NormalizeRoot(opts.WorkspaceRoot, "")
	if err != nil {
		return nil, err
	}

	toolCfg := f.cfg.Tools
	toolCfg.Workspace = root
	registry, err := tools.NewWorkspaceRegistry(toolCfg)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = f.cfg.Model
	}

	instructions, err := workspace.LoadInstructions(workspace.LoaderConfig{
		Root:     root,
		Files:    f.cfg.InstructionFiles,
		MaxBytes: f.cfg.InstructionMaxBytes,
	})
	if err != nil {
		f.logger.Warn("workspace instructions not loaded", "workspace_root", root, "error", err)
		instructions = &workspace.Instructions{}
	}
	systemPrompt := workspace.ComposeSystemPrompt(f.cfg.SystemPrompt, instructions)

	var eng engine.Engine
	switch f.cfg.Provider {
	case ProviderOpenAI:
		oai, err := NewOpenAIEngine(OpenAIConfig{
			APIKey:       f.cfg.APIKey,
			BaseURL:      f.cfg.BaseURL,
			Model:        model,
			SystemPrompt: systemPrompt,
			MaxTokens:    f.cfg.MaxTokens,
			Retry:        f.cfg.Retry,
		}, registry)
		if err != nil {
			return nil, err
		}
		model = oai.cfg.Model
		eng = oai
	case ProviderAnthropic:
		ant, err := NewAnthropicEngine(AnthropicConfig{
			APIKey:       f.cfg.APIKey,
			BaseURL:      f.cfg.BaseURL,
			Model:        model,
			SystemPrompt: systemPrompt,
			MaxTokens:    f.cfg.MaxTokens,
			Retry:        f.cfg.Retry,
		}, registry)
		if err != nil {
			return nil, err
		}
		model = ant.cfg.Model
		eng = ant
	default:
		if model == "" {
			model = ProviderEcho
		}
		eng = NewEchoEngine(EchoConfig{ChunkDelay: f.cfg.EchoDelay})
	}

	f.logger.Debug("engine bound",
		"session_id", opts.SessionID,
		"provider", f.cfg.Provider,
		"model", model,
		"workspace_root", root,
		"instructions", instructions.Names(),
	)
	sessionID := opts.SessionID
	handle := engine.NewHandle(eng, registry, root, model, func() error {
		f.logger.Debug("engine released", "session_id", sessionID)
		return nil
	})
	handle.Instructions = instructions.SystemPromptContext()
	handle.InstructionFiles = instructions.Names()
	return handle, nil
}
