package agent

import (
	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// Bounds of LoopConfig.MaxTurns.
const (
	DefaultMaxTurns = 10
	MaxMaxTurns     = 300
)

// LoopConfig configures the turn orchestrator.
type LoopConfig struct {
	// MaxTurns caps model round trips per request. Reaching it ends the turn
	// stream normally.
	// Default: 10, capped at 300
	MaxTurns int

	// ResponseMode is the snapshot mode used when a request names none.
	// Default: incremental
	ResponseMode models.ResponseMode

	// DefaultOwner owns sessions created implicitly by a chat request.
	// Default: the store's default owner
	DefaultOwner string

	// References bounds @path expansion.
	References workspace.ProcessorConfig
}

// DefaultLoopConfig returns the default configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxTurns:     DefaultMaxTurns,
		ResponseMode: models.ModeIncremental,
	}
}

func sanitizeLoopConfig(cfg LoopConfig) LoopConfig {
	defaults := DefaultLoopConfig()
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaults.MaxTurns
	}
	if cfg.MaxTurns > MaxMaxTurns {
		cfg.MaxTurns = MaxMaxTurns
	}
	if cfg.ResponseMode == "" {
		cfg.ResponseMode = defaults.ResponseMode
	}
	return cfg
}
