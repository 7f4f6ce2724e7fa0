package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/turnstream/internal/agent"
	"github.com/haasonsaas/turnstream/internal/cancellation"
	"github.com/haasonsaas/turnstream/internal/config"
	"github.com/haasonsaas/turnstream/internal/engine/providers"
	"github.com/haasonsaas/turnstream/internal/gateway"
	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/internal/tools"
	"github.com/haasonsaas/turnstream/internal/workspace"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// app is a fully wired server: store, registry, orchestrator and gateway.
type app struct {
	cfg            *config.Config
	logger         *observability.Logger
	metrics        *observability.Metrics
	store          *sessions.Store
	cancels        *cancellation.Registry
	server         *gateway.Server
	tracerShutdown func(context.Context) error
}

// newApp wires every component from cfg. Nothing listens until start.
func newApp(cfg *config.Config, logger *observability.Logger) (*app, error) {
	log := logger.Slog()

	factory, err := providers.NewFactory(providers.FactoryConfig{
		Provider:     cfg.Engine.Provider,
		Model:        cfg.Engine.Model,
		BaseURL:      cfg.Engine.BaseURL,
		APIKey:       cfg.Engine.APIKey,
		SystemPrompt: cfg.Engine.SystemPrompt,
		MaxTokens:    cfg.Engine.MaxTokens,
		Retry: providers.RetryConfig{
			MaxRetries: cfg.Engine.MaxRetries,
			RetryDelay: cfg.Engine.RetryDelay,
		},
		EchoDelay: cfg.Engine.EchoDelay,
		Tools: tools.Config{
			MaxReadBytes: int(cfg.Tools.MaxReadBytes),
			MaxFiles:     cfg.Tools.MaxFiles,
		},
		InstructionFiles:    cfg.Workspace.InstructionFiles,
		InstructionMaxBytes: cfg.Workspace.InstructionMaxBytes,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("engine factory: %w", err)
	}

	tracer, tracerShutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "turnstream",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cancels := cancellation.NewRegistry()

	store := sessions.NewStore(factory, sessions.Config{
		Timeout:          cfg.Session.Timeout,
		SweepInterval:    cfg.Session.SweepInterval,
		DefaultOwner:     cfg.Session.DefaultOwner,
		DefaultWorkspace: cfg.Session.DefaultWorkspace,
	},
		sessions.WithLogger(log),
		sessions.WithObserver(gateway.SessionObserver(metrics)),
		sessions.WithBusyFunc(cancels.SessionBusy),
	)

	orchestrator := agent.NewOrchestrator(store, cancels, agent.LoopConfig{
		MaxTurns:     cfg.Agent.MaxTurns,
		ResponseMode: models.ParseResponseMode(cfg.Agent.ResponseMode),
		DefaultOwner: cfg.Session.DefaultOwner,
		References: workspace.ProcessorConfig{
			MaxFileBytes: cfg.References.MaxFileBytes,
			MaxFiles:     cfg.References.MaxFiles,
		},
	},
		agent.WithLogger(log),
		agent.WithMetrics(metrics),
		agent.WithTracer(tracer),
	)

	server := gateway.NewServer(gateway.Config{
		Addr:              cfg.Server.Addr(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		CORSOrigins:       cfg.Server.CORSOrigins,
		CommandsDir:       cfg.Workspace.CommandsDir,
	}, store, cancels, orchestrator,
		gateway.WithLogger(log),
		gateway.WithMetrics(metrics),
	)

	return &app{
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
		store:          store,
		cancels:        cancels,
		server:         server,
		tracerShutdown: tracerShutdown,
	}, nil
}

func (a *app) start(ctx context.Context) error {
	if err := a.store.Start(); err != nil {
		return err
	}
	if err := a.server.Start(ctx); err != nil {
		_ = a.store.Shutdown(ctx)
		return err
	}
	return nil
}

// stop shuts the server down, which cancels in-flight turns and releases
// sessions, then flushes traces.
func (a *app) stop(ctx context.Context) error {
	var result *multierror.Error
	if err := a.server.Stop(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.tracerShutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("tracer shutdown: %w", err))
	}
	return result.ErrorOrNil()
}

// applyReload applies the settings that can change without a restart.
func (a *app) applyReload(cfg *config.Config) {
	if cfg.Logging.Level != a.cfg.Logging.Level {
		a.logger.SetLevel(cfg.Logging.Level)
		a.logger.Slog().Info("log level changed", "level", cfg.Logging.Level)
	}
	a.cfg.Logging.Level = cfg.Logging.Level
}

// runServe implements the serve command.
func runServe(ctx context.Context, configPath string, debug, watch bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger.Slog())

	logger.Slog().Info("starting turnstream",
		"version", version,
		"commit", commit,
		"config", configPath,
		"provider", cfg.Engine.Provider,
		"debug", debug,
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	if watch && configPath != "" {
		watcher := config.NewWatcher(configPath, func(next *config.Config) {
			if debug {
				next.Logging.Level = "debug"
			}
			a.applyReload(next)
		}, logger.Slog())
		if err := watcher.Start(ctx); err != nil {
			logger.Slog().Warn("config watch disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	logger.Slog().Info("turnstream started", "addr", a.server.Addr())
	<-ctx.Done()
	logger.Slog().Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := a.stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Slog().Info("turnstream stopped gracefully")
	return nil
}
