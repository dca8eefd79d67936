package main

import (
	"context"
	"fmt"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/dagbolade/clipboard-guardian/internal/audit"
	"github.com/dagbolade/clipboard-guardian/internal/auth"
	"github.com/dagbolade/clipboard-guardian/internal/clipboard"
	"github.com/dagbolade/clipboard-guardian/internal/config"
	"github.com/dagbolade/clipboard-guardian/internal/mediation"
	"github.com/dagbolade/clipboard-guardian/internal/metrics"
	"github.com/dagbolade/clipboard-guardian/internal/monitor"
	"github.com/dagbolade/clipboard-guardian/internal/policy"
	"github.com/dagbolade/clipboard-guardian/internal/prompt"
	"github.com/dagbolade/clipboard-guardian/internal/protection"
	"github.com/dagbolade/clipboard-guardian/internal/server"
	"github.com/dagbolade/clipboard-guardian/internal/suppress"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Guard the clipboard and serve the approval API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log.Info().Msg("starting clipboard guardian")

			ctx, cancel := setupSignalHandler()
			defer cancel()

			if err := run(ctx, cfg); err != nil {
				log.Error().Err(err).Msg("application error")
				return err
			}

			log.Info().Msg("guardian stopped successfully")
			return nil
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srvCfg := server.LoadConfig()
	if err := srvCfg.Validate(cfg.RequireAuth); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collector := metrics.New()

	history, err := initHistory(cfg, collector)
	if err != nil {
		return err
	}
	defer func() {
		if err := history.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close history")
		}
	}()

	state, err := protection.Load(cfg.StatePath, history)
	if err != nil {
		return err
	}
	log.Info().Bool("enabled", state.Enabled()).Msg("protection state loaded")

	cb, err := initClipboard(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := cb.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close clipboard watcher")
		}
	}()

	policyEngine, err := initPolicyEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := policyEngine.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close policy engine")
		}
	}()

	channel := approval.NewChannel()
	defer channel.Close()
	collector.RegisterPending(func() float64 { return float64(channel.Len()) })

	hub := prompt.NewHub(channel)
	defer hub.Shutdown()

	core := mediation.New(mediation.Config{
		Timeout:  cfg.DecisionTimeout,
		CacheTTL: cfg.CacheTTL,
	}, channel, initPrompter(cfg.PromptMode, hub, channel), collector)

	mon := monitor.New(monitor.Config{
		Suppress: cfg.Suppress,
		Capture: clipboard.CaptureOptions{
			MaxAttempts:     cfg.SnapshotAttempts,
			RetryDelay:      cfg.SnapshotRetry,
			PreviewMaxChars: cfg.PreviewMaxChars,
		},
	}, monitor.Deps{
		Clipboard: cb,
		Window:    suppress.New(nil),
		Core:      core,
		Policy:    policyEngine,
		State:     state,
		History:   history,
		Metrics:   collector,
	})

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		mon.Run(ctx, cb)
	}()

	authManager := initAuthManager(cfg)
	srv := server.New(srvCfg, server.Deps{
		Guard:           mon,
		Channel:         core.Channel(),
		History:         history,
		Protection:      state,
		Hub:             hub,
		Auth:            authManager,
		AuthUsers:       cfg.AuthUsers,
		Metrics:         collector,
		DecisionTimeout: core.Timeout(),
	})

	err = runServer(ctx, srv)
	cancel()
	<-monitorDone
	return err
}

func initHistory(cfg config.Config, collector *metrics.Collector) (*audit.Logger, error) {
	log.Info().Str("backend", cfg.HistoryBackend).Str("path", cfg.HistoryPath).Msg("initializing history")

	var (
		store audit.Store
		err   error
	)
	switch cfg.HistoryBackend {
	case config.HistorySQLite:
		store, err = audit.NewSQLiteStore(cfg.HistoryPath)
	default:
		store, err = audit.OpenJSONL(cfg.HistoryPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	return audit.NewLogger(store, audit.LoggerOptions{
		QueueSize: cfg.HistoryQueue,
		Metrics:   collector,
	}), nil
}

func initClipboard(cfg config.Config) (*clipboard.File, error) {
	log.Info().Str("path", cfg.ClipboardPath).Msg("opening clipboard")

	cb, err := clipboard.OpenFile(cfg.ClipboardPath, nil)
	if err != nil {
		return nil, err
	}
	if err := cb.Watch(); err != nil {
		return nil, err
	}
	log.Info().Str("path", cb.Path()).Msg("watching clipboard")
	return cb, nil
}

func initPolicyEngine(ctx context.Context, cfg config.Config) (*policy.Engine, error) {
	log.Info().
		Str("dir", cfg.PolicyDir).
		Str("exempt_file", cfg.ExemptFile).
		Str("self", cfg.SelfActorID).
		Msg("initializing policy engine")

	engine, err := policy.NewEngine(ctx, policy.EngineConfig{
		SelfID:     cfg.SelfActorID,
		PolicyDir:  cfg.PolicyDir,
		ExemptFile: cfg.ExemptFile,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Strs("modules", engine.Modules()).Msg("policy engine initialized")
	return engine, nil
}

// initPrompter picks how requests reach a human. "auto" tries connected
// approver clients first and falls back to a native dialog.
func initPrompter(mode string, hub *prompt.Hub, channel *approval.Channel) mediation.Prompter {
	log.Info().Str("mode", mode).Msg("initializing prompter")

	switch mode {
	case config.PromptDialog:
		return prompt.NewDialog(channel)
	case config.PromptAuto:
		return prompt.Chain{hub, prompt.NewDialog(channel)}
	default:
		return hub
	}
}

func initAuthManager(cfg config.Config) *auth.Manager {
	log.Info().Bool("required", cfg.RequireAuth).Msg("initializing auth manager")

	return auth.NewManager(auth.Config{
		JWTSecret:   cfg.JWTSecret,
		RequireAuth: cfg.RequireAuth,
	})
}

func runServer(ctx context.Context, srv *server.Server) error {
	errChan := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}
