/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"tgvisor/pkg/bootstrap"
	"tgvisor/pkg/client"
	"tgvisor/pkg/client/telegram"
	"tgvisor/pkg/config"
	"tgvisor/pkg/credentials"
	"tgvisor/pkg/metrics"
	"tgvisor/pkg/modules"
	"tgvisor/pkg/router"
	"tgvisor/pkg/scheduler"
	"tgvisor/pkg/session"
	"tgvisor/pkg/status"
	"tgvisor/pkg/supervisor"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect and serve updates until interrupted",
	Long:  "Authenticates the stored session (prompting for missing credentials), then pulls updates, routes them through the enabled modules and reconnects with exponential backoff on transient failures.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		closer, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runSupervisor(runCtx, cfg, slog.Default(), cmd.InOrStdin(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runSupervisor wires every component and blocks until the supervisor stops.
func runSupervisor(ctx context.Context, cfg *config.Config, log *slog.Logger, in io.Reader, out io.Writer) error {
	log = log.With("component", "cmd.run")
	m := metrics.New()

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("Failed to close session store", "error", err)
		}
	}()

	flow, err := bootstrap.ParseFlow(cfg.AuthMode())
	if err != nil {
		return err
	}

	registry, err := modules.Registry(cfg, log)
	if err != nil {
		return fmt.Errorf("build modules: %w", err)
	}

	slot := &client.Slot{}
	sup, err := supervisor.New(supervisor.Options{
		Dialer: telegram.NewDialer(telegram.DialerOptions{
			APIServer:   cfg.Transport.APIServer,
			PollTimeout: cfg.PollTimeout(),
			Logger:      log,
		}),
		Store:      store,
		Bootstrap:  bootstrap.New(flow, credentialProvider(cfg, in, out), store, log),
		Dispatcher: router.New(registry, log, m),
		Client: client.Config{
			AppID:    cfg.App.ID,
			AppHash:  cfg.App.Hash,
			ProxyURL: cfg.Transport.Proxy,
		},
		Slot:      slot,
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("configure supervisor: %w", err)
	}

	sched, err := scheduler.New(cfg.Schedule, slot, log, m)
	if err != nil {
		return fmt.Errorf("configure scheduler: %w", err)
	}

	var statusSrv *status.Server
	if cfg.Status.Enabled {
		statusSrv, err = status.New(status.Options{
			Address: cfg.StatusAddress(),
			Source:  sup,
			Jobs:    sched,
			Metrics: m,
			Logger:  log,
		})
		if err != nil {
			return fmt.Errorf("configure status server: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Go(func() { sched.Run(runCtx) })
	if statusSrv != nil {
		wg.Go(func() {
			if err := statusSrv.Run(runCtx); err != nil {
				log.Error("Status server stopped", "error", err)
			}
		})
	}

	log.Info("Supervisor starting",
		"auth", flow,
		"session_backend", cfg.SessionBackend(),
		"modules", registry.Len(),
		"jobs", sched.Len(),
		"workers", cfg.Dispatch.Workers,
	)
	err = sup.Run(runCtx)
	cancel()
	wg.Wait()

	if err != nil {
		log.Error("Supervisor stopped", "error", err)
		return err
	}
	log.Info("Supervisor stopped")
	return nil
}

// credentialProvider serves configured values first and falls back to an
// interactive prompt unless prompting is disabled.
func credentialProvider(cfg *config.Config, in io.Reader, out io.Writer) credentials.Provider {
	static := credentials.Static{
		PhoneNumber: cfg.Auth.Phone,
		Token:       cfg.Auth.BotToken,
	}
	if cfg.Auth.DisablePrompt {
		return static
	}
	return credentials.Fallback(static, credentials.NewPrompt(in, out))
}

// openSessionStore returns the configured store and a func releasing it.
func openSessionStore(cfg *config.Config) (session.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.SessionBackend() {
	case config.SessionBackendFile:
		return session.NewFileStore(cfg.SessionPath()), noop, nil
	case config.SessionBackendSQLite:
		name := cfg.Session.Name
		if name == "" {
			name = session.DefaultName
		}
		store, err := session.OpenSQLite(cfg.SessionPath(), name)
		if err != nil {
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
		return store, store.Close, nil
	case config.SessionBackendMemory:
		return session.NewMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend())
	}
}
