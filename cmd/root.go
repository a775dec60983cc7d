/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"tgvisor/pkg/bootstrap"
	"tgvisor/pkg/config"
	"tgvisor/pkg/logger"
	"tgvisor/pkg/supervisor"

	"github.com/spf13/cobra"
)

// Exit codes returned by Execute.
const (
	exitOK                = 0
	exitFailure           = 1
	exitAuthentication    = 2
	exitAuthorizationLost = 3
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "tgvisor",
	Short:         "Supervise a Telegram connection and route updates to modules",
	Long:          "tgvisor keeps one authenticated Telegram connection alive, reconnects with backoff, and routes every update through the configured modules.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON or YAML config file (default: $TGVISOR_CONFIG, then ./config.{json,yaml} or ./config/config.{json,yaml})")
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tgvisor: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var authErr *bootstrap.AuthenticationError
	switch {
	case errors.As(err, &authErr):
		return exitAuthentication
	case errors.Is(err, supervisor.ErrAuthorizationLost):
		return exitAuthorizationLost
	default:
		return exitFailure
	}
}

// loadConfig resolves the config file from the flag or the usual locations.
// Without any file the environment alone configures the process.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if path = strings.TrimSpace(path); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadConfig()
		if errors.Is(err, config.ErrConfigNotFound) {
			cfg, err = config.FromEnv()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger installs the configured logger as the slog default.
func setupLogger(cfg *config.Config) (io.Closer, error) {
	appLogger, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)
	return closer, nil
}
