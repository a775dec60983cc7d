/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"tgvisor/pkg/config"
	"tgvisor/pkg/session"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or remove the persisted session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print where the session lives and whether one is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args
		return withSessionStore(func(cfg *config.Config, store session.Store) error {
			return describeSession(cmd.Context(), cfg, store, cmd.OutOrStdout())
		})
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted session so the next run signs in again",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args
		return withSessionStore(func(cfg *config.Config, store session.Store) error {
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session cleared (%s %s)\n", cfg.SessionBackend(), cfg.SessionPath())
			return nil
		})
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

func withSessionStore(fn func(cfg *config.Config, store session.Store) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	return fn(cfg, store)
}

type sessionTimestamper interface {
	UpdatedAt(ctx context.Context) (time.Time, bool, error)
}

func describeSession(ctx context.Context, cfg *config.Config, store session.Store, w io.Writer) error {
	data, err := store.Load(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "backend: %s\n", cfg.SessionBackend())
	if cfg.SessionBackend() != config.SessionBackendMemory {
		fmt.Fprintf(w, "path: %s\n", cfg.SessionPath())
	}
	if data == nil {
		fmt.Fprintln(w, "stored: no")
		return nil
	}
	fmt.Fprintln(w, "stored: yes")
	fmt.Fprintf(w, "size: %d bytes\n", len(data))

	if ts, ok := store.(sessionTimestamper); ok {
		at, found, err := ts.UpdatedAt(ctx)
		if err != nil {
			return err
		}
		if found {
			fmt.Fprintf(w, "updated: %s\n", at.Format(time.RFC3339))
		}
	}
	return nil
}
