/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"tgvisor/pkg/assistant/types"
	"tgvisor/pkg/config"
	"tgvisor/pkg/module"
	"tgvisor/pkg/modules"
	assistantmod "tgvisor/pkg/modules/assistant"

	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List enabled modules and their handlers in dispatch order",
	Long:  "Prints every handler the router would try, in the order it tries them. No connection or assistant backend is opened.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		return listModules(cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}

// offlineBackend stands in for the assistant so listing needs no API key.
type offlineBackend struct{}

func (offlineBackend) Ask(context.Context, string, string) (types.Reply, error) {
	return types.Reply{}, errors.New("assistant backend not connected")
}

func (offlineBackend) Reset(string) {}

func listModules(cfg *config.Config, w io.Writer) error {
	mods, err := modules.BuildWith(cfg, slog.New(slog.DiscardHandler), func(*config.Config, *slog.Logger) (assistantmod.Backend, error) {
		return offlineBackend{}, nil
	})
	if err != nil {
		return err
	}

	registry, err := module.NewRegistry(mods...)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tMODULE\tHANDLER\tCAPABILITY")
	order := 0
	registry.Each(func(m *module.Module, h *module.Handler) bool {
		order++
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", order, m.ID, h.ID, h.Process.Capability())
		return true
	})
	return tw.Flush()
}
