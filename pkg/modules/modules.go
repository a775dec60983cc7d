// Package modules builds the built-in module set from configuration.
package modules

import (
	"fmt"
	"log/slog"

	"tgvisor/pkg/assistant"
	"tgvisor/pkg/config"
	"tgvisor/pkg/module"
	assistantmod "tgvisor/pkg/modules/assistant"
	"tgvisor/pkg/modules/logging"
	"tgvisor/pkg/modules/ping"
)

// AssistantFactory builds the assistant backend. Tests swap it for a fake.
type AssistantFactory func(cfg *config.Config, log *slog.Logger) (assistantmod.Backend, error)

func defaultAssistant(cfg *config.Config, log *slog.Logger) (assistantmod.Backend, error) {
	return assistant.New(cfg, log)
}

// Build returns the enabled modules in configured order.
func Build(cfg *config.Config, log *slog.Logger) ([]module.Module, error) {
	return BuildWith(cfg, log, defaultAssistant)
}

func BuildWith(cfg *config.Config, log *slog.Logger, newAssistant AssistantFactory) ([]module.Module, error) {
	if log == nil {
		log = slog.Default()
	}
	if newAssistant == nil {
		newAssistant = defaultAssistant
	}

	names := cfg.EnabledModules()
	out := make([]module.Module, 0, len(names))
	for _, name := range names {
		switch name {
		case logging.ModuleID:
			out = append(out, logging.New(log))
		case ping.ModuleID:
			out = append(out, ping.New(log))
		case assistantmod.ModuleID:
			backend, err := newAssistant(cfg, log)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", name, err)
			}
			m, err := assistantmod.New(backend, log)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", name, err)
			}
			out = append(out, m)
		default:
			return nil, fmt.Errorf("unknown module %q", name)
		}
	}

	log.With("component", "modules").Debug("Modules built", "count", len(out), "order", names)
	return out, nil
}

// Registry builds the enabled modules and freezes them into a registry.
func Registry(cfg *config.Config, log *slog.Logger) (*module.Registry, error) {
	mods, err := Build(cfg, log)
	if err != nil {
		return nil, err
	}
	return module.NewRegistry(mods...)
}
