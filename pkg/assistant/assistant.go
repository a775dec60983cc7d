// Package assistant selects the LLM backend behind the assistant module.
package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"tgvisor/pkg/assistant/fantasy"
	"tgvisor/pkg/assistant/openai"
	"tgvisor/pkg/assistant/opencode"
	"tgvisor/pkg/assistant/types"
	"tgvisor/pkg/config"
)

// Client answers prompts within a conversation identified by a caller key.
type Client interface {
	Health(ctx context.Context) error
	Ask(ctx context.Context, key string, prompt string) (types.Reply, error)
	Reset(key string)
}

func New(cfg *config.Config, log *slog.Logger) (Client, error) {
	if log == nil {
		log = slog.Default()
	}

	backend := cfg.AssistantProvider()
	log.With("component", "assistant.factory").Debug("Resolving assistant backend", "provider", backend)

	switch backend {
	case "openai":
		return openai.New(cfg.Modules.Assistant, log)
	case "opencode":
		return opencode.New(cfg.Modules.Assistant, log)
	case "fantasy":
		return fantasy.New(cfg.Modules.Assistant, log)
	default:
		return nil, fmt.Errorf("unsupported assistant provider: %s", backend)
	}
}
