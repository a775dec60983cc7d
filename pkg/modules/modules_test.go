package modules

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgvisor/pkg/assistant/types"
	"tgvisor/pkg/config"
	assistantmod "tgvisor/pkg/modules/assistant"
)

type stubBackend struct{}

func (stubBackend) Ask(context.Context, string, string) (types.Reply, error) {
	return types.Reply{Text: "ok"}, nil
}

func (stubBackend) Reset(string) {}

func moduleIDs(t *testing.T, cfg *config.Config, factory AssistantFactory) []string {
	t.Helper()
	mods, err := BuildWith(cfg, slog.New(slog.DiscardHandler), factory)
	require.NoError(t, err)

	ids := make([]string, 0, len(mods))
	for _, m := range mods {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestBuildDefaults(t *testing.T) {
	assert.Equal(t, []string{"logging", "ping"}, moduleIDs(t, &config.Config{}, nil))
}

func TestBuildKeepsConfiguredOrder(t *testing.T) {
	cfg := &config.Config{}
	cfg.Modules.Enabled = []string{"assistant", "ping", "logging"}

	factory := func(*config.Config, *slog.Logger) (assistantmod.Backend, error) { return stubBackend{}, nil }
	assert.Equal(t, []string{"assistant", "ping", "logging"}, moduleIDs(t, cfg, factory))
}

func TestBuildPropagatesAssistantError(t *testing.T) {
	cfg := &config.Config{}
	cfg.Modules.Enabled = []string{"assistant"}

	boom := errors.New("no api key")
	_, err := BuildWith(cfg, nil, func(*config.Config, *slog.Logger) (assistantmod.Backend, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestBuildRejectsUnknownModule(t *testing.T) {
	cfg := &config.Config{}
	cfg.Modules.Enabled = []string{"weather"}

	_, err := BuildWith(cfg, nil, nil)
	assert.Error(t, err)
}

func TestRegistryFreezesModules(t *testing.T) {
	reg, err := Registry(&config.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
}
