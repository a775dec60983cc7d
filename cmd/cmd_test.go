package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tgvisor/pkg/bootstrap"
	"tgvisor/pkg/config"
	"tgvisor/pkg/credentials"
	"tgvisor/pkg/session"
	"tgvisor/pkg/supervisor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"TGVISOR_CONFIG", "TGVISOR_API_ID", "TGVISOR_API_HASH", "TGVISOR_BOT_TOKEN", "TGVISOR_PHONE", "TGVISOR_PROXY", "TGVISOR_MODULES"} {
		t.Setenv(key, "")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "clean", err: nil, want: exitOK},
		{name: "authentication", err: fmt.Errorf("run: %w", &bootstrap.AuthenticationError{Step: bootstrap.StepBotSignIn, Err: errors.New("401")}), want: exitAuthentication},
		{name: "authorization lost", err: fmt.Errorf("serve: %w", supervisor.ErrAuthorizationLost), want: exitAuthorizationLost},
		{name: "other", err: errors.New("boom"), want: exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestLoadConfigFallsBackToEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("TGVISOR_BOT_TOKEN", "123:abc")
	t.Setenv("TGVISOR_MODULES", "ping")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Auth.BotToken)
	assert.Equal(t, []string{"ping"}, cfg.EnabledModules())
}

func TestLoadConfigFromFlagPath(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auth":{"mode":"phone","phone":"+15550001"},"session":{"backend":"memory"}}`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.AuthModePhone, cfg.AuthMode())
	assert.Equal(t, config.SessionBackendMemory, cfg.SessionBackend())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"modules":{"enabled":["weather"]}}`), 0o600))

	_, err := loadConfig(path)
	assert.ErrorContains(t, err, "unknown module")
}

func TestLoadConfigMissingFlagPath(t *testing.T) {
	clearConfigEnv(t)
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestOpenSessionStoreBackends(t *testing.T) {
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		cfg := &config.Config{Session: config.SessionConfig{Backend: "file", Path: filepath.Join(dir, "bot.session")}}
		store, closeStore, err := openSessionStore(cfg)
		require.NoError(t, err)
		defer closeStore()

		fs, ok := store.(*session.FileStore)
		require.True(t, ok, "store type = %T", store)
		assert.Equal(t, filepath.Join(dir, "bot.session"), fs.Path())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{Session: config.SessionConfig{Backend: "sqlite", Path: filepath.Join(dir, "sessions.db")}}
		store, closeStore, err := openSessionStore(cfg)
		require.NoError(t, err)

		_, ok := store.(*session.SQLiteStore)
		require.True(t, ok, "store type = %T", store)
		assert.NoError(t, closeStore())
	})

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{Session: config.SessionConfig{Backend: "memory"}}
		store, closeStore, err := openSessionStore(cfg)
		require.NoError(t, err)
		defer closeStore()

		_, ok := store.(*session.MemoryStore)
		assert.True(t, ok, "store type = %T", store)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := openSessionStore(&config.Config{Session: config.SessionConfig{Backend: "redis"}})
		assert.Error(t, err)
	})
}

func TestCredentialProviderPrefersConfiguredValues(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{BotToken: "123:abc", Phone: "+15550001"}}
	creds := credentialProvider(cfg, strings.NewReader(""), &bytes.Buffer{})

	token, err := creds.BotToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123:abc", token)

	phone, err := creds.Phone(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "+15550001", phone)
}

func TestCredentialProviderWithoutPrompt(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{DisablePrompt: true}}
	creds := credentialProvider(cfg, nil, nil)

	_, err := creds.Password(context.Background())
	assert.ErrorIs(t, err, credentials.ErrNotProvided)
}

func TestListModulesInDispatchOrder(t *testing.T) {
	cfg := &config.Config{Modules: config.ModulesConfig{Enabled: []string{"ping", "assistant", "logging"}}}
	var out bytes.Buffer

	require.NoError(t, listModules(cfg, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "ORDER"))

	want := [][]string{
		{"1", "ping", "command", "new_message"},
		{"2", "ping", "callback", "callback_query"},
		{"3", "assistant", "ask", "new_message"},
		{"4", "assistant", "reset", "new_message"},
		{"5", "logging", "all", "update"},
		{"6", "logging", "edited", "message_edited"},
		{"7", "logging", "deleted", "message_deleted"},
	}
	for i, fields := range want {
		assert.Equal(t, fields, strings.Fields(lines[i+1]), "row %d", i+1)
	}
}

func TestDescribeSession(t *testing.T) {
	ctx := context.Background()

	t.Run("file without session", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bot.session")
		cfg := &config.Config{Session: config.SessionConfig{Backend: "file", Path: path}}
		var out bytes.Buffer

		require.NoError(t, describeSession(ctx, cfg, session.NewFileStore(path), &out))
		assert.Contains(t, out.String(), "path: "+path)
		assert.Contains(t, out.String(), "stored: no")
	})

	t.Run("sqlite with session", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sessions.db")
		cfg := &config.Config{Session: config.SessionConfig{Backend: "sqlite", Path: path}}
		store, err := session.OpenSQLite(path, session.DefaultName)
		require.NoError(t, err)
		defer store.Close()
		require.NoError(t, store.Save(ctx, []byte(`{"token":"x"}`)))

		var out bytes.Buffer
		require.NoError(t, describeSession(ctx, cfg, store, &out))
		assert.Contains(t, out.String(), "backend: sqlite")
		assert.Contains(t, out.String(), "stored: yes")
		assert.Contains(t, out.String(), "size: 13 bytes")
		assert.Contains(t, out.String(), "updated: ")
	})

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{Session: config.SessionConfig{Backend: "memory"}}
		var out bytes.Buffer

		require.NoError(t, describeSession(ctx, cfg, session.NewMemoryStore(), &out))
		assert.NotContains(t, out.String(), "path:")
	})
}

func TestConfigFlagDescribesBothFormats(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	for _, want := range []string{"JSON", "YAML", "config.{json,yaml}", "$TGVISOR_CONFIG"} {
		assert.Contains(t, flag.Usage, want)
	}
}
