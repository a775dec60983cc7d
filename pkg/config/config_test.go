package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "app": {"id": 12345, "hash": "abcdef"},
	  "transport": {"proxy": "socks5://127.0.0.1:1080", "poll_timeout_seconds": 10},
	  "auth": {"mode": "phone", "phone": "+15550001"},
	  "session": {"backend": "sqlite", "path": "data/sessions.db", "name": "main"},
	  "dispatch": {"workers": 4, "queue_size": 64},
	  "modules": {"enabled": ["logging", "assistant"], "assistant": {"provider": "opencode", "model": "openai/gpt-5.2"}},
	  "schedule": [{"name": "daily", "spec": "0 9 * * *", "chat_id": -100, "text": "good morning"}],
	  "status": {"enabled": true, "host": "0.0.0.0", "port": 9000},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("TGVISOR_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	if cfg.App.ID != 12345 || cfg.App.Hash != "abcdef" {
		t.Fatalf("app = %+v", cfg.App)
	}
	if cfg.AuthMode() != AuthModePhone {
		t.Fatalf("auth mode = %q, want phone", cfg.AuthMode())
	}
	if cfg.SessionBackend() != SessionBackendSQLite || cfg.SessionPath() != "data/sessions.db" {
		t.Fatalf("session = %q %q", cfg.SessionBackend(), cfg.SessionPath())
	}
	if cfg.PollTimeout() != 10*time.Second {
		t.Fatalf("poll timeout = %v, want 10s", cfg.PollTimeout())
	}
	if got := cfg.EnabledModules(); len(got) != 2 || got[1] != "assistant" {
		t.Fatalf("modules = %v", got)
	}
	if cfg.AssistantProvider() != "opencode" {
		t.Fatalf("assistant provider = %q", cfg.AssistantProvider())
	}
	if cfg.StatusAddress() != "0.0.0.0:9000" {
		t.Fatalf("status address = %q", cfg.StatusAddress())
	}
	if len(cfg.Schedule) != 1 || cfg.Schedule[0].ChatID != -100 {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" || !cfg.Logging.AddSource {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("TGVISOR_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadFileYAML(t *testing.T) {
	t.Setenv("TGVISOR_BOT_TOKEN", "")
	t.Setenv("TGVISOR_MODULES", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
auth:
  mode: bot
  bot_token: "123:abc"
session:
  backend: memory
dispatch:
  workers: 2
modules:
  enabled: [ping, assistant]
  assistant:
    provider: fantasy
    openai:
      api_key_env: MY_KEY
schedule:
  - name: hourly
    spec: "@hourly"
    chat_id: 42
    text: tick
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if cfg.Auth.BotToken != "123:abc" || cfg.SessionBackend() != SessionBackendMemory {
		t.Fatalf("auth = %+v session = %+v", cfg.Auth, cfg.Session)
	}
	if cfg.Dispatch.Workers != 2 {
		t.Fatalf("workers = %d, want 2", cfg.Dispatch.Workers)
	}
	if cfg.AssistantProvider() != "fantasy" || cfg.Modules.Assistant.OpenAI.APIKeyEnv != "MY_KEY" {
		t.Fatalf("assistant = %+v", cfg.Modules.Assistant)
	}
	if len(cfg.Schedule) != 1 || cfg.Schedule[0].ChatID != 42 {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
}

func TestLoadConfigFindsYAMLInWorkingDirectory(t *testing.T) {
	t.Setenv("TGVISOR_CONFIG", "")
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("auth:\n  mode: phone\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.AuthMode() != AuthModePhone {
		t.Fatalf("auth mode = %q, want phone", cfg.AuthMode())
	}
}

func TestLoadConfigNotFoundInWorkingDirectory(t *testing.T) {
	t.Setenv("TGVISOR_CONFIG", "")
	t.Chdir(t.TempDir())

	if _, err := LoadConfig(); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("error = %v, want ErrConfigNotFound", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TGVISOR_API_ID", "777")
	t.Setenv("TGVISOR_API_HASH", "hash-from-env")
	t.Setenv("TGVISOR_BOT_TOKEN", "123:token")
	t.Setenv("TGVISOR_PHONE", "+1999")
	t.Setenv("TGVISOR_PROXY", "http://proxy:8080")
	t.Setenv("TGVISOR_MODULES", " ping , logging ,")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.App.ID != 777 || cfg.App.Hash != "hash-from-env" {
		t.Fatalf("app = %+v", cfg.App)
	}
	if cfg.Auth.BotToken != "123:token" || cfg.Auth.Phone != "+1999" {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
	if cfg.Transport.Proxy != "http://proxy:8080" {
		t.Fatalf("proxy = %q", cfg.Transport.Proxy)
	}
	if got := cfg.EnabledModules(); len(got) != 2 || got[0] != "ping" || got[1] != "logging" {
		t.Fatalf("modules = %v", got)
	}
}

func TestEnvOverridesRejectBadAPIID(t *testing.T) {
	t.Setenv("TGVISOR_API_ID", "not-a-number")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for non-numeric api id")
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	if cfg.AuthMode() != AuthModeBot {
		t.Fatalf("auth mode = %q, want bot", cfg.AuthMode())
	}
	if cfg.SessionBackend() != SessionBackendFile || cfg.SessionPath() != "tgvisor.session" {
		t.Fatalf("session = %q %q", cfg.SessionBackend(), cfg.SessionPath())
	}
	if got := cfg.EnabledModules(); len(got) != 2 || got[0] != "logging" || got[1] != "ping" {
		t.Fatalf("modules = %v", got)
	}
	if cfg.PollTimeout() != 30*time.Second {
		t.Fatalf("poll timeout = %v", cfg.PollTimeout())
	}
	if cfg.StatusAddress() != "127.0.0.1:18790" {
		t.Fatalf("status address = %q", cfg.StatusAddress())
	}

	sqlite := &Config{Session: SessionConfig{Backend: "SQLite"}}
	if sqlite.SessionPath() != "tgvisor.db" {
		t.Fatalf("sqlite default path = %q", sqlite.SessionPath())
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "auth mode", cfg: Config{Auth: AuthConfig{Mode: "qr"}}},
		{name: "session backend", cfg: Config{Session: SessionConfig{Backend: "redis"}}},
		{name: "negative workers", cfg: Config{Dispatch: DispatchConfig{Workers: -1}}},
		{name: "queue without workers", cfg: Config{Dispatch: DispatchConfig{QueueSize: 8}}},
		{name: "unknown module", cfg: Config{Modules: ModulesConfig{Enabled: []string{"weather"}}}},
		{name: "duplicate module", cfg: Config{Modules: ModulesConfig{Enabled: []string{"ping", "Ping"}}}},
		{name: "job without spec", cfg: Config{Schedule: []ScheduleJob{{Name: "a", ChatID: 1, Text: "x"}}}},
		{name: "job without chat", cfg: Config{Schedule: []ScheduleJob{{Name: "a", Spec: "@hourly", Text: "x"}}}},
		{name: "duplicate job", cfg: Config{Schedule: []ScheduleJob{
			{Name: "a", Spec: "@hourly", ChatID: 1, Text: "x"},
			{Name: "a", Spec: "@daily", ChatID: 1, Text: "y"},
		}}},
		{name: "status port", cfg: Config{Status: StatusConfig{Port: 70000}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
