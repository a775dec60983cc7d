package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath = "TGVISOR_CONFIG"
	envAPIID      = "TGVISOR_API_ID"
	envAPIHash    = "TGVISOR_API_HASH"
	envBotToken   = "TGVISOR_BOT_TOKEN"
	envPhone      = "TGVISOR_PHONE"
	envProxy      = "TGVISOR_PROXY"
	envModules    = "TGVISOR_MODULES"
)

const (
	AuthModeBot   = "bot"
	AuthModePhone = "phone"

	SessionBackendFile   = "file"
	SessionBackendSQLite = "sqlite"
	SessionBackendMemory = "memory"

	defaultSessionFile   = "tgvisor.session"
	defaultSessionDB     = "tgvisor.db"
	defaultPollTimeout   = 30
	defaultStatusHost    = "127.0.0.1"
	defaultStatusPort    = 18790
	defaultAssistantName = "openai"
)

// KnownModules lists the built-in module names accepted by modules.enabled.
var KnownModules = []string{"logging", "ping", "assistant"}

var defaultModules = []string{"logging", "ping"}

// Config is the root runtime configuration loaded from config.json or config.yaml.
type Config struct {
	App       AppConfig       `json:"app" yaml:"app"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Dispatch  DispatchConfig  `json:"dispatch" yaml:"dispatch"`
	Modules   ModulesConfig   `json:"modules" yaml:"modules"`
	Schedule  []ScheduleJob   `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Status    StatusConfig    `json:"status" yaml:"status"`
	Logging   LoggingConfig   `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
	// Output is "stderr" (default), "stdout" or a file path.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// AppConfig holds the application id/hash pair issued by the remote service.
type AppConfig struct {
	ID   int    `json:"id" yaml:"id"`
	Hash string `json:"hash" yaml:"hash"`
}

type TransportConfig struct {
	Proxy              string `json:"proxy" yaml:"proxy"`
	APIServer          string `json:"api_server,omitempty" yaml:"api_server,omitempty"`
	PollTimeoutSeconds int    `json:"poll_timeout_seconds,omitempty" yaml:"poll_timeout_seconds,omitempty"`
}

// AuthConfig selects the handshake run when the stored session is not authorized.
type AuthConfig struct {
	Mode     string `json:"mode" yaml:"mode"`
	BotToken string `json:"bot_token,omitempty" yaml:"bot_token,omitempty"`
	Phone    string `json:"phone,omitempty" yaml:"phone,omitempty"`
	// DisablePrompt refuses to ask on the terminal for missing credentials.
	DisablePrompt bool `json:"disable_prompt,omitempty" yaml:"disable_prompt,omitempty"`
}

type SessionConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
	// Name keys the session row in the sqlite backend.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// DispatchConfig bounds concurrent dispatch. Workers 0 spawns one goroutine per update.
type DispatchConfig struct {
	Workers   int `json:"workers" yaml:"workers"`
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

type ModulesConfig struct {
	Enabled   []string        `json:"enabled" yaml:"enabled"`
	Assistant AssistantConfig `json:"assistant" yaml:"assistant"`
}

// AssistantConfig configures the LLM backend used by the assistant module.
type AssistantConfig struct {
	Provider     string         `json:"provider" yaml:"provider"`
	Model        string         `json:"model" yaml:"model"`
	SystemPrompt string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature  float64        `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	OpenAI       OpenAIConfig   `json:"openai" yaml:"openai"`
	OpenCode     OpenCodeConfig `json:"opencode" yaml:"opencode"`
}

// OpenAIConfig configures the OpenAI client, shared by the openai and fantasy backends.
type OpenAIConfig struct {
	BaseURL               string `json:"base_url" yaml:"base_url"`
	Organization          string `json:"organization" yaml:"organization"`
	Project               string `json:"project" yaml:"project"`
	APIKeyEnv             string `json:"api_key_env" yaml:"api_key_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// OpenCodeConfig configures the OpenCode server client.
type OpenCodeConfig struct {
	BaseURL               string `json:"base_url" yaml:"base_url"`
	Username              string `json:"username" yaml:"username"`
	PasswordEnv           string `json:"password_env" yaml:"password_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// ScheduleJob sends Text to ChatID on a cron Spec.
type ScheduleJob struct {
	Name   string `json:"name" yaml:"name"`
	Spec   string `json:"spec" yaml:"spec"`
	ChatID int64  `json:"chat_id" yaml:"chat_id"`
	Text   string `json:"text" yaml:"text"`
}

// StatusConfig configures the HTTP status server.
type StatusConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

// LoadConfig resolves the config file, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile reads the config at path and applies environment overrides.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := decode(path, content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// decode picks YAML for .yaml/.yml files and JSON otherwise.
func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	default:
		return json.Unmarshal(content, cfg)
	}
}

// FromEnv builds a config from environment variables alone.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if raw := strings.TrimSpace(os.Getenv(envAPIID)); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", envAPIID, err)
		}
		cfg.App.ID = id
	}
	if hash := strings.TrimSpace(os.Getenv(envAPIHash)); hash != "" {
		cfg.App.Hash = hash
	}
	if token := strings.TrimSpace(os.Getenv(envBotToken)); token != "" {
		cfg.Auth.BotToken = token
	}
	if phone := strings.TrimSpace(os.Getenv(envPhone)); phone != "" {
		cfg.Auth.Phone = phone
	}
	if proxy := strings.TrimSpace(os.Getenv(envProxy)); proxy != "" {
		cfg.Transport.Proxy = proxy
	}
	if rawModules := strings.TrimSpace(os.Getenv(envModules)); rawModules != "" {
		cfg.Modules.Enabled = parseCSV(rawModules)
	}

	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	switch c.AuthMode() {
	case AuthModeBot, AuthModePhone:
	default:
		return fmt.Errorf("auth.mode must be %q or %q, got %q", AuthModeBot, AuthModePhone, c.Auth.Mode)
	}

	switch c.SessionBackend() {
	case SessionBackendFile, SessionBackendSQLite, SessionBackendMemory:
	default:
		return fmt.Errorf("session.backend must be file, sqlite or memory, got %q", c.Session.Backend)
	}

	if c.Dispatch.Workers < 0 {
		return errors.New("dispatch.workers must not be negative")
	}
	if c.Dispatch.QueueSize < 0 {
		return errors.New("dispatch.queue_size must not be negative")
	}
	if c.Dispatch.QueueSize > 0 && c.Dispatch.Workers == 0 {
		return errors.New("dispatch.queue_size requires dispatch.workers")
	}
	if c.Transport.PollTimeoutSeconds < 0 {
		return errors.New("transport.poll_timeout_seconds must not be negative")
	}

	seen := make(map[string]struct{})
	for _, name := range c.EnabledModules() {
		if !slices.Contains(KnownModules, name) {
			return fmt.Errorf("modules.enabled: unknown module %q", name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("modules.enabled: duplicate module %q", name)
		}
		seen[name] = struct{}{}
	}

	jobs := make(map[string]struct{}, len(c.Schedule))
	for i, job := range c.Schedule {
		name := strings.TrimSpace(job.Name)
		if name == "" {
			return fmt.Errorf("schedule[%d].name is required", i)
		}
		if _, ok := jobs[name]; ok {
			return fmt.Errorf("schedule: duplicate job %q", name)
		}
		jobs[name] = struct{}{}
		if strings.TrimSpace(job.Spec) == "" {
			return fmt.Errorf("schedule[%s].spec is required", name)
		}
		if job.ChatID == 0 {
			return fmt.Errorf("schedule[%s].chat_id is required", name)
		}
		if strings.TrimSpace(job.Text) == "" {
			return fmt.Errorf("schedule[%s].text is required", name)
		}
	}

	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port out of range: %d", c.Status.Port)
	}

	return nil
}

func (c *Config) AuthMode() string {
	mode := strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	if mode == "" {
		return AuthModeBot
	}
	return mode
}

func (c *Config) SessionBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if backend == "" {
		return SessionBackendFile
	}
	return backend
}

// SessionPath returns the configured session path or the backend default.
func (c *Config) SessionPath() string {
	if path := strings.TrimSpace(c.Session.Path); path != "" {
		return path
	}
	if c.SessionBackend() == SessionBackendSQLite {
		return defaultSessionDB
	}
	return defaultSessionFile
}

func (c *Config) PollTimeout() time.Duration {
	if c.Transport.PollTimeoutSeconds <= 0 {
		return defaultPollTimeout * time.Second
	}
	return time.Duration(c.Transport.PollTimeoutSeconds) * time.Second
}

// EnabledModules returns the module names in dispatch order.
func (c *Config) EnabledModules() []string {
	if len(c.Modules.Enabled) == 0 {
		return slices.Clone(defaultModules)
	}

	out := make([]string, 0, len(c.Modules.Enabled))
	for _, name := range c.Modules.Enabled {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (c *Config) AssistantProvider() string {
	if provider := strings.ToLower(strings.TrimSpace(c.Modules.Assistant.Provider)); provider != "" {
		return provider
	}
	return defaultAssistantName
}

// StatusAddress returns host:port for the status server.
func (c *Config) StatusAddress() string {
	host := strings.TrimSpace(c.Status.Host)
	if host == "" {
		host = defaultStatusHost
	}
	port := c.Status.Port
	if port <= 0 {
		port = defaultStatusPort
	}
	return host + ":" + strconv.Itoa(port)
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TGVISOR_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.json"),
		filepath.Join(cwd, "config", "config.yaml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s)", ErrConfigNotFound, strings.Join(candidates, ", "))
}

// ErrConfigNotFound is returned by LoadConfig when no config file exists.
var ErrConfigNotFound = errors.New("config file not found")
