package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tgvisor/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "router").Info("Handler failed",
		"dispatch_id", "d-1", "module", "ping", "update_id", int64(42), "error", errors.New("boom"))

	var entry Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Handler failed" {
		t.Fatalf("message = %q", entry.Message)
	}
	if entry.Component != "router" || entry.Module != "ping" || entry.DispatchID != "d-1" {
		t.Fatalf("promoted keys = %q %q %q", entry.Component, entry.Module, entry.DispatchID)
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if got := entry.Fields["update_id"]; got != float64(42) {
		t.Fatalf("fields.update_id = %v, want 42", got)
	}
	if got := entry.Fields["error"]; got != "boom" {
		t.Fatalf("fields.error = %v, want %q", got, "boom")
	}
	if _, ok := entry.Fields["module"]; ok {
		t.Fatal("module must not also appear in fields")
	}
}

func TestLoggerJSONGroupsPrefixKeys(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.WithGroup("conn").Info("Reconnected", "module", "x", "attempt", 2)

	var entry Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry.Module != "" {
		t.Fatalf("grouped module key must stay in fields, got %q", entry.Module)
	}
	if entry.Fields["conn.module"] != "x" || entry.Fields["conn.attempt"] != float64(2) {
		t.Fatalf("fields = %v", entry.Fields)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	unsetLoggingEnv(t)
	t.Setenv(envLevel, "debug")
	t.Setenv(envFormat, "text")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format by default, got %q", line)
	}
}

func TestLoggerLogfmtFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "logfmt"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Serving updates", "workers", 4)
	if line := out.String(); !strings.Contains(line, "workers=4") {
		t.Fatalf("expected logfmt pair, got %q", line)
	}
}

func TestLoggerRejectsUnknownSettings(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := newWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := newWithWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewWritesToFileOutput(t *testing.T) {
	unsetLoggingEnv(t)

	path := filepath.Join(t.TempDir(), "logs", "tgvisor.log")
	log, closer, err := New(config.LoggingConfig{Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	log.Info("Written to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"message":"Written to file"`) {
		t.Fatalf("log file = %q", content)
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envLevel, envFormat, envAddSource, envOutput} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
