package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 3000 {
		t.Errorf("server defaults = %s:%d, want 0.0.0.0:3000", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("log defaults = %s/%s, want info/console", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Search.MinSeeders != 1 || cfg.Search.MaxResults != 50 {
		t.Errorf("search defaults = %d/%d, want 1/50", cfg.Search.MinSeeders, cfg.Search.MaxResults)
	}
	if !cfg.Advisor.Enabled {
		t.Error("advisor should default to enabled")
	}
	if cfg.History.RetentionDays != 30 {
		t.Errorf("history retention = %d, want 30", cfg.History.RetentionDays)
	}
	if cfg.Metadata.AppName != "tonearm" {
		t.Errorf("metadata app name = %q, want tonearm", cfg.Metadata.AppName)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`server:
  port: 8421
log:
  level: debug
advisor:
  enabled: false
history:
  retention_days: 7
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8421 {
		t.Errorf("Server.Port = %d, want 8421", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Advisor.Enabled {
		t.Error("Advisor.Enabled = true, want false")
	}
	if cfg.History.RetentionDays != 7 {
		t.Errorf("History.RetentionDays = %d, want 7", cfg.History.RetentionDays)
	}

	// Untouched keys keep their defaults.
	if cfg.Search.MinSeeders != 1 {
		t.Errorf("Search.MinSeeders = %d, want default 1", cfg.Search.MinSeeders)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default 0.0.0.0", cfg.Server.Host)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8421\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TONEARM_SERVER_PORT", "9000")
	t.Setenv("TONEARM_ADVISOR_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want env override 9000", cfg.Server.Port)
	}
	if cfg.Advisor.APIKey != "sk-test" {
		t.Errorf("Advisor.APIKey = %q, want env value", cfg.Advisor.APIKey)
	}
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with malformed YAML succeeded, want error")
	}
}

func TestServerAddress(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 3000}
	if got := c.Address(); got != "127.0.0.1:3000" {
		t.Errorf("Address() = %q, want 127.0.0.1:3000", got)
	}
}
