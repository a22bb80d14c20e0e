package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default configuration should validate, got %v", err)
	}

	if cfg.Heartbeat.Period != 3*time.Second {
		t.Errorf("Expected 3s heartbeat period, got %v", cfg.Heartbeat.Period)
	}
	if cfg.Heartbeat.PollCommander {
		t.Error("Commander polling should default to disabled")
	}
	if cfg.Channel.NATSURL != "" {
		t.Error("Channel layer should default to local")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("WATCHTOWER_HTTP_PORT", "9090")
	t.Setenv("WATCHTOWER_PROCESS_PASSWORD", "secret")
	t.Setenv("WATCHTOWER_HEARTBEAT_PERIOD", "250ms")
	t.Setenv("WATCHTOWER_COMMANDER_HEARTBEAT_URL", "http://commander:5000/heartbeat")
	t.Setenv("WATCHTOWER_COMMANDER_POLL", "true")
	t.Setenv("WATCHTOWER_NATS_URL", "nats://localhost:4222")

	cfg := LoadFromEnv()

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Auth.ProcessPassword != "secret" {
		t.Errorf("Expected password override, got %q", cfg.Auth.ProcessPassword)
	}
	if cfg.Heartbeat.Period != 250*time.Millisecond {
		t.Errorf("Expected 250ms period, got %v", cfg.Heartbeat.Period)
	}
	if !cfg.Heartbeat.PollCommander {
		t.Error("Expected commander polling enabled")
	}
	if cfg.Heartbeat.CommanderURL != "http://commander:5000/heartbeat" {
		t.Errorf("Unexpected commander URL %q", cfg.Heartbeat.CommanderURL)
	}
	if cfg.Channel.NATSURL != "nats://localhost:4222" {
		t.Errorf("Unexpected NATS URL %q", cfg.Channel.NATSURL)
	}
}

func TestLoadFromEnv_IgnoresInvalidValues(t *testing.T) {
	t.Setenv("WATCHTOWER_HTTP_PORT", "not-a-port")
	t.Setenv("WATCHTOWER_HEARTBEAT_PERIOD", "soon")

	cfg := LoadFromEnv()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("Invalid port should keep default, got %d", cfg.HTTP.Port)
	}
	if cfg.Heartbeat.Period != 3*time.Second {
		t.Errorf("Invalid period should keep default, got %v", cfg.Heartbeat.Period)
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero heartbeat period", func(c *Config) { c.Heartbeat.Period = 0 }},
		{"zero buffer size", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"poll without URL", func(c *Config) { c.Heartbeat.PollCommander = true }},
		{"missing heartbeat section", func(c *Config) { c.Heartbeat = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `{
		"http": {"port": 9191, "read_timeout": "15s"},
		"auth": {"process_password": "filepass"},
		"heartbeat": {"period": "1s", "commander_url": "http://c:5000/heartbeat", "poll_commander": true}
	}`

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Expected file to load, got %v", err)
	}

	if cfg.HTTP.Port != 9191 {
		t.Errorf("Expected port 9191, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeout != 15*time.Second {
		t.Errorf("Expected 15s read timeout, got %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.Auth.ProcessPassword != "filepass" {
		t.Errorf("Expected filepass, got %q", cfg.Auth.ProcessPassword)
	}
	if !cfg.Heartbeat.PollCommander || cfg.Heartbeat.Period != time.Second {
		t.Errorf("Unexpected heartbeat config: %+v", cfg.Heartbeat)
	}
	// Untouched sections keep defaults.
	if cfg.WebSocket.BufferSize != 100 {
		t.Errorf("Expected default buffer size, got %d", cfg.WebSocket.BufferSize)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile("/does/not/exist.json"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadConfigWithPrecedence_BadFileFallsBack(t *testing.T) {
	cfg := LoadConfigWithPrecedence("/does/not/exist.json")
	if cfg == nil {
		t.Fatal("Expected a config")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Fallback config should validate, got %v", err)
	}
}
