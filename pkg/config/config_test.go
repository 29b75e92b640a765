package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "wheelerhost-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	t.Run("Valid Config", func(t *testing.T) {
		configContent := `
udp:
  port: 9999

session:
  idle_timeout_ms: 4000
  tick_hz: 120

ffb:
  mode: "passthrough"
  stale_ms: 750

bridge:
  target: "x360"

logging:
  level: "debug"
  console: true
`
		configPath := filepath.Join(tempDir, "valid.yaml")
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if cfg.UDP.Port != 9999 {
			t.Errorf("Expected udp port 9999, got %d", cfg.UDP.Port)
		}
		if cfg.Session.IdleTimeoutMs != 4000 {
			t.Errorf("Expected idle timeout 4000, got %d", cfg.Session.IdleTimeoutMs)
		}
		if cfg.Session.TickHz != 120 {
			t.Errorf("Expected tick_hz 120, got %d", cfg.Session.TickHz)
		}
		if cfg.FFB.Mode != "passthrough" {
			t.Errorf("Expected ffb mode passthrough, got %s", cfg.FFB.Mode)
		}
		if cfg.FFB.StaleMs != 750 {
			t.Errorf("Expected ffb stale_ms 750, got %d", cfg.FFB.StaleMs)
		}
		if cfg.Bridge.Target != "x360" {
			t.Errorf("Expected bridge target x360, got %s", cfg.Bridge.Target)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
		}
	})

	t.Run("Config With Defaults", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "minimal.yaml")
		if err := os.WriteFile(configPath, []byte("udp:\n  port: 8765\n"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if cfg.Session.TickHz != 60 {
			t.Errorf("Expected default tick_hz 60, got %d", cfg.Session.TickHz)
		}
		if cfg.Session.IdleTimeoutMs != 3000 {
			t.Errorf("Expected default idle_timeout_ms 3000, got %d", cfg.Session.IdleTimeoutMs)
		}
		if cfg.Translator.LatchTicks != 3 {
			t.Errorf("Expected default latch_ticks 3, got %d", cfg.Translator.LatchTicks)
		}
		if cfg.Translator.Expo != 0.22 {
			t.Errorf("Expected default expo 0.22, got %v", cfg.Translator.Expo)
		}
		if cfg.Translator.Deadzone != 0.06 {
			t.Errorf("Expected default deadzone 0.06, got %v", cfg.Translator.Deadzone)
		}
		if cfg.Bridge.KeepaliveMs != 90 {
			t.Errorf("Expected default keepalive_ms 90, got %d", cfg.Bridge.KeepaliveMs)
		}
		if cfg.FFB.Mode != "hybrid" {
			t.Errorf("Expected default ffb mode hybrid, got %s", cfg.FFB.Mode)
		}
		if cfg.FFB.StaleMs != 500 {
			t.Errorf("Expected default ffb stale_ms 500, got %d", cfg.FFB.StaleMs)
		}
		if cfg.FFB.GainL != 1.0 || cfg.FFB.GainR != 1.0 {
			t.Errorf("Expected default gains 1.0, got %v/%v", cfg.FFB.GainL, cfg.FFB.GainR)
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("Expected default log level info, got %s", cfg.Logging.Level)
		}
		if cfg.Logging.MaxSize != 100 {
			t.Errorf("Expected default log max size 100, got %d", cfg.Logging.MaxSize)
		}
	})

	t.Run("Missing File Uses Defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(tempDir, "does-not-exist.yaml"))
		if err != nil {
			t.Fatalf("Expected no error for missing file, got: %v", err)
		}
		if cfg.UDP.Port != 8765 {
			t.Errorf("Expected default udp port 8765, got %d", cfg.UDP.Port)
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		configContent := "udp:\n  port: [invalid yaml structure\n"
		configPath := filepath.Join(tempDir, "invalid.yaml")
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		_, err := LoadConfig(configPath)
		if err == nil {
			t.Error("Expected error for invalid YAML, got nil")
		}
		if !strings.Contains(err.Error(), "failed to parse config file") {
			t.Errorf("Expected 'failed to parse config file' error, got: %v", err)
		}
	})

	t.Run("Empty File", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "empty.yaml")
		if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
			t.Fatalf("Failed to write empty config file: %v", err)
		}

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error for empty file, got: %v", err)
		}
		if cfg.UDP.Port != 8765 {
			t.Errorf("Expected default udp port for empty file, got %d", cfg.UDP.Port)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, _ := LoadConfig("")
		return cfg
	}

	t.Run("Valid Defaults", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Expected no error for default config, got: %v", err)
		}
	})

	t.Run("Bad Port", func(t *testing.T) {
		cfg := valid()
		cfg.UDP.Port = 70000
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "udp.port") {
			t.Errorf("Expected udp.port error, got: %v", err)
		}
	})

	t.Run("Bad Tick Rate", func(t *testing.T) {
		cfg := valid()
		cfg.Session.TickHz = 0
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "tick_hz") {
			t.Errorf("Expected tick_hz error, got: %v", err)
		}
	})

	t.Run("Bad Expo", func(t *testing.T) {
		cfg := valid()
		cfg.Translator.Expo = 1.5
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "expo") {
			t.Errorf("Expected expo error, got: %v", err)
		}
	})

	t.Run("Bad Bridge Target", func(t *testing.T) {
		cfg := valid()
		cfg.Bridge.Target = "dualshock5"
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "bridge.target") {
			t.Errorf("Expected bridge.target error, got: %v", err)
		}
	})

	t.Run("Bad FFB Mode", func(t *testing.T) {
		cfg := valid()
		cfg.FFB.Mode = "auto"
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "ffb.mode") {
			t.Errorf("Expected ffb.mode error, got: %v", err)
		}
	})
}
