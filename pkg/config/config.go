package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config represents the WheelerHost daemon configuration.
type Config struct {
	UDP struct {
		Port int `yaml:"port"`
	} `yaml:"udp"`

	Session struct {
		IdleTimeoutMs int `yaml:"idle_timeout_ms"`
		TickHz        int `yaml:"tick_hz"`
	} `yaml:"session"`

	Translator struct {
		LatchTicks int     `yaml:"latch_ticks"`
		Expo       float64 `yaml:"expo"`
		Deadzone   float64 `yaml:"deadzone"`
	} `yaml:"translator"`

	Bridge struct {
		KeepaliveMs int    `yaml:"keepalive_ms"`
		Target      string `yaml:"target"` // x360, ds4, dkbridge
		Exe         string `yaml:"exe"`    // override path; empty = platform default
	} `yaml:"bridge"`

	FFB struct {
		Mode    string  `yaml:"mode"` // passthrough, synthetic, hybrid
		StaleMs int     `yaml:"stale_ms"`
		GainL   float64 `yaml:"gain_l"`
		GainR   float64 `yaml:"gain_r"`
	} `yaml:"ffb"`

	Audio struct {
		Helper string `yaml:"helper"` // path override; empty disables
	} `yaml:"audio"`

	Diag struct {
		ListenAddr string `yaml:"listen_addr"` // diagserver bind address
	} `yaml:"diag"`

	Logging struct {
		Level      string `yaml:"level"`    // debug, info, warn, error
		File       string `yaml:"file"`     // log file path, empty = console only
		MaxSize    int    `yaml:"max_size"` // megabytes
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
		Compress   bool   `yaml:"compress"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file, applying defaults.
// A missing path is treated as "use defaults" rather than an error, so
// the daemon can run with zero setup.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.UDP.Port == 0 {
		c.UDP.Port = 8765
	}
	if c.Session.IdleTimeoutMs == 0 {
		c.Session.IdleTimeoutMs = 3000
	}
	if c.Session.TickHz == 0 {
		c.Session.TickHz = 60
	}
	if c.Translator.LatchTicks == 0 {
		c.Translator.LatchTicks = 3
	}
	if c.Translator.Expo == 0 {
		c.Translator.Expo = 0.22
	}
	if c.Translator.Deadzone == 0 {
		c.Translator.Deadzone = 0.06
	}
	if c.Bridge.KeepaliveMs == 0 {
		c.Bridge.KeepaliveMs = 90
	}
	if c.Bridge.Target == "" {
		c.Bridge.Target = defaultBridgeTarget()
	}
	if c.Bridge.Exe == "" {
		c.Bridge.Exe = defaultBridgeExe()
	}
	if c.FFB.Mode == "" {
		c.FFB.Mode = "hybrid"
	}
	if c.FFB.GainL == 0 {
		c.FFB.GainL = 1.0
	}
	if c.FFB.GainR == 0 {
		c.FFB.GainR = 1.0
	}
	if c.FFB.StaleMs == 0 {
		c.FFB.StaleMs = 500
	}
	if c.Diag.ListenAddr == "" {
		c.Diag.ListenAddr = "127.0.0.1:8766"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 30
	}
}

// Validate checks configuration invariants. A non-nil error means the
// daemon must exit with code 2.
func (c *Config) Validate() error {
	if c.UDP.Port <= 0 || c.UDP.Port > 65535 {
		return fmt.Errorf("udp.port out of range: %d", c.UDP.Port)
	}
	if c.Session.TickHz <= 0 {
		return fmt.Errorf("session.tick_hz must be positive")
	}
	if c.Session.IdleTimeoutMs <= 0 {
		return fmt.Errorf("session.idle_timeout_ms must be positive")
	}
	if c.Translator.Expo < 0 || c.Translator.Expo > 1 {
		return fmt.Errorf("translator.expo must be in [0,1]")
	}
	if c.Translator.Deadzone < 0 || c.Translator.Deadzone > 1 {
		return fmt.Errorf("translator.deadzone must be in [0,1]")
	}
	if c.Translator.LatchTicks < 0 {
		return fmt.Errorf("translator.latch_ticks must be non-negative")
	}
	switch c.Bridge.Target {
	case "x360", "ds4", "dkbridge":
	default:
		return fmt.Errorf("bridge.target must be one of x360, ds4, dkbridge, got %q", c.Bridge.Target)
	}
	switch c.FFB.Mode {
	case "passthrough", "synthetic", "hybrid":
	default:
		return fmt.Errorf("ffb.mode must be one of passthrough, synthetic, hybrid, got %q", c.FFB.Mode)
	}
	return nil
}
