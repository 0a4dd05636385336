package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Host describes a single monitored host. Address is the stable identity;
// Name is the display label and may change between runs.
type Host struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// WebhookConfig holds alert webhook settings.
type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Cooldown Duration `yaml:"cooldown"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings. A non-empty File enables rotating
// file output instead of stderr.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the root application configuration.
type Config struct {
	Hosts         []Host       `yaml:"hosts"`
	PingCount     int          `yaml:"ping_count"`
	Interval      Duration     `yaml:"interval"`
	Timeout       Duration     `yaml:"timeout"`
	RetentionDays int          `yaml:"retention_days"`
	Database      string       `yaml:"database"`
	Server        ServerConfig `yaml:"server"`
	Alerts        AlertsConfig `yaml:"alerts"`
	Log           LogConfig    `yaml:"log"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Unmarshal into a raw intermediate to detect YAML parse errors vs duration errors.
	type rawConfig struct {
		Hosts         []Host       `yaml:"hosts"`
		PingCount     int          `yaml:"ping_count"`
		Interval      string       `yaml:"interval"`
		Timeout       string       `yaml:"timeout"`
		RetentionDays *int         `yaml:"retention_days"`
		Database      string       `yaml:"database"`
		Server        ServerConfig `yaml:"server"`
		Alerts        AlertsConfig `yaml:"alerts"`
		Log           LogConfig    `yaml:"log"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply defaults.
	if raw.PingCount == 0 {
		raw.PingCount = 10
	}
	// An explicit retention_days: 0 means keep forever; only an absent
	// key gets the default.
	if raw.RetentionDays == nil {
		days := 90
		raw.RetentionDays = &days
	}
	if raw.Database == "" {
		raw.Database = "pingmon.db"
	}
	if raw.Server.Address == "" {
		raw.Server.Address = ":8080"
	}
	if raw.Log.Level == "" {
		raw.Log.Level = "info"
	}
	if raw.Log.Format == "" {
		raw.Log.Format = "text"
	}

	if len(raw.Hosts) == 0 {
		return nil, fmt.Errorf("at least one host must be configured")
	}
	if raw.PingCount < 0 {
		return nil, fmt.Errorf("ping_count must be positive, got %d", raw.PingCount)
	}
	if *raw.RetentionDays < 0 {
		return nil, fmt.Errorf("retention_days must not be negative, got %d", *raw.RetentionDays)
	}
	if !validLogLevels[raw.Log.Level] {
		return nil, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", raw.Log.Level)
	}
	if !validLogFormats[raw.Log.Format] {
		return nil, fmt.Errorf("invalid log format %q (must be text or json)", raw.Log.Format)
	}

	cfg := &Config{
		PingCount:     raw.PingCount,
		RetentionDays: *raw.RetentionDays,
		Database:      raw.Database,
		Server:        raw.Server,
		Alerts:        raw.Alerts,
		Log:           raw.Log,
	}

	addresses := make(map[string]bool, len(raw.Hosts))
	for i, h := range raw.Hosts {
		if h.Address == "" {
			return nil, fmt.Errorf("host[%d]: address is required", i)
		}
		if addresses[h.Address] {
			return nil, fmt.Errorf("duplicate host address %q", h.Address)
		}
		addresses[h.Address] = true

		// Display name falls back to the address.
		if h.Name == "" {
			h.Name = h.Address
		}
		cfg.Hosts = append(cfg.Hosts, h)
	}

	// Parse interval with default.
	if raw.Interval == "" {
		cfg.Interval = Duration{60 * time.Second}
	} else {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", raw.Interval, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %q", raw.Interval)
		}
		cfg.Interval = Duration{d}
	}

	// Parse timeout with default.
	if raw.Timeout == "" {
		cfg.Timeout = Duration{5 * time.Second}
	} else {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", raw.Timeout, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("timeout must be positive, got %q", raw.Timeout)
		}
		cfg.Timeout = Duration{d}
	}

	return cfg, nil
}

// Addresses returns the configured host addresses in order.
func (c *Config) Addresses() []string {
	addrs := make([]string, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		addrs = append(addrs, h.Address)
	}
	return addrs
}
