// Package config loads demitasse settings from an optional JSONC file.
// Flags override file values; the file covers what operators want to pin
// per deployment (interval, journal, observability endpoints).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Defaults
const (
	DefaultIntervalMS      = 100
	DefaultMaintenanceCron = "*/10 * * * *"
	DefaultRetentionHours  = 72
)

// LogConfig holds logging settings
type LogConfig struct {
	Dir  string `json:"dir"`  // empty: stderr only
	JSON bool   `json:"json"` // JSON handler instead of text
}

// JournalConfig holds flush journal settings
type JournalConfig struct {
	Path           string `json:"path"` // empty: journal disabled
	RetentionHours int    `json:"retention_hours"`
}

// Config is the full demitasse configuration
type Config struct {
	IntervalMS      int           `json:"interval_ms"`
	Log             LogConfig     `json:"log"`
	MetricsAddr     string        `json:"metrics_addr"` // empty: disabled
	InspectAddr     string        `json:"inspect_addr"` // empty: disabled
	Journal         JournalConfig `json:"journal"`
	MaintenanceCron string        `json:"maintenance_cron"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		IntervalMS: DefaultIntervalMS,
		Journal: JournalConfig{
			RetentionHours: DefaultRetentionHours,
		},
		MaintenanceCron: DefaultMaintenanceCron,
	}
}

// Load reads a JSONC config file and applies it over the defaults
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(StripJSONComments(data), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints
func (c Config) Validate() error {
	if c.IntervalMS <= 0 {
		return fmt.Errorf("interval_ms must be positive, got %d", c.IntervalMS)
	}
	if c.Journal.Path != "" && c.Journal.RetentionHours <= 0 {
		return fmt.Errorf("journal.retention_hours must be positive, got %d", c.Journal.RetentionHours)
	}
	return nil
}

// Interval returns the flush period as a duration
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Retention returns the journal retention window
func (c Config) Retention() time.Duration {
	return time.Duration(c.Journal.RetentionHours) * time.Hour
}
