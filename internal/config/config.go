// Package config provides configuration management for ctxsync.
// It supports YAML configuration files, environment variables, and sensible defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aetherlight/ctxsync/internal/util"
)

// Config represents the complete ctxsync configuration.
type Config struct {
	// Bundle configures where the reference bundle is found
	Bundle BundleConfig `yaml:"bundle"`

	// Sync configures synchronization behavior
	Sync SyncConfig `yaml:"sync"`

	// Backup configures snapshot behavior
	Backup BackupConfig `yaml:"backup"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output"`
}

// BundleConfig holds reference bundle settings.
type BundleConfig struct {
	// Path is the reference bundle directory. ~ expands to the home directory.
	Path string `yaml:"path"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	// DeepScan re-compares checksums even when versions match
	DeepScan bool `yaml:"deep_scan"`
	// AutoPrune removes old snapshots after each successful apply
	AutoPrune bool `yaml:"auto_prune"`
}

// BackupConfig holds snapshot settings.
type BackupConfig struct {
	// MaxSnapshots is the maximum number of snapshots to keep per project
	MaxSnapshots int `yaml:"max_snapshots"`
	// RetentionDays is how long to keep snapshots
	RetentionDays int `yaml:"retention_days"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color"`
	// Verbose enables verbose output
	Verbose bool `yaml:"verbose"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Bundle: BundleConfig{
			Path: filepath.Join("~", ".aetherlight", "bundle"),
		},
		Sync: SyncConfig{
			DeepScan:  false,
			AutoPrune: true,
		},
		Backup: BackupConfig{
			MaxSnapshots:  10,
			RetentionDays: 30,
		},
		Output: OutputConfig{
			Color:   "auto",
			Verbose: false,
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(util.ConfigHome(), configFileName)
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg := Default()

	configPath := FilePath()
	// #nosec G304 - configPath is constructed from trusted config directory
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}

	// Parse YAML over defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvironment()

	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	configPath := FilePath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(configPath, data, 0o644)
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern CTXSYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("CTXSYNC_BUNDLE_PATH"); v != "" {
		c.Bundle.Path = v
	}

	if v := os.Getenv("CTXSYNC_SYNC_DEEP_SCAN"); v != "" {
		c.Sync.DeepScan = parseBool(v)
	}
	if v := os.Getenv("CTXSYNC_SYNC_AUTO_PRUNE"); v != "" {
		c.Sync.AutoPrune = parseBool(v)
	}

	if v := os.Getenv("CTXSYNC_BACKUP_MAX_SNAPSHOTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Backup.MaxSnapshots = n
		}
	}
	if v := os.Getenv("CTXSYNC_BACKUP_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Backup.RetentionDays = n
		}
	}

	if v := os.Getenv("CTXSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("CTXSYNC_OUTPUT_VERBOSE"); v != "" {
		c.Output.Verbose = parseBool(v)
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// BundlePath returns the configured bundle path, expanded.
func (c *Config) BundlePath() string {
	return util.ExpandPath(c.Bundle.Path, "")
}

// RetentionAge returns the snapshot retention window as a duration.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
