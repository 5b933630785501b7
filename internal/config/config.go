// Package config handles global configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/pktcraft/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `pktcraft:` root key in YAML.
type GlobalConfig struct {
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pktcraft: ...`.
type configRoot struct {
	Pktcraft GlobalConfig `mapstructure:"pktcraft"`
}

// Load loads configuration from file. An empty path, or a path that does not
// exist, yields the defaults so the CLI works without a config file.
// The YAML file uses `pktcraft:` as root key; env vars use the PKTCRAFT_
// prefix (e.g. PKTCRAFT_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// No explicit env prefix: the `pktcraft.` key prefix maps to PKTCRAFT_
	// through the key replacer ("pktcraft.log.level" → "PKTCRAFT_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pktcraft

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration Load produces without a file.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not validate: %v", err))
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use the "pktcraft." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pktcraft.log.level", "info")
	v.SetDefault("pktcraft.log.format", "text")
	v.SetDefault("pktcraft.log.outputs.file.enabled", false)
	v.SetDefault("pktcraft.log.outputs.file.path", "/var/log/pktcraft/pktcraft.log")
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pktcraft.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pktcraft.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("pktcraft.metrics.enabled", false)
	v.SetDefault("pktcraft.metrics.listen", ":9091")
	v.SetDefault("pktcraft.metrics.path", "/metrics")

	// Pipeline defaults
	v.SetDefault("pktcraft.pipeline.workers", 0)
	v.SetDefault("pktcraft.pipeline.fix_lengths", false)
	v.SetDefault("pktcraft.pipeline.compute_checksums", false)
	v.SetDefault("pktcraft.pipeline.verify_checksums", true)
	v.SetDefault("pktcraft.pipeline.filter", "")
	v.SetDefault("pktcraft.pipeline.interface", "")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error): %w", cfg.Log.Level, core.ErrConfigInvalid)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text): %w", cfg.Log.Format, core.ErrConfigInvalid)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled: %w", core.ErrConfigInvalid)
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics.enabled=true: %w", core.ErrConfigInvalid)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/', got %q: %w", cfg.Metrics.Path, core.ErrConfigInvalid)
		}
	}

	return cfg.Pipeline.Validate()
}
