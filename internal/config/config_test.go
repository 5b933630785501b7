package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"firestige.xyz/pktcraft/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
pktcraft:
  log:
    level: "debug"
    format: "json"
    outputs:
      file:
        enabled: true
        path: "/tmp/pktcraft.log"
        rotation:
          max_size_mb: 10
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
    path: "/metrics"
  pipeline:
    workers: 4
    fix_lengths: true
    compute_checksums: true
    verify_checksums: false
    filter: "udp"
    interface: "ethernet"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if !cfg.Log.Outputs.File.Enabled || cfg.Log.Outputs.File.Path != "/tmp/pktcraft.log" {
		t.Errorf("Expected file output /tmp/pktcraft.log, got %+v", cfg.Log.Outputs.File)
	}
	if cfg.Log.Outputs.File.Rotation.MaxSizeMB != 10 {
		t.Errorf("Expected max_size_mb 10, got %d", cfg.Log.Outputs.File.Rotation.MaxSizeMB)
	}
	if cfg.Log.Outputs.File.Rotation.MaxBackups != 5 {
		t.Errorf("Expected default max_backups 5, got %d", cfg.Log.Outputs.File.Rotation.MaxBackups)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("Expected metrics on 127.0.0.1:9100, got %+v", cfg.Metrics)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
	if !cfg.Pipeline.Rewrites() {
		t.Error("Expected pipeline to rewrite frames")
	}
	if cfg.Pipeline.VerifyChecksums {
		t.Error("Expected verify_checksums false")
	}
	if cfg.Pipeline.Filter != "udp" {
		t.Errorf("Expected filter udp, got %q", cfg.Pipeline.Filter)
	}
	kind, ok := cfg.Pipeline.InterfaceOverride()
	if !ok || kind != core.InterfaceEthernet {
		t.Errorf("Expected ethernet override, got %v %v", kind, ok)
	}
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, "pktcraft: {}\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Expected default log format text, got %s", cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path /metrics, got %s", cfg.Metrics.Path)
	}
	if cfg.Pipeline.Workers != runtime.GOMAXPROCS(0) {
		t.Errorf("Expected workers to default to GOMAXPROCS, got %d", cfg.Pipeline.Workers)
	}
	if !cfg.Pipeline.VerifyChecksums {
		t.Error("Expected verify_checksums true by default")
	}
	if cfg.Pipeline.Rewrites() {
		t.Error("Expected pass-through by default")
	}
	if _, ok := cfg.Pipeline.InterfaceOverride(); ok {
		t.Error("Expected no interface override by default")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yml")} {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", path, err)
		}
		if cfg.Log.Level != "info" {
			t.Errorf("Load(%q): expected default log level, got %s", path, cfg.Log.Level)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Log.Level != "info" || cfg.Pipeline.Workers < 1 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "pktcraft:\n  log:\n    level: \"invalid\"\n"},
		{"log format", "pktcraft:\n  log:\n    format: \"xml\"\n"},
		{"file path", "pktcraft:\n  log:\n    outputs:\n      file:\n        enabled: true\n        path: \"\"\n"},
		{"metrics path", "pktcraft:\n  metrics:\n    enabled: true\n    path: \"metrics\"\n"},
		{"metrics listen", "pktcraft:\n  metrics:\n    enabled: true\n    listen: \"\"\n"},
		{"workers", "pktcraft:\n  pipeline:\n    workers: -1\n"},
		{"interface", "pktcraft:\n  pipeline:\n    interface: \"token-ring\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !errors.Is(err, core.ErrConfigInvalid) && !errors.Is(err, core.ErrUnsupportedInterface) {
				t.Errorf("Expected a config sentinel error, got %v", err)
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "pktcraft: [unterminated\n"))
	if err == nil {
		t.Error("Expected error for malformed YAML, got nil")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
pktcraft:
  log:
    level: "info"
`)

	t.Setenv("PKTCRAFT_LOG_LEVEL", "debug")
	t.Setenv("PKTCRAFT_PIPELINE_FILTER", "dhcp")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Log.Level)
	}
	if cfg.Pipeline.Filter != "dhcp" {
		t.Errorf("Expected filter dhcp from env var, got %q", cfg.Pipeline.Filter)
	}
}

func TestPipelineSerializeOptions(t *testing.T) {
	pc := PipelineConfig{FixLengths: true}
	opts := pc.SerializeOptions()
	if !opts.FixLengths || opts.ComputeChecksums {
		t.Errorf("Unexpected options %+v", opts)
	}
}
