package config

import (
	"fmt"
	"runtime"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
)

// PipelineConfig configures the replay pipeline.
type PipelineConfig struct {
	Workers          int    `mapstructure:"workers"` // Decode parallelism (0 = GOMAXPROCS)
	FixLengths       bool   `mapstructure:"fix_lengths"`
	ComputeChecksums bool   `mapstructure:"compute_checksums"`
	VerifyChecksums  bool   `mapstructure:"verify_checksums"`
	Filter           string `mapstructure:"filter"`    // ipv4 / ipv6 / tcp / udp / icmp / dhcp, empty = all
	Interface        string `mapstructure:"interface"` // Overrides the kind derived from the pcap link type
}

// Validate checks the pipeline section and fills in Workers.
func (pc *PipelineConfig) Validate() error {
	if pc.Workers < 0 {
		return fmt.Errorf("pipeline.workers must be >= 0, got %d: %w", pc.Workers, core.ErrConfigInvalid)
	}
	if pc.Workers == 0 {
		pc.Workers = runtime.GOMAXPROCS(0)
	}
	if pc.Interface != "" {
		if _, err := core.ParseInterfaceKind(pc.Interface); err != nil {
			return fmt.Errorf("pipeline.interface: %w", err)
		}
	}
	return nil
}

// InterfaceOverride returns the configured interface kind, if any.
func (pc *PipelineConfig) InterfaceOverride() (core.InterfaceKind, bool) {
	if pc.Interface == "" {
		return 0, false
	}
	kind, err := core.ParseInterfaceKind(pc.Interface)
	return kind, err == nil
}

// SerializeOptions returns the fix-ups the pipeline applies to every frame.
func (pc *PipelineConfig) SerializeOptions() layer.SerializeOptions {
	return layer.SerializeOptions{
		FixLengths:       pc.FixLengths,
		ComputeChecksums: pc.ComputeChecksums,
	}
}

// Rewrites reports whether frames are re-serialised rather than passed through.
func (pc *PipelineConfig) Rewrites() bool {
	return pc.FixLengths || pc.ComputeChecksums
}
