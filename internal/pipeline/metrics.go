package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-run counters.
type Metrics struct {
	Read               atomic.Uint64
	Filtered           atomic.Uint64
	Decoded            atomic.Uint64
	DecodeErrors       atomic.Uint64
	Encoded            atomic.Uint64
	ChecksumMismatches atomic.Uint64
	Written            atomic.Uint64
	WriteErrors        atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Read.Store(0)
	m.Filtered.Store(0)
	m.Decoded.Store(0)
	m.DecodeErrors.Store(0)
	m.Encoded.Store(0)
	m.ChecksumMismatches.Store(0)
	m.Written.Store(0)
	m.WriteErrors.Store(0)
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Read:               m.Read.Load(),
		Filtered:           m.Filtered.Load(),
		Decoded:            m.Decoded.Load(),
		DecodeErrors:       m.DecodeErrors.Load(),
		Encoded:            m.Encoded.Load(),
		ChecksumMismatches: m.ChecksumMismatches.Load(),
		Written:            m.Written.Load(),
		WriteErrors:        m.WriteErrors.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Read               uint64 `yaml:"read"`
	Filtered           uint64 `yaml:"filtered"` // Dropped by the filter
	Decoded            uint64 `yaml:"decoded"`
	DecodeErrors       uint64 `yaml:"decode_errors"`
	Encoded            uint64 `yaml:"encoded"`
	ChecksumMismatches uint64 `yaml:"checksum_mismatches"`
	Written            uint64 `yaml:"written"`
	WriteErrors        uint64 `yaml:"write_errors"`
}
