// Package metrics implements Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
)

var (
	// PacketsTotal counts packets per pipeline stage (read, filtered, decoded, written).
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktcraft_packets_total",
			Help: "Total number of packets handled, by pipeline stage",
		},
		[]string{"stage"},
	)

	// DecodeErrorsTotal counts frames that failed to decode, by reason.
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktcraft_decode_errors_total",
			Help: "Total number of frames that failed to decode",
		},
		[]string{"reason"},
	)

	// LayersTotal counts decoded layers by type.
	LayersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktcraft_layers_total",
			Help: "Total number of decoded protocol layers",
		},
		[]string{"layer"},
	)

	// ChecksumMismatchesTotal counts layers whose stored checksum is wrong.
	ChecksumMismatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktcraft_checksum_mismatches_total",
			Help: "Total number of layers with an invalid checksum",
		},
		[]string{"layer"},
	)

	// EncodedBytesTotal counts bytes produced by the encoder.
	EncodedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktcraft_encoded_bytes_total",
			Help: "Total number of bytes encoded",
		},
	)

	// StageLatencySeconds measures per-packet pipeline stage latency.
	StageLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pktcraft_stage_latency_seconds",
			Help:    "Latency of pipeline processing stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
		[]string{"stage"},
	)
)

// Pipeline stage labels.
const (
	StageRead     = "read"
	StageFiltered = "filtered"
	StageDecoded  = "decoded"
	StageEncoded  = "encoded"
	StageWritten  = "written"
)

// ErrorReason maps a decode error to a low-cardinality label.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, core.ErrPacketTooShort):
		return "too_short"
	case errors.Is(err, core.ErrUnsupportedInterface):
		return "unsupported_interface"
	case errors.Is(err, core.ErrUnsupportedProto):
		return "unsupported_protocol"
	case errors.Is(err, core.ErrMalformedOption):
		return "malformed_option"
	default:
		return "other"
	}
}

// ObserveLayers counts every layer in the spine rooted at l.
func ObserveLayers(l layer.Layer) {
	layer.Walk(l, func(cur layer.Layer) bool {
		LayersTotal.WithLabelValues(cur.Type().String()).Inc()
		return true
	})
}

// ObserveChecksums counts the invalid entries of statuses and returns how
// many there were.
func ObserveChecksums(statuses []layer.ChecksumStatus) int {
	bad := 0
	for _, s := range statuses {
		if !s.Valid {
			ChecksumMismatchesTotal.WithLabelValues(s.Layer.String()).Inc()
			bad++
		}
	}
	return bad
}
