package pipeline

import (
	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/core/packet"
)

// Record is one captured frame after it went through the pipeline.
type Record struct {
	Index int            // Position in the capture, from 0
	Raw   core.RawPacket // Frame as read from the source

	// Packet is nil when decoding failed; Err then holds the reason.
	Packet *packet.Packet
	Err    error

	// Data is the frame to emit: the re-serialised packet when rewriting
	// was enabled, the captured bytes otherwise.
	Data []byte
	// Checksums are verified on the frame as captured, before any rewrite.
	Checksums []layer.ChecksumStatus
}

// Rewritten reports whether Data differs from the captured bytes.
func (r *Record) Rewritten() bool {
	return string(r.Data) != string(r.Raw.Data)
}
