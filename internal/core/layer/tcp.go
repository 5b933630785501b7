package layer

import (
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/pktcraft/internal/core"
)

// TCPHeaderLen is the size of a TCP header without options.
const TCPHeaderLen = 20

// TCP control flags as stored in TCP.Flags.
const (
	TCPFlagFIN uint16 = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
	TCPFlagECE
	TCPFlagCWR
	TCPFlagNS
)

var tcpFlagNames = []string{"FIN", "SYN", "RST", "PSH", "ACK", "URG", "ECE", "CWR", "NS"}

// TCP is a TCP segment. Options are carried verbatim; segment data is a
// *Raw payload.
type TCP struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // header length in 32-bit words
	Reserved   uint8 // 3 bits
	Flags      uint16
	Window     uint16
	Checksum   uint16
	Urgent     uint16
	Options    []byte

	Payload Layer
}

// DecodeTCP decodes a TCP segment. Options are only split off when
// DataOffset describes a header that fits the buffer.
func DecodeTCP(data []byte) (*TCP, error) {
	if len(data) < TCPHeaderLen {
		return nil, fmt.Errorf("tcp: need %d bytes, got %d: %w", TCPHeaderLen, len(data), core.ErrPacketTooShort)
	}

	t := &TCP{
		SrcPort:    be.Uint16(data[0:2]),
		DstPort:    be.Uint16(data[2:4]),
		Seq:        be.Uint32(data[4:8]),
		Ack:        be.Uint32(data[8:12]),
		DataOffset: data[12] >> 4,
		Reserved:   (data[12] >> 1) & 0x07,
		Flags:      uint16(data[12]&0x01)<<8 | uint16(data[13]),
		Window:     be.Uint16(data[14:16]),
		Checksum:   be.Uint16(data[16:18]),
		Urgent:     be.Uint16(data[18:20]),
	}

	headerLen := TCPHeaderLen
	if n := int(t.DataOffset) * 4; n > TCPHeaderLen && n <= len(data) {
		headerLen = n
		t.Options = cloneBytes(data[TCPHeaderLen:n])
	}
	if len(data) > headerLen {
		t.Payload = NewRaw(data[headerLen:])
	}
	return t, nil
}

func (t *TCP) Type() LayerType { return LayerTypeTCP }

// Len returns the header size plus the payload length. TCP carries no
// length field of its own.
func (t *TCP) Len() int { return t.headerLen() + payloadLen(t.Payload) }

// RecomputeLength pads Options to a 32-bit boundary and sets DataOffset.
func (t *TCP) RecomputeLength() int {
	if pad := len(t.Options) % 4; pad != 0 {
		t.Options = append(t.Options, make([]byte, 4-pad)...)
	}
	t.DataOffset = uint8(t.headerLen() / 4)
	return t.headerLen() + recomputePayload(t.Payload)
}

func (t *TCP) Encode() []byte { return encode(t) }

func (t *TCP) size() int { return t.headerLen() + payloadSize(t.Payload) }

func (t *TCP) headerLen() int { return TCPHeaderLen + len(t.Options) }

func (t *TCP) appendTo(b []byte) []byte {
	b = be.AppendUint16(b, t.SrcPort)
	b = be.AppendUint16(b, t.DstPort)
	b = be.AppendUint32(b, t.Seq)
	b = be.AppendUint32(b, t.Ack)
	b = append(b, t.DataOffset<<4|(t.Reserved&0x07)<<1|uint8(t.Flags>>8)&0x01, uint8(t.Flags))
	b = be.AppendUint16(b, t.Window)
	b = be.AppendUint16(b, t.Checksum)
	b = be.AppendUint16(b, t.Urgent)
	b = append(b, t.Options...)
	return appendPayload(b, t.Payload)
}

func (t *TCP) Clone() Layer {
	c := *t
	c.Options = cloneBytes(t.Options)
	c.Payload = clonePayload(t.Payload)
	return &c
}

func (t *TCP) computeChecksum(src, dst netip.Addr) uint16 {
	return transportChecksum(t.Encode(), 16, src, dst, IPProtocolTCP)
}

// CalculateChecksum computes the checksum over the pseudo-header built from
// src and dst, the header and the payload, stores it and returns it.
func (t *TCP) CalculateChecksum(src, dst netip.Addr) uint16 {
	t.Checksum = t.computeChecksum(src, dst)
	return t.Checksum
}

// ValidateChecksum reports whether the stored checksum is correct for the
// given addresses.
func (t *TCP) ValidateChecksum(src, dst netip.Addr) bool {
	return t.Checksum == t.computeChecksum(src, dst)
}

// HasFlag reports whether all bits of f are set.
func (t *TCP) HasFlag(f uint16) bool { return t.Flags&f == f }

// FlagString renders the set flags as "SYN|ACK".
func (t *TCP) FlagString() string {
	var names []string
	for i, name := range tcpFlagNames {
		if t.Flags&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}
