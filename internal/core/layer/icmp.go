package layer

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktcraft/internal/core"
)

// ICMPHeaderLen is the size of the echo-shaped ICMP and ICMPv6 header.
const ICMPHeaderLen = 8

// ICMP message types.
const (
	ICMPEchoReply       uint8 = 0
	ICMPDestUnreachable uint8 = 3
	ICMPEchoRequest     uint8 = 8
	ICMPTimeExceeded    uint8 = 11
)

// ICMPv6 message types.
const (
	ICMPv6DestUnreachable       uint8 = 1
	ICMPv6EchoRequest           uint8 = 128
	ICMPv6EchoReply             uint8 = 129
	ICMPv6RouterSolicitation    uint8 = 133
	ICMPv6NeighborSolicitation  uint8 = 135
	ICMPv6NeighborAdvertisement uint8 = 136
)

// ICMP is an ICMPv4 message read with the echo layout. Data is whatever
// follows the 8-byte header; it is carried opaquely.
type ICMP struct {
	MsgType    uint8
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Sequence   uint16
	Data       []byte
}

// DecodeICMP decodes an ICMPv4 message.
func DecodeICMP(data []byte) (*ICMP, error) {
	if len(data) < ICMPHeaderLen {
		return nil, fmt.Errorf("icmp: need %d bytes, got %d: %w", ICMPHeaderLen, len(data), core.ErrPacketTooShort)
	}
	return &ICMP{
		MsgType:    data[0],
		Code:       data[1],
		Checksum:   be.Uint16(data[2:4]),
		Identifier: be.Uint16(data[4:6]),
		Sequence:   be.Uint16(data[6:8]),
		Data:       cloneBytes(data[ICMPHeaderLen:]),
	}, nil
}

func (m *ICMP) Type() LayerType { return LayerTypeICMP }

func (m *ICMP) Len() int { return ICMPHeaderLen + len(m.Data) }

func (m *ICMP) RecomputeLength() int { return m.Len() }

func (m *ICMP) Encode() []byte { return encode(m) }

func (m *ICMP) size() int { return m.Len() }

func (m *ICMP) appendTo(b []byte) []byte {
	b = appendICMPHeader(b, m.MsgType, m.Code, m.Checksum, m.Identifier, m.Sequence)
	return append(b, m.Data...)
}

func (m *ICMP) Clone() Layer {
	c := *m
	c.Data = cloneBytes(m.Data)
	return &c
}

func (m *ICMP) computeChecksum() uint16 {
	b := m.Encode()
	b[2], b[3] = 0, 0
	return Checksum(b)
}

// CalculateChecksum computes the checksum over header and data, stores it
// and returns it. ICMPv4 has no pseudo-header.
func (m *ICMP) CalculateChecksum() uint16 {
	m.Checksum = m.computeChecksum()
	return m.Checksum
}

// ValidateChecksum reports whether the stored checksum is correct.
func (m *ICMP) ValidateChecksum() bool {
	return m.Checksum == m.computeChecksum()
}

// ICMPv6 is an ICMPv6 message with the same layout as ICMP.
type ICMPv6 struct {
	MsgType    uint8
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Sequence   uint16
	Data       []byte
}

// DecodeICMPv6 decodes an ICMPv6 message.
func DecodeICMPv6(data []byte) (*ICMPv6, error) {
	if len(data) < ICMPHeaderLen {
		return nil, fmt.Errorf("icmpv6: need %d bytes, got %d: %w", ICMPHeaderLen, len(data), core.ErrPacketTooShort)
	}
	return &ICMPv6{
		MsgType:    data[0],
		Code:       data[1],
		Checksum:   be.Uint16(data[2:4]),
		Identifier: be.Uint16(data[4:6]),
		Sequence:   be.Uint16(data[6:8]),
		Data:       cloneBytes(data[ICMPHeaderLen:]),
	}, nil
}

func (m *ICMPv6) Type() LayerType { return LayerTypeICMPv6 }

func (m *ICMPv6) Len() int { return ICMPHeaderLen + len(m.Data) }

func (m *ICMPv6) RecomputeLength() int { return m.Len() }

func (m *ICMPv6) Encode() []byte { return encode(m) }

func (m *ICMPv6) size() int { return m.Len() }

func (m *ICMPv6) appendTo(b []byte) []byte {
	b = appendICMPHeader(b, m.MsgType, m.Code, m.Checksum, m.Identifier, m.Sequence)
	return append(b, m.Data...)
}

func (m *ICMPv6) Clone() Layer {
	c := *m
	c.Data = cloneBytes(m.Data)
	return &c
}

func (m *ICMPv6) computeChecksum(src, dst netip.Addr) uint16 {
	return transportChecksum(m.Encode(), 2, src, dst, IPProtocolICMPv6)
}

// CalculateChecksum computes the checksum including the IPv6 pseudo-header,
// stores it and returns it.
func (m *ICMPv6) CalculateChecksum(src, dst netip.Addr) uint16 {
	m.Checksum = m.computeChecksum(src, dst)
	return m.Checksum
}

// ValidateChecksum reports whether the stored checksum is correct for the
// given addresses.
func (m *ICMPv6) ValidateChecksum(src, dst netip.Addr) bool {
	return m.Checksum == m.computeChecksum(src, dst)
}

func appendICMPHeader(b []byte, typ, code uint8, checksum, id, seq uint16) []byte {
	b = append(b, typ, code)
	b = be.AppendUint16(b, checksum)
	b = be.AppendUint16(b, id)
	return be.AppendUint16(b, seq)
}
