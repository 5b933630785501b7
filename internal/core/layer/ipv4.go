package layer

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktcraft/internal/core"
)

// IPv4HeaderLen is the size of an IPv4 header without options.
const IPv4HeaderLen = 20

// IPv4 flag bits, as stored in IPv4.Flags.
const (
	IPv4MoreFragments uint8 = 1 << 0
	IPv4DontFragment  uint8 = 1 << 1
	IPv4EvilBit       uint8 = 1 << 2
)

// IPv4 is an IPv4 datagram. Options are carried verbatim and never
// interpreted.
type IPv4 struct {
	Version        uint8
	IHL            uint8
	TOS            uint8
	TotalLength    uint16
	ID             uint16
	Flags          uint8  // 3 bits
	FragmentOffset uint16 // 13 bits, in 8-byte units
	TTL            uint8
	Protocol       IPProtocol
	Checksum       uint16
	SrcIP          netip.Addr
	DstIP          netip.Addr
	Options        []byte

	// Payload is the layer selected by Protocol, nil when the protocol has
	// no decoder.
	Payload Layer
	// Rest holds the datagram bytes after the header that Payload does not
	// claim.
	Rest []byte
}

// NewIPv4 returns a header-only datagram with the usual defaults.
func NewIPv4(src, dst netip.Addr, proto IPProtocol) *IPv4 {
	return &IPv4{
		Version:     4,
		IHL:         5,
		TotalLength: IPv4HeaderLen,
		TTL:         64,
		Protocol:    proto,
		SrcIP:       src,
		DstIP:       dst,
	}
}

// DecodeIPv4 decodes an IPv4 datagram and the transport layer its protocol
// number selects. A failing ICMP/TCP/UDP/ICMPv6 decode fails the datagram.
//
// When TotalLength fits the buffer, bytes past it are left to the caller,
// unless the transport layer only decodes whole from the full buffer.
// Options are split off only when IHL*4 fits the buffer; otherwise IHL is
// kept as stored and the transport decode starts right after the fixed
// header.
func DecodeIPv4(data []byte) (*IPv4, error) {
	if len(data) < IPv4HeaderLen {
		return nil, fmt.Errorf("ipv4: need %d bytes, got %d: %w", IPv4HeaderLen, len(data), core.ErrPacketTooShort)
	}

	ip := &IPv4{
		Version:        data[0] >> 4,
		IHL:            data[0] & 0x0F,
		TOS:            data[1],
		TotalLength:    be.Uint16(data[2:4]),
		ID:             be.Uint16(data[4:6]),
		Flags:          data[6] >> 5,
		FragmentOffset: be.Uint16(data[6:8]) & 0x1FFF,
		TTL:            data[8],
		Protocol:       IPProtocol(data[9]),
		Checksum:       be.Uint16(data[10:12]),
		SrcIP:          addr4(data[12:16]),
		DstIP:          addr4(data[16:20]),
	}

	headerLen := IPv4HeaderLen
	if n := int(ip.IHL) * 4; n > IPv4HeaderLen && n <= len(data) {
		headerLen = n
		ip.Options = cloneBytes(data[IPv4HeaderLen:n])
	}

	full := data[headerLen:]
	body := full
	if n := int(ip.TotalLength); n >= headerLen && n <= len(data) {
		body = data[headerLen:n]
	}

	payload, known, body, err := decodeBounded(ipProtocolDecoders, ip.Protocol, body, full)
	if err != nil {
		return nil, fmt.Errorf("ipv4: %s payload: %w", ip.Protocol, err)
	}
	if !known {
		ip.Rest = cloneBytes(body)
		return ip, nil
	}

	ip.Payload = payload
	if n := payload.size(); n < len(body) {
		ip.Rest = cloneBytes(body[n:])
	}
	return ip, nil
}

func (ip *IPv4) Type() LayerType { return LayerTypeIPv4 }

// Len returns TotalLength as stored.
func (ip *IPv4) Len() int { return int(ip.TotalLength) }

// RecomputeLength pads Options to a 32-bit boundary, sets IHL and
// TotalLength and returns the new total length.
func (ip *IPv4) RecomputeLength() int {
	if pad := len(ip.Options) % 4; pad != 0 {
		ip.Options = append(ip.Options, make([]byte, 4-pad)...)
	}
	ip.IHL = uint8(ip.headerLen() / 4)
	total := ip.headerLen() + recomputePayload(ip.Payload) + len(ip.Rest)
	ip.TotalLength = uint16(total)
	return total
}

// SetPayload replaces the payload and updates TotalLength from the
// payload's declared length.
func (ip *IPv4) SetPayload(l Layer) {
	ip.Payload = l
	ip.TotalLength = uint16(ip.headerLen() + payloadLen(l) + len(ip.Rest))
}

func (ip *IPv4) Encode() []byte { return encode(ip) }

func (ip *IPv4) size() int {
	return ip.headerLen() + payloadSize(ip.Payload) + len(ip.Rest)
}

func (ip *IPv4) headerLen() int { return IPv4HeaderLen + len(ip.Options) }

func (ip *IPv4) appendHeader(b []byte, checksum uint16) []byte {
	b = append(b, ip.Version<<4|ip.IHL&0x0F, ip.TOS)
	b = be.AppendUint16(b, ip.TotalLength)
	b = be.AppendUint16(b, ip.ID)
	b = be.AppendUint16(b, uint16(ip.Flags&0x07)<<13|ip.FragmentOffset&0x1FFF)
	b = append(b, ip.TTL, uint8(ip.Protocol))
	b = be.AppendUint16(b, checksum)
	b = appendAddr4(b, ip.SrcIP)
	b = appendAddr4(b, ip.DstIP)
	return append(b, ip.Options...)
}

func (ip *IPv4) appendTo(b []byte) []byte {
	b = ip.appendHeader(b, ip.Checksum)
	b = appendPayload(b, ip.Payload)
	return append(b, ip.Rest...)
}

func (ip *IPv4) Clone() Layer {
	c := *ip
	c.Options = cloneBytes(ip.Options)
	c.Payload = clonePayload(ip.Payload)
	c.Rest = cloneBytes(ip.Rest)
	return &c
}

func (ip *IPv4) computeChecksum() uint16 {
	return Checksum(ip.appendHeader(make([]byte, 0, ip.headerLen()), 0))
}

// CalculateChecksum computes the header checksum, stores it and returns it.
// The payload is not covered.
func (ip *IPv4) CalculateChecksum() uint16 {
	ip.Checksum = ip.computeChecksum()
	return ip.Checksum
}

// ValidateChecksum reports whether the stored checksum matches the header.
func (ip *IPv4) ValidateChecksum() bool {
	return ip.Checksum == ip.computeChecksum()
}

// IsFragment reports whether the datagram is part of a fragmented one.
func (ip *IPv4) IsFragment() bool {
	return ip.Flags&IPv4MoreFragments != 0 || ip.FragmentOffset != 0
}
