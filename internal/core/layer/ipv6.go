package layer

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktcraft/internal/core"
)

// IPv6HeaderLen is the size of the fixed IPv6 header.
const IPv6HeaderLen = 40

// IPv6 is an IPv6 packet. Extension headers are not interpreted: an
// extension next header leaves Payload nil and its bytes in Rest.
type IPv6 struct {
	Version       uint8
	TrafficClass  uint8
	FlowLabel     uint32 // 20 bits
	PayloadLength uint16
	NextHeader    IPProtocol
	HopLimit      uint8
	SrcIP         netip.Addr
	DstIP         netip.Addr

	Payload Layer
	Rest    []byte
}

// NewIPv6 returns a header-only packet.
func NewIPv6(src, dst netip.Addr, next IPProtocol) *IPv6 {
	return &IPv6{
		Version:    6,
		NextHeader: next,
		HopLimit:   64,
		SrcIP:      src,
		DstIP:      dst,
	}
}

// DecodeIPv6 decodes an IPv6 packet and the transport layer NextHeader
// selects, with the same strict policy and PayloadLength bounding as
// DecodeIPv4.
func DecodeIPv6(data []byte) (*IPv6, error) {
	if len(data) < IPv6HeaderLen {
		return nil, fmt.Errorf("ipv6: need %d bytes, got %d: %w", IPv6HeaderLen, len(data), core.ErrPacketTooShort)
	}

	vtf := be.Uint32(data[0:4])
	ip := &IPv6{
		Version:       uint8(vtf >> 28),
		TrafficClass:  uint8(vtf >> 20),
		FlowLabel:     vtf & 0x000FFFFF,
		PayloadLength: be.Uint16(data[4:6]),
		NextHeader:    IPProtocol(data[6]),
		HopLimit:      data[7],
		SrcIP:         netip.AddrFrom16([16]byte(data[8:24])),
		DstIP:         netip.AddrFrom16([16]byte(data[24:40])),
	}

	full := data[IPv6HeaderLen:]
	body := full
	if n := int(ip.PayloadLength); n <= len(full) {
		body = full[:n]
	}

	payload, known, body, err := decodeBounded(ipProtocolDecoders, ip.NextHeader, body, full)
	if err != nil {
		return nil, fmt.Errorf("ipv6: %s payload: %w", ip.NextHeader, err)
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

func (ip *IPv6) Type() LayerType { return LayerTypeIPv6 }

// Len returns the header size plus PayloadLength as stored.
func (ip *IPv6) Len() int { return IPv6HeaderLen + int(ip.PayloadLength) }

func (ip *IPv6) RecomputeLength() int {
	n := recomputePayload(ip.Payload) + len(ip.Rest)
	ip.PayloadLength = uint16(n)
	return IPv6HeaderLen + n
}

func (ip *IPv6) Encode() []byte { return encode(ip) }

func (ip *IPv6) size() int {
	return IPv6HeaderLen + payloadSize(ip.Payload) + len(ip.Rest)
}

func (ip *IPv6) appendTo(b []byte) []byte {
	b = be.AppendUint32(b, uint32(ip.Version&0x0F)<<28|uint32(ip.TrafficClass)<<20|ip.FlowLabel&0x000FFFFF)
	b = be.AppendUint16(b, ip.PayloadLength)
	b = append(b, uint8(ip.NextHeader), ip.HopLimit)
	b = appendAddr16(b, ip.SrcIP)
	b = appendAddr16(b, ip.DstIP)
	b = appendPayload(b, ip.Payload)
	return append(b, ip.Rest...)
}

func (ip *IPv6) Clone() Layer {
	c := *ip
	c.Payload = clonePayload(ip.Payload)
	c.Rest = cloneBytes(ip.Rest)
	return &c
}
