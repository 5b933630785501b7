package layer

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktcraft/internal/core"
)

// UDPHeaderLen is the size of a UDP header.
const UDPHeaderLen = 8

// UDP is a UDP datagram.
//
// Its payload is a tagged union: App names the application protocol picked
// by the port heuristic and Payload holds the matching layer (*DHCP for
// UDPAppDHCP), or App is UDPAppUnknown and Payload is a *Raw with the bytes
// verbatim. A decoded UDP layer always has a non-nil Payload.
type UDP struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16

	App     UDPApp
	Payload Layer
}

// NewUDP returns a datagram carrying payload with Length already set.
func NewUDP(src, dst uint16, payload Layer) *UDP {
	u := &UDP{SrcPort: src, DstPort: dst}
	u.SetPayload(payload)
	return u
}

// DecodeUDP decodes a UDP datagram. Everything after the header is the
// payload. If the ports select a known application protocol that fails to
// decode, the payload falls back to *Raw.
func DecodeUDP(data []byte) (*UDP, error) {
	if len(data) < UDPHeaderLen {
		return nil, fmt.Errorf("udp: need %d bytes, got %d: %w", UDPHeaderLen, len(data), core.ErrPacketTooShort)
	}

	u := &UDP{
		SrcPort:  be.Uint16(data[0:2]),
		DstPort:  be.Uint16(data[2:4]),
		Length:   be.Uint16(data[4:6]),
		Checksum: be.Uint16(data[6:8]),
	}

	body := data[UDPHeaderLen:]
	app := classifyUDP(u.SrcPort, u.DstPort)
	if fn, ok := udpAppDecoders[app]; ok {
		if l, err := fn(body); err == nil {
			u.App, u.Payload = app, l
			return u, nil
		}
	}
	u.App, u.Payload = UDPAppUnknown, NewRaw(body)
	return u, nil
}

func (u *UDP) Type() LayerType { return LayerTypeUDP }

// Len returns Length as stored.
func (u *UDP) Len() int { return int(u.Length) }

func (u *UDP) RecomputeLength() int {
	n := UDPHeaderLen + recomputePayload(u.Payload)
	u.Length = uint16(n)
	return n
}

// SetPayload replaces the payload, retags App from its type and updates
// Length from the payload's declared length.
func (u *UDP) SetPayload(l Layer) {
	u.Payload = l
	switch l.(type) {
	case *DHCP:
		u.App = UDPAppDHCP
	default:
		u.App = UDPAppUnknown
	}
	u.Length = uint16(UDPHeaderLen + payloadLen(l))
}

func (u *UDP) Encode() []byte { return encode(u) }

func (u *UDP) size() int { return UDPHeaderLen + payloadSize(u.Payload) }

func (u *UDP) appendTo(b []byte) []byte {
	b = be.AppendUint16(b, u.SrcPort)
	b = be.AppendUint16(b, u.DstPort)
	b = be.AppendUint16(b, u.Length)
	b = be.AppendUint16(b, u.Checksum)
	return appendPayload(b, u.Payload)
}

func (u *UDP) Clone() Layer {
	c := *u
	c.Payload = clonePayload(u.Payload)
	return &c
}

// computeChecksum sums the first Length bytes of the datagram. Bytes past
// Length are a trailer and not covered; a Length outside [8, encoded size]
// falls back to the whole encoding.
func (u *UDP) computeChecksum(src, dst netip.Addr) uint16 {
	seg := u.Encode()
	if n := int(u.Length); n >= UDPHeaderLen && n < len(seg) {
		seg = seg[:n]
	}
	c := transportChecksum(seg, 6, src, dst, IPProtocolUDP)
	if c == 0 {
		// Zero means "no checksum" on the wire.
		c = 0xFFFF
	}
	return c
}

// CalculateChecksum computes the checksum over the pseudo-header built from
// src and dst, the header and the payload, stores it and returns it.
func (u *UDP) CalculateChecksum(src, dst netip.Addr) uint16 {
	u.Checksum = u.computeChecksum(src, dst)
	return u.Checksum
}

// ValidateChecksum reports whether the stored checksum is correct for the
// given addresses.
func (u *UDP) ValidateChecksum(src, dst netip.Addr) bool {
	return u.Checksum == u.computeChecksum(src, dst)
}

// PayloadBytes returns the encoded payload.
func (u *UDP) PayloadBytes() []byte {
	if u.Payload == nil {
		return nil
	}
	return u.Payload.Encode()
}
