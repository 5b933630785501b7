package layer

import (
	"fmt"
	"net"

	"firestige.xyz/pktcraft/internal/core"
)

// EthernetHeaderLen is the size of an untagged Ethernet II header.
const EthernetHeaderLen = 14

// Ethernet is an Ethernet II frame.
type Ethernet struct {
	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType EtherType

	// Payload is the layer selected by EtherType, nil when the EtherType has
	// no decoder.
	Payload Layer
	// Rest holds the bytes after the header that Payload does not claim,
	// such as minimum-frame padding or the body of an unknown EtherType.
	Rest []byte
}

// NewEthernet returns a frame carrying payload.
func NewEthernet(src, dst net.HardwareAddr, etherType EtherType, payload Layer) *Ethernet {
	e := &Ethernet{EtherType: etherType, Payload: payload}
	copy(e.SrcMAC[:], src)
	copy(e.DstMAC[:], dst)
	return e
}

// DecodeEthernet decodes an Ethernet II frame and, for IPv4/IPv6, its
// network layer. A failing network layer fails the frame.
func DecodeEthernet(data []byte) (*Ethernet, error) {
	if len(data) < EthernetHeaderLen {
		return nil, fmt.Errorf("ethernet: need %d bytes, got %d: %w", EthernetHeaderLen, len(data), core.ErrPacketTooShort)
	}

	e := &Ethernet{}
	copy(e.DstMAC[:], data[0:6])
	copy(e.SrcMAC[:], data[6:12])
	e.EtherType = EtherType(be.Uint16(data[12:14]))

	body := data[EthernetHeaderLen:]
	payload, known, err := decodeMandatory(etherTypeDecoders, e.EtherType, body)
	if err != nil {
		return nil, fmt.Errorf("ethernet: %s payload: %w", e.EtherType, err)
	}
	if !known {
		e.Rest = cloneBytes(body)
		return e, nil
	}

	e.Payload = payload
	if n := payload.size(); n < len(body) {
		e.Rest = cloneBytes(body[n:])
	}
	return e, nil
}

func (e *Ethernet) Type() LayerType { return LayerTypeEthernet }

// Len returns the header size plus the payload's declared length and Rest.
func (e *Ethernet) Len() int {
	return EthernetHeaderLen + payloadLen(e.Payload) + len(e.Rest)
}

func (e *Ethernet) RecomputeLength() int {
	return EthernetHeaderLen + recomputePayload(e.Payload) + len(e.Rest)
}

func (e *Ethernet) Encode() []byte { return encode(e) }

func (e *Ethernet) size() int {
	return EthernetHeaderLen + payloadSize(e.Payload) + len(e.Rest)
}

func (e *Ethernet) appendTo(b []byte) []byte {
	b = append(b, e.DstMAC[:]...)
	b = append(b, e.SrcMAC[:]...)
	b = be.AppendUint16(b, uint16(e.EtherType))
	b = appendPayload(b, e.Payload)
	return append(b, e.Rest...)
}

func (e *Ethernet) Clone() Layer {
	c := *e
	c.Payload = clonePayload(e.Payload)
	c.Rest = cloneBytes(e.Rest)
	return &c
}

// SrcHardwareAddr returns the source MAC as a net.HardwareAddr.
func (e *Ethernet) SrcHardwareAddr() net.HardwareAddr { return net.HardwareAddr(e.SrcMAC[:]) }

// DstHardwareAddr returns the destination MAC as a net.HardwareAddr.
func (e *Ethernet) DstHardwareAddr() net.HardwareAddr { return net.HardwareAddr(e.DstMAC[:]) }
