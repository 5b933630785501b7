// Package layer implements the protocol layers of a frame and their binary
// codecs.
//
// Every layer owns at most one nested payload layer, so a decoded frame is a
// linear tree: Ethernet → IPv4/IPv6 → TCP/UDP/ICMP/ICMPv6 → DHCP. The set of
// layers is closed; consumers recover a concrete layer with a type switch.
//
// Decoding never validates lengths or checksums beyond the fixed minimum
// header size. Encoding writes whatever is stored, so after mutating a
// payload call RecomputeLength (or use Serialize) before trusting Len or a
// checksum that covers a length field.
package layer

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// LayerType tags a concrete Layer implementation.
type LayerType uint8

const (
	LayerTypeRaw LayerType = iota
	LayerTypeEthernet
	LayerTypeIPv4
	LayerTypeIPv6
	LayerTypeTCP
	LayerTypeUDP
	LayerTypeICMP
	LayerTypeICMPv6
	LayerTypeDHCP
)

var layerTypeNames = [...]string{
	LayerTypeRaw:      "Raw",
	LayerTypeEthernet: "Ethernet",
	LayerTypeIPv4:     "IPv4",
	LayerTypeIPv6:     "IPv6",
	LayerTypeTCP:      "TCP",
	LayerTypeUDP:      "UDP",
	LayerTypeICMP:     "ICMP",
	LayerTypeICMPv6:   "ICMPv6",
	LayerTypeDHCP:     "DHCP",
}

func (t LayerType) String() string {
	if int(t) < len(layerTypeNames) {
		return layerTypeNames[t]
	}
	return fmt.Sprintf("LayerType(%d)", uint8(t))
}

// Layer is the capability shared by every protocol layer.
type Layer interface {
	// Type returns the tag of the concrete layer.
	Type() LayerType
	// Len returns the declared wire length: the stored length field for
	// protocols that carry one, the derived length otherwise.
	Len() int
	// RecomputeLength derives the length bottom-up from the owned payload,
	// stores it in the length field and returns it.
	RecomputeLength() int
	// Encode serialises the stored fields and the nested payload.
	Encode() []byte
	// Clone returns a deep copy of the layer and everything it owns.
	Clone() Layer

	// size is the number of bytes appendTo writes, whatever Len declares.
	size() int
	appendTo(b []byte) []byte
}

// Payload returns the nested layer owned by l, or nil for leaf layers and
// branch layers without a decoded payload.
func Payload(l Layer) Layer {
	switch v := l.(type) {
	case *Ethernet:
		return v.Payload
	case *IPv4:
		return v.Payload
	case *IPv6:
		return v.Payload
	case *TCP:
		return v.Payload
	case *UDP:
		return v.Payload
	}
	return nil
}

// Walk calls fn for l and then for each nested payload, outermost first.
// It stops early when fn returns false.
func Walk(l Layer, fn func(Layer) bool) {
	for l != nil {
		if !fn(l) {
			return
		}
		l = Payload(l)
	}
}

// Find returns the first layer of type t in the spine rooted at l.
func Find(l Layer, t LayerType) Layer {
	var found Layer
	Walk(l, func(cur Layer) bool {
		if cur.Type() == t {
			found = cur
			return false
		}
		return true
	})
	return found
}

func payloadLen(l Layer) int {
	if l == nil {
		return 0
	}
	return l.Len()
}

func payloadSize(l Layer) int {
	if l == nil {
		return 0
	}
	return l.size()
}

func recomputePayload(l Layer) int {
	if l == nil {
		return 0
	}
	return l.RecomputeLength()
}

func appendPayload(b []byte, l Layer) []byte {
	if l == nil {
		return b
	}
	return l.appendTo(b)
}

func clonePayload(l Layer) Layer {
	if l == nil {
		return nil
	}
	return l.Clone()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func encode(l Layer) []byte {
	return l.appendTo(make([]byte, 0, l.size()))
}

func appendAddr4(b []byte, a netip.Addr) []byte {
	if !a.Is4() {
		return append(b, 0, 0, 0, 0)
	}
	v := a.As4()
	return append(b, v[:]...)
}

func appendAddr16(b []byte, a netip.Addr) []byte {
	if !a.IsValid() {
		return append(b, make([]byte, 16)...)
	}
	v := a.As16()
	return append(b, v[:]...)
}

func addr4(b []byte) netip.Addr {
	return netip.AddrFrom4([4]byte(b[:4]))
}

var be = binary.BigEndian
