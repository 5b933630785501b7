package layer

import "fmt"

// EtherType names the network protocol carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeVLAN EtherType = 0x8100
	EtherTypeIPv6 EtherType = 0x86DD
)

func (t EtherType) String() string {
	switch t {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeARP:
		return "ARP"
	case EtherTypeVLAN:
		return "VLAN"
	case EtherTypeIPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// IPProtocol is the IPv4 protocol number / IPv6 next header value.
type IPProtocol uint8

const (
	IPProtocolHopByHop IPProtocol = 0
	IPProtocolICMP     IPProtocol = 1
	IPProtocolIGMP     IPProtocol = 2
	IPProtocolTCP      IPProtocol = 6
	IPProtocolUDP      IPProtocol = 17
	IPProtocolIPv6     IPProtocol = 41
	IPProtocolGRE      IPProtocol = 47
	IPProtocolICMPv6   IPProtocol = 58
	IPProtocolOSPF     IPProtocol = 89
)

func (p IPProtocol) String() string {
	switch p {
	case IPProtocolHopByHop:
		return "HopByHop"
	case IPProtocolICMP:
		return "ICMP"
	case IPProtocolIGMP:
		return "IGMP"
	case IPProtocolTCP:
		return "TCP"
	case IPProtocolUDP:
		return "UDP"
	case IPProtocolIPv6:
		return "IPv6"
	case IPProtocolGRE:
		return "GRE"
	case IPProtocolICMPv6:
		return "ICMPv6"
	case IPProtocolOSPF:
		return "OSPF"
	default:
		return fmt.Sprintf("%d", uint8(p))
	}
}

// UDPApp tags the application protocol of a UDP payload.
type UDPApp uint8

const (
	// UDPAppUnknown marks an opaque payload kept as *Raw.
	UDPAppUnknown UDPApp = iota
	UDPAppDHCP
)

func (a UDPApp) String() string {
	switch a {
	case UDPAppDHCP:
		return "DHCP"
	default:
		return "Unknown"
	}
}

// DHCP well-known ports.
const (
	PortDHCPServer uint16 = 67
	PortDHCPClient uint16 = 68
)

type decodeFunc func([]byte) (Layer, error)

// Dispatch tables. A nested decode failure is handled per level:
//
//   - EtherType and IP protocol decoders are mandatory. When the discriminator
//     names a known protocol whose decode fails, the outer decode fails too.
//   - UDP port decoders are optional. A failed decode degrades to a *Raw
//     payload tagged UDPAppUnknown.
//
// A discriminator missing from its table leaves Payload nil; the bytes are
// kept in the outer layer's Rest.
var (
	etherTypeDecoders = map[EtherType]decodeFunc{
		EtherTypeIPv4: func(b []byte) (Layer, error) { return DecodeIPv4(b) },
		EtherTypeIPv6: func(b []byte) (Layer, error) { return DecodeIPv6(b) },
	}

	ipProtocolDecoders = map[IPProtocol]decodeFunc{
		IPProtocolICMP:   func(b []byte) (Layer, error) { return DecodeICMP(b) },
		IPProtocolTCP:    func(b []byte) (Layer, error) { return DecodeTCP(b) },
		IPProtocolUDP:    func(b []byte) (Layer, error) { return DecodeUDP(b) },
		IPProtocolICMPv6: func(b []byte) (Layer, error) { return DecodeICMPv6(b) },
	}

	udpAppDecoders = map[UDPApp]decodeFunc{
		UDPAppDHCP: func(b []byte) (Layer, error) { return DecodeDHCP(b) },
	}
)

// classifyUDP picks the application protocol from the port pair.
func classifyUDP(src, dst uint16) UDPApp {
	if (src == PortDHCPServer || src == PortDHCPClient) && (dst == PortDHCPServer || dst == PortDHCPClient) {
		return UDPAppDHCP
	}
	return UDPAppUnknown
}

// decodeMandatory decodes b with the decoder registered for key. ok is false
// when no decoder is registered; err is set when the registered decoder fails.
func decodeMandatory[K comparable](table map[K]decodeFunc, key K, b []byte) (l Layer, ok bool, err error) {
	fn, ok := table[key]
	if !ok {
		return nil, false, nil
	}
	l, err = fn(b)
	if err != nil {
		return nil, true, err
	}
	return l, true, nil
}

// decodeBounded decodes the body an IP length field delimits. The body is
// bounded first so link-layer padding stays outside the datagram. If that
// fails, or leaves the nested layer shorter than its own length field, the
// decode is retried on everything after the header. It returns the slice
// the payload was decoded from.
func decodeBounded[K comparable](table map[K]decodeFunc, key K, bounded, full []byte) (Layer, bool, []byte, error) {
	l, ok, err := decodeMandatory(table, key, bounded)
	if !ok {
		return nil, false, bounded, nil
	}
	if len(full) > len(bounded) && (err != nil || l.Len() > l.size()) {
		if l2, _, err2 := decodeMandatory(table, key, full); err2 == nil {
			return l2, true, full, nil
		}
	}
	return l, true, bounded, err
}
