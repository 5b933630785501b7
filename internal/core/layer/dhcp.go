package layer

import (
	"fmt"
	"net"
	"net/netip"

	"firestige.xyz/pktcraft/internal/core"
)

const (
	// DHCPFixedLen is the size of the BOOTP fixed header.
	DHCPFixedLen = 236
	// DHCPMinLen is the smallest buffer DecodeDHCP accepts: the fixed
	// header plus the magic cookie.
	DHCPMinLen = DHCPFixedLen + 4
)

// DHCPMagicCookie precedes the options of every DHCP message.
var DHCPMagicCookie = [4]byte{99, 130, 83, 99}

// BOOTP operation codes.
const (
	DHCPOpRequest uint8 = 1
	DHCPOpReply   uint8 = 2
)

// DHCP option codes used by this package.
const (
	DHCPOptPad         uint8 = 0
	DHCPOptSubnetMask  uint8 = 1
	DHCPOptRouter      uint8 = 3
	DHCPOptHostname    uint8 = 12
	DHCPOptRequestedIP uint8 = 50
	DHCPOptLeaseTime   uint8 = 51
	DHCPOptMessageType uint8 = 53
	DHCPOptServerID    uint8 = 54
	DHCPOptParamList   uint8 = 55
	DHCPOptClientID    uint8 = 61
	DHCPOptEnd         uint8 = 255
)

// DHCPMessageType is the value of option 53.
type DHCPMessageType uint8

const (
	DHCPDiscover DHCPMessageType = 1
	DHCPOffer    DHCPMessageType = 2
	DHCPRequest  DHCPMessageType = 3
	DHCPDecline  DHCPMessageType = 4
	DHCPAck      DHCPMessageType = 5
	DHCPNak      DHCPMessageType = 6
	DHCPRelease  DHCPMessageType = 7
	DHCPInform   DHCPMessageType = 8
)

func (mt DHCPMessageType) String() string {
	switch mt {
	case DHCPDiscover:
		return "DHCPDISCOVER"
	case DHCPOffer:
		return "DHCPOFFER"
	case DHCPRequest:
		return "DHCPREQUEST"
	case DHCPDecline:
		return "DHCPDECLINE"
	case DHCPAck:
		return "DHCPACK"
	case DHCPNak:
		return "DHCPNAK"
	case DHCPRelease:
		return "DHCPRELEASE"
	case DHCPInform:
		return "DHCPINFORM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(mt))
	}
}

// DHCP is a BOOTP/DHCP message. Options is the raw option area after the
// cookie, read to the end of the buffer.
type DHCP struct {
	Op      uint8
	HType   uint8
	HLen    uint8
	Hops    uint8
	XID     uint32
	Secs    uint16
	Flags   uint16
	CIAddr  netip.Addr
	YIAddr  netip.Addr
	SIAddr  netip.Addr
	GIAddr  netip.Addr
	CHAddr  [16]byte
	SName   [64]byte
	File    [128]byte
	Cookie  [4]byte
	Options []byte
}

// NewDHCPDiscover returns a broadcast DISCOVER from mac with the given
// transaction id.
func NewDHCPDiscover(mac net.HardwareAddr, xid uint32) *DHCP {
	d := &DHCP{
		Op:     DHCPOpRequest,
		HType:  1,
		HLen:   uint8(len(mac)),
		XID:    xid,
		Flags:  0x8000,
		CIAddr: netip.IPv4Unspecified(),
		YIAddr: netip.IPv4Unspecified(),
		SIAddr: netip.IPv4Unspecified(),
		GIAddr: netip.IPv4Unspecified(),
		Cookie: DHCPMagicCookie,
	}
	copy(d.CHAddr[:], mac)

	var opts DHCPOptionsBuilder
	opts.Add(DHCPOptMessageType, byte(DHCPDiscover))
	opts.Add(DHCPOptParamList, DHCPOptSubnetMask, DHCPOptRouter, DHCPOptLeaseTime, DHCPOptServerID)
	d.Options = opts.End()
	return d
}

// DecodeDHCP decodes a DHCP message. Buffers that cannot hold the fixed
// header and the cookie are rejected; the cookie value is not checked.
func DecodeDHCP(data []byte) (*DHCP, error) {
	if len(data) < DHCPMinLen {
		return nil, fmt.Errorf("dhcp: need %d bytes, got %d: %w", DHCPMinLen, len(data), core.ErrPacketTooShort)
	}

	d := &DHCP{
		Op:      data[0],
		HType:   data[1],
		HLen:    data[2],
		Hops:    data[3],
		XID:     be.Uint32(data[4:8]),
		Secs:    be.Uint16(data[8:10]),
		Flags:   be.Uint16(data[10:12]),
		CIAddr:  addr4(data[12:16]),
		YIAddr:  addr4(data[16:20]),
		SIAddr:  addr4(data[20:24]),
		GIAddr:  addr4(data[24:28]),
		Options: cloneBytes(data[DHCPMinLen:]),
	}
	copy(d.CHAddr[:], data[28:44])
	copy(d.SName[:], data[44:108])
	copy(d.File[:], data[108:236])
	copy(d.Cookie[:], data[236:240])
	return d, nil
}

func (d *DHCP) Type() LayerType { return LayerTypeDHCP }

func (d *DHCP) Len() int { return DHCPMinLen + len(d.Options) }

func (d *DHCP) RecomputeLength() int { return d.Len() }

func (d *DHCP) Encode() []byte { return encode(d) }

func (d *DHCP) size() int { return d.Len() }

func (d *DHCP) appendTo(b []byte) []byte {
	b = append(b, d.Op, d.HType, d.HLen, d.Hops)
	b = be.AppendUint32(b, d.XID)
	b = be.AppendUint16(b, d.Secs)
	b = be.AppendUint16(b, d.Flags)
	b = appendAddr4(b, d.CIAddr)
	b = appendAddr4(b, d.YIAddr)
	b = appendAddr4(b, d.SIAddr)
	b = appendAddr4(b, d.GIAddr)
	b = append(b, d.CHAddr[:]...)
	b = append(b, d.SName[:]...)
	b = append(b, d.File[:]...)
	b = append(b, d.Cookie[:]...)
	return append(b, d.Options...)
}

func (d *DHCP) Clone() Layer {
	c := *d
	c.Options = cloneBytes(d.Options)
	return &c
}

// ClientHardwareAddr returns CHAddr truncated to HLen.
func (d *DHCP) ClientHardwareAddr() net.HardwareAddr {
	n := int(d.HLen)
	if n > len(d.CHAddr) {
		n = len(d.CHAddr)
	}
	return net.HardwareAddr(cloneBytes(d.CHAddr[:n]))
}

// HasMagicCookie reports whether Cookie holds the DHCP magic value.
func (d *DHCP) HasMagicCookie() bool { return d.Cookie == DHCPMagicCookie }

// DHCPOption is one TLV entry of the option area.
type DHCPOption struct {
	Code uint8
	Data []byte
}

// ParseOptions walks the option area up to the end option. Pad options are
// skipped. A truncated entry yields core.ErrMalformedOption together with
// the options read so far.
func (d *DHCP) ParseOptions() ([]DHCPOption, error) {
	var opts []DHCPOption
	b := d.Options
	for i := 0; i < len(b); {
		code := b[i]
		switch code {
		case DHCPOptPad:
			i++
			continue
		case DHCPOptEnd:
			return opts, nil
		}
		if i+1 >= len(b) {
			return opts, fmt.Errorf("dhcp option %d: missing length: %w", code, core.ErrMalformedOption)
		}
		n := int(b[i+1])
		if i+2+n > len(b) {
			return opts, fmt.Errorf("dhcp option %d: length %d exceeds %d remaining bytes: %w",
				code, n, len(b)-i-2, core.ErrMalformedOption)
		}
		opts = append(opts, DHCPOption{Code: code, Data: b[i+2 : i+2+n]})
		i += 2 + n
	}
	return opts, nil
}

// Option returns the data of the first option with the given code.
func (d *DHCP) Option(code uint8) ([]byte, bool) {
	opts, _ := d.ParseOptions()
	for _, o := range opts {
		if o.Code == code {
			return o.Data, true
		}
	}
	return nil, false
}

// MessageType returns the value of option 53.
func (d *DHCP) MessageType() (DHCPMessageType, bool) {
	v, ok := d.Option(DHCPOptMessageType)
	if !ok || len(v) != 1 {
		return 0, false
	}
	return DHCPMessageType(v[0]), true
}

// DHCPOptionsBuilder assembles an option area.
type DHCPOptionsBuilder struct {
	buf []byte
}

// Add appends one option. Data longer than 255 bytes is truncated.
func (o *DHCPOptionsBuilder) Add(code uint8, data ...byte) *DHCPOptionsBuilder {
	if len(data) > 255 {
		data = data[:255]
	}
	o.buf = append(o.buf, code, uint8(len(data)))
	o.buf = append(o.buf, data...)
	return o
}

// End appends the end option and returns the area.
func (o *DHCPOptionsBuilder) End() []byte {
	return append(o.buf, DHCPOptEnd)
}
