package layer

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/internal/core"
)

func udpHeader(src, dst, length uint16) []byte {
	return []byte{byte(src >> 8), byte(src), byte(dst >> 8), byte(dst), byte(length >> 8), byte(length), 0xab, 0xcd}
}

func TestDecodeUDPTooShort(t *testing.T) {
	for n := 0; n < UDPHeaderLen; n++ {
		_, err := DecodeUDP(make([]byte, n))
		assert.ErrorIs(t, err, core.ErrPacketTooShort, "len=%d", n)
	}
}

func TestDecodeUDPUnknownPayload(t *testing.T) {
	data := append(udpHeader(5000, 5001, 12), 0x01, 0x02, 0x03, 0x04)

	udp, err := DecodeUDP(data)
	require.NoError(t, err)

	assert.Equal(t, uint16(5000), udp.SrcPort)
	assert.Equal(t, uint16(5001), udp.DstPort)
	assert.Equal(t, uint16(12), udp.Length)
	assert.Equal(t, uint16(0xabcd), udp.Checksum)
	assert.Equal(t, UDPAppUnknown, udp.App)

	raw, ok := udp.Payload.(*Raw)
	require.True(t, ok, "expected *Raw payload, got %T", udp.Payload)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, raw.Data)
	assert.Equal(t, data, udp.Encode())
}

func TestDecodeUDPEmptyPayloadIsRaw(t *testing.T) {
	udp, err := DecodeUDP(udpHeader(53, 53, 8))
	require.NoError(t, err)

	require.NotNil(t, udp.Payload, "unknown payload must be opaque, not absent")
	assert.Equal(t, LayerTypeRaw, udp.Payload.Type())
	assert.Equal(t, 0, udp.Payload.Len())
}

func TestDecodeUDPDHCP(t *testing.T) {
	dhcp := NewDHCPDiscover(net.HardwareAddr{0x02, 0, 0, 0, 0, 1}, 0xdeadbeef)
	data := append(udpHeader(PortDHCPClient, PortDHCPServer, uint16(UDPHeaderLen+dhcp.Len())), dhcp.Encode()...)

	udp, err := DecodeUDP(data)
	require.NoError(t, err)

	assert.Equal(t, UDPAppDHCP, udp.App)
	got, ok := udp.Payload.(*DHCP)
	require.True(t, ok, "expected *DHCP payload, got %T", udp.Payload)
	assert.Equal(t, uint32(0xdeadbeef), got.XID)
	assert.Equal(t, data, udp.Encode())
}

func TestDecodeUDPDHCPFallsBackToRaw(t *testing.T) {
	// DHCP ports but far too short for a DHCP message: the optional
	// decoder degrades to an opaque payload instead of failing.
	data := append(udpHeader(PortDHCPClient, PortDHCPServer, 18), make([]byte, 10)...)

	udp, err := DecodeUDP(data)
	require.NoError(t, err)
	assert.Equal(t, UDPAppUnknown, udp.App)
	assert.IsType(t, &Raw{}, udp.Payload)
	assert.Equal(t, 10, udp.Payload.Len())
}

func TestNewUDPSetsLengthAndApp(t *testing.T) {
	udp := NewUDP(1234, 80, NewRaw([]byte("hello")))
	assert.Equal(t, uint16(13), udp.Length)
	assert.Equal(t, UDPAppUnknown, udp.App)

	udp.SetPayload(NewDHCPDiscover(net.HardwareAddr{1, 2, 3, 4, 5, 6}, 1))
	assert.Equal(t, UDPAppDHCP, udp.App)
	assert.Equal(t, uint16(UDPHeaderLen+DHCPMinLen+10), udp.Length)
}

func TestUDPRecomputeLengthIdempotent(t *testing.T) {
	udp := &UDP{SrcPort: 1, DstPort: 2, Payload: NewRaw(make([]byte, 100))}
	first := udp.RecomputeLength()
	second := udp.RecomputeLength()
	assert.Equal(t, first, second)
	assert.Equal(t, 108, first)
	assert.Len(t, udp.Encode(), udp.Len())
}

func TestUDPChecksum(t *testing.T) {
	src, dst := netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("192.0.2.2")
	udp := NewUDP(1024, 53, NewRaw([]byte{0x12, 0x34, 0x56}))

	sum := udp.CalculateChecksum(src, dst)
	assert.Equal(t, sum, udp.Checksum)
	assert.True(t, udp.ValidateChecksum(src, dst))
	assert.False(t, udp.ValidateChecksum(dst, netip.MustParseAddr("192.0.2.3")))

	// Independent computation: pseudo-header + segment with zeroed checksum.
	seg := udp.Encode()
	seg[6], seg[7] = 0, 0
	pseudo := []byte{192, 0, 2, 1, 192, 0, 2, 2, 0, 17, 0, byte(len(seg))}
	assert.Equal(t, referenceChecksum(append(pseudo, seg...)), sum)
}

func TestUDPChecksumIgnoresTrailer(t *testing.T) {
	src, dst := netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("192.0.2.2")
	udp := NewUDP(1024, 53, NewRaw([]byte{0x12, 0x34, 0x56, 0x78}))
	udp.CalculateChecksum(src, dst)
	data := append(udp.Encode(), 0xee, 0xee)

	got, err := DecodeUDP(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(12), got.Length)
	assert.True(t, got.ValidateChecksum(src, dst))

	got.Checksum = 0
	assert.Equal(t, udp.Checksum, got.CalculateChecksum(src, dst))
	assert.Len(t, got.Encode(), 14)
}
