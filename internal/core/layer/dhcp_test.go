package layer

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/internal/core"
)

func TestDecodeDHCPMinimumLength(t *testing.T) {
	tests := []struct {
		n       int
		wantErr bool
	}{
		{0, true},
		{DHCPFixedLen, true},
		{238, true},
		{239, true},
		{DHCPMinLen, false},
		{DHCPMinLen + 1, false},
	}
	for _, tt := range tests {
		_, err := DecodeDHCP(make([]byte, tt.n))
		if tt.wantErr {
			assert.ErrorIs(t, err, core.ErrPacketTooShort, "len=%d", tt.n)
		} else {
			assert.NoError(t, err, "len=%d", tt.n)
		}
	}
}

func TestDHCPDiscoverRoundTrip(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	d := NewDHCPDiscover(mac, 0x3903f326)

	data := d.Encode()
	require.Len(t, data, d.Len())
	assert.Equal(t, []byte{99, 130, 83, 99}, data[236:240])

	got, err := DecodeDHCP(data)
	require.NoError(t, err)
	assert.Equal(t, DHCPOpRequest, got.Op)
	assert.Equal(t, uint8(1), got.HType)
	assert.Equal(t, uint8(6), got.HLen)
	assert.Equal(t, uint32(0x3903f326), got.XID)
	assert.Equal(t, uint16(0x8000), got.Flags)
	assert.Equal(t, netip.IPv4Unspecified(), got.YIAddr)
	assert.Equal(t, mac, got.ClientHardwareAddr())
	assert.True(t, got.HasMagicCookie())
	assert.Equal(t, data, got.Encode())

	mt, ok := got.MessageType()
	require.True(t, ok)
	assert.Equal(t, DHCPDiscover, mt)
	assert.Equal(t, "DHCPDISCOVER", mt.String())

	params, ok := got.Option(DHCPOptParamList)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 3, 51, 54}, params)
}

func TestDHCPCookieNotChecked(t *testing.T) {
	data := make([]byte, DHCPMinLen)
	data[0] = DHCPOpReply
	d, err := DecodeDHCP(data)
	require.NoError(t, err)
	assert.False(t, d.HasMagicCookie())
	assert.Equal(t, DHCPOpReply, d.Op)
}

func TestDHCPParseOptions(t *testing.T) {
	d := &DHCP{Options: []byte{
		DHCPOptPad,
		DHCPOptMessageType, 1, byte(DHCPAck),
		DHCPOptPad, DHCPOptPad,
		DHCPOptLeaseTime, 4, 0x00, 0x00, 0x0e, 0x10,
		DHCPOptEnd,
		DHCPOptHostname, 1, 'x', // after end, ignored
	}}

	opts, err := d.ParseOptions()
	require.NoError(t, err)
	assert.Equal(t, []DHCPOption{
		{Code: DHCPOptMessageType, Data: []byte{5}},
		{Code: DHCPOptLeaseTime, Data: []byte{0x00, 0x00, 0x0e, 0x10}},
	}, opts)

	_, ok := d.Option(DHCPOptHostname)
	assert.False(t, ok)
}

func TestDHCPParseOptionsMalformed(t *testing.T) {
	tests := []struct {
		name string
		opts []byte
		read int
	}{
		{"missing length", []byte{DHCPOptMessageType, 1, 1, DHCPOptHostname}, 1},
		{"length overrun", []byte{DHCPOptHostname, 10, 'a', 'b'}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &DHCP{Options: tt.opts}
			opts, err := d.ParseOptions()
			if !errors.Is(err, core.ErrMalformedOption) {
				t.Fatalf("Expected ErrMalformedOption, got %v", err)
			}
			if len(opts) != tt.read {
				t.Errorf("Expected %d options before the error, got %d", tt.read, len(opts))
			}
		})
	}
}

func TestDHCPMessageTypeString(t *testing.T) {
	assert.Equal(t, "DHCPOFFER", DHCPOffer.String())
	assert.Equal(t, "DHCPINFORM", DHCPInform.String())
	assert.Equal(t, "UNKNOWN(42)", DHCPMessageType(42).String())
}

func TestDHCPOptionsBuilderTruncates(t *testing.T) {
	var b DHCPOptionsBuilder
	area := b.Add(DHCPOptHostname, make([]byte, 300)...).End()
	assert.Len(t, area, 2+255+1)
	assert.Equal(t, byte(255), area[1])
	assert.Equal(t, DHCPOptEnd, area[len(area)-1])
}

func TestDHCPCloneIsDeep(t *testing.T) {
	d := NewDHCPDiscover(net.HardwareAddr{1, 2, 3, 4, 5, 6}, 7)
	c := d.Clone().(*DHCP)
	c.Options[2] = byte(DHCPRequest)
	c.CHAddr[0] = 0xff

	mt, _ := d.MessageType()
	assert.Equal(t, DHCPDiscover, mt)
	assert.Equal(t, byte(1), d.CHAddr[0])
}
