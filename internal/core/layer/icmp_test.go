package layer

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/internal/core"
)

func TestICMPEchoChecksum(t *testing.T) {
	m := &ICMP{MsgType: ICMPEchoRequest, Identifier: 1, Sequence: 1}
	assert.Equal(t, uint16(0xf7fd), m.CalculateChecksum())
	assert.True(t, m.ValidateChecksum())

	m.Sequence = 2
	assert.False(t, m.ValidateChecksum())
}

func TestDecodeICMP(t *testing.T) {
	data := []byte{0x00, 0x00, 0x12, 0x34, 0x00, 0x07, 0x00, 0x2a, 'p', 'i', 'n', 'g'}

	m, err := DecodeICMP(data)
	require.NoError(t, err)
	assert.Equal(t, ICMPEchoReply, m.MsgType)
	assert.Equal(t, uint16(7), m.Identifier)
	assert.Equal(t, uint16(42), m.Sequence)
	assert.Equal(t, []byte("ping"), m.Data)
	assert.Equal(t, 12, m.Len())
	assert.Equal(t, data, m.Encode())

	data[8] = 'P'
	assert.Equal(t, byte('p'), m.Data[0], "decoded data must not alias the input")
}

func TestDecodeICMPTooShort(t *testing.T) {
	_, err := DecodeICMP([]byte{8, 0, 0, 0, 0, 1, 0})
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	_, err = DecodeICMPv6(nil)
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}

func TestICMPv6ChecksumUsesPseudoHeader(t *testing.T) {
	src, dst := netip.MustParseAddr("fe80::1"), netip.MustParseAddr("fe80::2")
	m := &ICMPv6{MsgType: ICMPv6EchoRequest, Identifier: 0x1234, Sequence: 1, Data: []byte{0xde, 0xad}}

	sum := m.CalculateChecksum(src, dst)
	assert.True(t, m.ValidateChecksum(src, dst))
	assert.False(t, m.ValidateChecksum(dst, src.Next().Next()))

	msg := m.Encode()
	msg[2], msg[3] = 0, 0
	s16, d16 := src.As16(), dst.As16()
	pseudo := append(append(s16[:], d16[:]...), 0, 0, 0, byte(len(msg)), 0, 0, 0, 58)
	assert.Equal(t, referenceChecksum(append(pseudo, msg...)), sum)
}

func TestICMPv6RoundTrip(t *testing.T) {
	data := []byte{129, 0, 0xab, 0xcd, 0x00, 0x01, 0x00, 0x02, 0xff}
	m, err := DecodeICMPv6(data)
	require.NoError(t, err)
	assert.Equal(t, ICMPv6EchoReply, m.MsgType)
	assert.Equal(t, uint16(0xabcd), m.Checksum)
	assert.Equal(t, data, m.Encode())
}
