package console

import (
	"bytes"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/core/packet"
	"firestige.xyz/pktcraft/internal/pipeline"
)

func dhcpRecord(t *testing.T) *pipeline.Record {
	t.Helper()
	mac := net.HardwareAddr{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}
	ip := layer.NewIPv4(netip.IPv4Unspecified(), netip.AddrFrom4([4]byte{255, 255, 255, 255}), layer.IPProtocolUDP)
	ip.Payload = layer.NewUDP(layer.PortDHCPClient, layer.PortDHCPServer, layer.NewDHCPDiscover(mac, 0x01020304))
	eth := layer.NewEthernet(mac, net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, layer.EtherTypeIPv4, ip)
	data := layer.Serialize(eth, layer.SerializeOptions{FixLengths: true, ComputeChecksums: true})

	raw := core.RawPacket{
		Data:       data,
		Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		CaptureLen: uint32(len(data)),
		OrigLen:    uint32(len(data)),
	}
	pkt, err := packet.FromRaw(raw)
	require.NoError(t, err)
	return &pipeline.Record{
		Index:     3,
		Raw:       raw,
		Packet:    pkt,
		Data:      data,
		Checksums: layer.VerifyChecksums(pkt.Frame),
	}
}

func decodeDocs(t *testing.T, out string) []map[string]any {
	t.Helper()
	dec := yaml.NewDecoder(strings.NewReader(out))
	var docs []map[string]any
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			break
		}
		docs = append(docs, doc)
	}
	return docs
}

func TestSinkWritesTree(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	require.NoError(t, s.Write(dhcpRecord(t)))
	require.NoError(t, s.Close())

	docs := decodeDocs(t, buf.String())
	require.Len(t, docs, 1)
	doc := docs[0]

	assert.Equal(t, 3, doc["index"])
	assert.Equal(t, "ethernet", doc["interface"])
	assert.Equal(t, "2024-03-01T12:00:00.000000Z", doc["timestamp"])
	assert.NotContains(t, doc, "rewritten")

	layers, ok := doc["layers"].([]any)
	require.True(t, ok)
	require.Len(t, layers, 4)

	var names []string
	for _, l := range layers {
		names = append(names, l.(map[string]any)["layer"].(string))
	}
	assert.Equal(t, []string{"Ethernet", "IPv4", "UDP", "DHCP"}, names)

	eth := layers[0].(map[string]any)
	assert.Equal(t, "02:42:ac:11:00:02", eth["src"])
	assert.Equal(t, "ff:ff:ff:ff:ff:ff", eth["dst"])
	assert.Equal(t, "IPv4", eth["ether_type"])

	udp := layers[2].(map[string]any)
	assert.Equal(t, 68, udp["src_port"])
	assert.Equal(t, 67, udp["dst_port"])
	assert.Equal(t, "DHCP", udp["app"])

	dhcp := layers[3].(map[string]any)
	assert.Equal(t, "0x01020304", dhcp["xid"])
	assert.Equal(t, "DHCPDISCOVER", dhcp["message_type"])
	assert.Equal(t, true, dhcp["magic_cookie"])
	assert.Len(t, dhcp["options"], 2)

	checks, ok := doc["checksums"].([]any)
	require.True(t, ok)
	require.Len(t, checks, 2)
	for _, c := range checks {
		assert.Equal(t, true, c.(map[string]any)["valid"])
	}
}

func TestSinkKeepsFieldOrder(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	require.NoError(t, s.Write(dhcpRecord(t)))
	require.NoError(t, s.Close())

	out := buf.String()
	idx := func(s string) int {
		i := strings.Index(out, s)
		require.GreaterOrEqual(t, i, 0, s)
		return i
	}
	assert.Less(t, idx("index:"), idx("interface:"))
	assert.Less(t, idx("interface:"), idx("layers:"))
	assert.Less(t, idx("layers:"), idx("checksums:"))
	assert.Less(t, idx("layer: Ethernet"), idx("layer: IPv4"))
	assert.Less(t, idx("layer: UDP"), idx("layer: DHCP"))
}

func TestSinkMultipleDocuments(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	rec := dhcpRecord(t)
	require.NoError(t, s.Write(rec))

	rewritten := *rec
	rewritten.Index = 4
	rewritten.Data = append([]byte(nil), rec.Data...)
	rewritten.Data[len(rewritten.Data)-1] ^= 0xff
	require.NoError(t, s.Write(&rewritten))
	require.NoError(t, s.Close())

	docs := decodeDocs(t, buf.String())
	require.Len(t, docs, 2)
	assert.Equal(t, 4, docs[1]["index"])
	assert.Equal(t, true, docs[1]["rewritten"])
}

func TestSinkDecodeError(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	rec := &pipeline.Record{
		Raw: core.RawPacket{Data: []byte{0xde, 0xad}, CaptureLen: 2, OrigLen: 2},
		Err: errors.New("ethernet: need 14 bytes, got 2"),
	}
	rec.Data = rec.Raw.Data
	require.NoError(t, s.Write(rec))
	require.NoError(t, s.Close())

	docs := decodeDocs(t, buf.String())
	require.Len(t, docs, 1)
	assert.Equal(t, "ethernet: need 14 bytes, got 2", docs[0]["error"])
	assert.Equal(t, "dead", docs[0]["data"])
	assert.NotContains(t, docs[0], "layers")
}

func TestSinkClosed(t *testing.T) {
	s := NewSink(&bytes.Buffer{})
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Error(t, s.Write(dhcpRecord(t)))
}

func TestDescribeLayers(t *testing.T) {
	tcp := &layer.TCP{SrcPort: 443, DstPort: 50000, DataOffset: 6, Flags: layer.TCPFlagSYN | layer.TCPFlagACK, Options: []byte{2, 4, 5, 0xb4}}
	got := describeLayer(tcp)
	assert.Equal(t, fields{
		{"layer", "TCP"},
		{"src_port", uint16(443)},
		{"dst_port", uint16(50000)},
		{"seq", uint32(0)},
		{"ack", uint32(0)},
		{"data_offset", uint8(6)},
		{"flags", "SYN|ACK"},
		{"window", uint16(0)},
		{"checksum", "0x0000"},
		{"urgent", uint16(0)},
		{"options", "020405b4"},
	}, got)

	raw := describeLayer(layer.NewRaw([]byte{1, 2, 3}))
	assert.Equal(t, fields{{"layer", "Raw"}, {"length", 3}, {"data", "010203"}}, raw)

	eth := describeLayer(&layer.Ethernet{EtherType: layer.EtherTypeARP, Rest: []byte{0xaa}})
	assert.Equal(t, field{"rest", "aa"}, eth[len(eth)-1])

	bad := describeLayer(&layer.DHCP{Options: []byte{layer.DHCPOptHostname, 9, 'x'}})
	assert.Equal(t, "options_error", bad[len(bad)-1].key)
}
