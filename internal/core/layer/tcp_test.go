package layer

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"

	"firestige.xyz/pktcraft/internal/core"
)

func TestDecodeTCPBasic(t *testing.T) {
	data := []byte{
		0x1f, 0x90, // Src Port: 8080
		0xc3, 0x50, // Dst Port: 50000
		0x00, 0x00, 0x00, 0x01, // Seq
		0x00, 0x00, 0x00, 0x02, // Ack
		0x60, 0x12, // Data offset 6, SYN|ACK
		0xff, 0xff, // Window
		0x12, 0x34, // Checksum
		0x00, 0x00, // Urgent
		0x02, 0x04, 0x05, 0xb4, // MSS 1460
		'h', 'i',
	}

	tcp, err := DecodeTCP(data)
	if err != nil {
		t.Fatalf("DecodeTCP failed: %v", err)
	}

	if tcp.SrcPort != 8080 || tcp.DstPort != 50000 {
		t.Errorf("Expected ports 8080->50000, got %d->%d", tcp.SrcPort, tcp.DstPort)
	}
	if tcp.Seq != 1 || tcp.Ack != 2 {
		t.Errorf("Expected seq=1 ack=2, got seq=%d ack=%d", tcp.Seq, tcp.Ack)
	}
	if tcp.DataOffset != 6 {
		t.Errorf("Expected data offset 6, got %d", tcp.DataOffset)
	}
	if !tcp.HasFlag(TCPFlagSYN | TCPFlagACK) {
		t.Errorf("Expected SYN|ACK, got %s", tcp.FlagString())
	}
	if tcp.FlagString() != "SYN|ACK" {
		t.Errorf("Expected flag string SYN|ACK, got %s", tcp.FlagString())
	}
	if !bytes.Equal(tcp.Options, []byte{0x02, 0x04, 0x05, 0xb4}) {
		t.Errorf("Expected MSS option, got % x", tcp.Options)
	}
	raw, ok := tcp.Payload.(*Raw)
	if !ok || string(raw.Data) != "hi" {
		t.Errorf("Expected raw payload \"hi\", got %#v", tcp.Payload)
	}
	if tcp.Len() != len(data) {
		t.Errorf("Expected Len %d, got %d", len(data), tcp.Len())
	}
	if !bytes.Equal(tcp.Encode(), data) {
		t.Errorf("Encode mismatch:\n got % x\nwant % x", tcp.Encode(), data)
	}
}

func TestDecodeTCPTooShort(t *testing.T) {
	_, err := DecodeTCP(make([]byte, TCPHeaderLen-1))
	if !errors.Is(err, core.ErrPacketTooShort) {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func TestDecodeTCPNoPayload(t *testing.T) {
	data := make([]byte, TCPHeaderLen)
	data[12] = 0x50
	data[13] = 0x01 // FIN
	tcp, err := DecodeTCP(data)
	if err != nil {
		t.Fatalf("DecodeTCP failed: %v", err)
	}
	if tcp.Payload != nil {
		t.Errorf("Expected nil payload, got %T", tcp.Payload)
	}
	if !tcp.HasFlag(TCPFlagFIN) {
		t.Errorf("Expected FIN, got %s", tcp.FlagString())
	}
}

func TestTCPNSFlagAndReservedRoundTrip(t *testing.T) {
	data := make([]byte, TCPHeaderLen)
	data[12] = 0x50 | 0x0a | 0x01 // reserved bits 101, NS
	data[13] = 0x80               // CWR
	tcp, err := DecodeTCP(data)
	if err != nil {
		t.Fatalf("DecodeTCP failed: %v", err)
	}
	if !tcp.HasFlag(TCPFlagNS | TCPFlagCWR) {
		t.Errorf("Expected NS|CWR, got %s", tcp.FlagString())
	}
	if tcp.Reserved != 0x05 {
		t.Errorf("Expected reserved 0x05, got 0x%02x", tcp.Reserved)
	}
	if !bytes.Equal(tcp.Encode(), data) {
		t.Errorf("Encode mismatch:\n got % x\nwant % x", tcp.Encode(), data)
	}
}

func TestTCPRecomputeLengthPadsOptions(t *testing.T) {
	tcp := &TCP{Options: []byte{0x01, 0x01, 0x01}, Payload: NewRaw([]byte("data"))}
	n := tcp.RecomputeLength()
	if n != 24+4 {
		t.Errorf("Expected length 28, got %d", n)
	}
	if tcp.DataOffset != 6 {
		t.Errorf("Expected data offset 6, got %d", tcp.DataOffset)
	}
	if n2 := tcp.RecomputeLength(); n2 != n {
		t.Errorf("RecomputeLength not idempotent: %d then %d", n, n2)
	}
}

func TestTCPChecksum(t *testing.T) {
	src, dst := netip.MustParseAddr("10.1.1.1"), netip.MustParseAddr("10.1.1.2")
	tcp := &TCP{SrcPort: 443, DstPort: 40000, Seq: 100, Flags: TCPFlagACK | TCPFlagPSH, Window: 512, Payload: NewRaw([]byte("abc"))}
	tcp.RecomputeLength()

	sum := tcp.CalculateChecksum(src, dst)
	if !tcp.ValidateChecksum(src, dst) {
		t.Fatal("Expected checksum to validate")
	}

	seg := tcp.Encode()
	seg[16], seg[17] = 0, 0
	pseudo := []byte{10, 1, 1, 1, 10, 1, 1, 2, 0, 6, 0, byte(len(seg))}
	if want := referenceChecksum(append(pseudo, seg...)); sum != want {
		t.Errorf("Expected checksum 0x%04x, got 0x%04x", want, sum)
	}
}
