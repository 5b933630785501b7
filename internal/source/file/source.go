// Package file reads captured frames from pcap and pcapng files.
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/pktcraft/internal/core"
)

const Name = "file"

// Bluetooth link types missing from gopacket's LinkType table.
const (
	LinkTypeBluetoothHCIH4         layers.LinkType = 187
	LinkTypeBluetoothHCIH4WithPHDR layers.LinkType = 201
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source yields the frames of one capture file in file order.
type Source struct {
	path     string
	override *core.InterfaceKind

	closer   io.Closer
	reader   packetReader
	kind     core.InterfaceKind
	linkType layers.LinkType
}

// NewSource creates a source for the capture at path. Nothing is opened
// until Start.
func NewSource(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	return &Source{path: path}, nil
}

// NewReaderSource reads a capture from r, which is not closed by Stop.
func NewReaderSource(r io.Reader) (*Source, error) {
	s := &Source{path: "-"}
	if err := s.attach(r); err != nil {
		return nil, err
	}
	return s, nil
}

// SetInterface forces the interface kind of every packet, whatever the
// capture's link type says.
func (s *Source) SetInterface(kind core.InterfaceKind) {
	s.override = &kind
	if s.reader != nil {
		s.kind = kind
	}
}

// Start opens the capture and reads its file header.
func (s *Source) Start(ctx context.Context) error {
	if s.reader != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open capture file %s: %w", s.path, err)
	}
	if err := s.attach(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to read capture file %s: %w", s.path, err)
	}
	s.closer = f
	return nil
}

func (s *Source) attach(r io.Reader) error {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return fmt.Errorf("read file header: %w", err)
	}

	var pr packetReader
	if bytes.Equal(magic, pcapngMagic) {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		pr, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return err
	}

	lt := pr.LinkType()
	kind, err := InterfaceKind(lt)
	if s.override != nil {
		kind, err = *s.override, nil
	}
	if err != nil {
		return err
	}
	s.reader, s.kind, s.linkType = pr, kind, lt
	return nil
}

// ReadPacket returns the next frame, or io.EOF once the capture is
// exhausted. The returned data is owned by the caller.
func (s *Source) ReadPacket() (core.RawPacket, error) {
	if s.reader == nil {
		return core.RawPacket{}, fmt.Errorf("file source not started")
	}
	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.RawPacket{}, io.EOF
		}
		return core.RawPacket{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return core.RawPacket{
		Data:       data,
		Timestamp:  ci.Timestamp,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
		Interface:  s.kind,
	}, nil
}

// LinkType returns the link type recorded in the capture header.
func (s *Source) LinkType() layers.LinkType {
	if s.reader == nil {
		return layers.LinkTypeEthernet
	}
	return s.linkType
}

// Interface returns the kind stamped on every packet.
func (s *Source) Interface() core.InterfaceKind { return s.kind }

// Stop closes the capture file.
func (s *Source) Stop() error {
	s.reader = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// InterfaceKind maps a capture link type to the interface kind its frames
// are decoded as.
func InterfaceKind(lt layers.LinkType) (core.InterfaceKind, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return core.InterfaceEthernet, nil
	case layers.LinkTypeIEEE802_11, layers.LinkTypeIEEE80211Radio, layers.LinkTypePrismHeader:
		return core.InterfaceWiFi, nil
	case LinkTypeBluetoothHCIH4, LinkTypeBluetoothHCIH4WithPHDR:
		return core.InterfaceBluetooth, nil
	default:
		return 0, fmt.Errorf("link type %d: %w", uint8(lt), core.ErrUnsupportedInterface)
	}
}

// LinkType is the inverse of InterfaceKind.
func LinkType(kind core.InterfaceKind) (layers.LinkType, error) {
	switch kind {
	case core.InterfaceEthernet:
		return layers.LinkTypeEthernet, nil
	case core.InterfaceWiFi:
		return layers.LinkTypeIEEE802_11, nil
	case core.InterfaceBluetooth:
		return LinkTypeBluetoothHCIH4, nil
	default:
		return 0, fmt.Errorf("%s: %w", kind, core.ErrUnsupportedInterface)
	}
}
