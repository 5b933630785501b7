// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"strings"
	"time"
)

// InterfaceKind tags the kind of interface a frame was captured on.
// It decides which layer a raw buffer is decoded as.
type InterfaceKind uint8

const (
	InterfaceEthernet InterfaceKind = iota
	InterfaceWiFi
	InterfaceBluetooth
)

func (k InterfaceKind) String() string {
	switch k {
	case InterfaceEthernet:
		return "ethernet"
	case InterfaceWiFi:
		return "wifi"
	case InterfaceBluetooth:
		return "bluetooth"
	default:
		return fmt.Sprintf("interface(%d)", uint8(k))
	}
}

// ParseInterfaceKind is the inverse of InterfaceKind.String.
func ParseInterfaceKind(s string) (InterfaceKind, error) {
	switch strings.ToLower(s) {
	case "ethernet", "eth", "":
		return InterfaceEthernet, nil
	case "wifi", "wlan", "802.11":
		return InterfaceWiFi, nil
	case "bluetooth", "bt":
		return InterfaceBluetooth, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedInterface, s)
	}
}

// RawPacket is a captured frame as handed over by a capture source.
// Data is borrowed; decoders copy what they keep.
type RawPacket struct {
	Data       []byte        // Raw frame data
	Timestamp  time.Time     // Capture timestamp
	CaptureLen uint32        // Actual captured length
	OrigLen    uint32        // Original frame length
	Interface  InterfaceKind // Kind of the capturing interface
}
