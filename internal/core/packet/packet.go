// Package packet binds a decoded frame to the interface it arrived on and
// its arrival time.
package packet

import (
	"fmt"
	"time"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
)

// Packet is one captured frame. Frame is the top layer and owns the whole
// tree; for InterfaceEthernet it is always an *layer.Ethernet.
type Packet struct {
	Interface core.InterfaceKind
	Timestamp time.Time
	Frame     layer.Layer
}

// New decodes data as a frame of the given interface kind. Only Ethernet
// interfaces are decoded; every other kind fails with
// core.ErrUnsupportedInterface.
func New(kind core.InterfaceKind, ts time.Time, data []byte) (*Packet, error) {
	frame, err := decodeFrame(kind, data)
	if err != nil {
		return nil, err
	}
	return &Packet{Interface: kind, Timestamp: ts, Frame: frame}, nil
}

// Decode is New stamped with the current time.
func Decode(kind core.InterfaceKind, data []byte) (*Packet, error) {
	return New(kind, time.Now(), data)
}

// FromRaw decodes a captured packet. Only the captured bytes are decoded;
// OrigLen is not consulted.
func FromRaw(raw core.RawPacket) (*Packet, error) {
	return New(raw.Interface, raw.Timestamp, raw.Data)
}

func decodeFrame(kind core.InterfaceKind, data []byte) (layer.Layer, error) {
	switch kind {
	case core.InterfaceEthernet:
		eth, err := layer.DecodeEthernet(data)
		if err != nil {
			return nil, err
		}
		return eth, nil
	default:
		return nil, fmt.Errorf("decode %s frame: %w", kind, core.ErrUnsupportedInterface)
	}
}

// FrameTime returns the arrival time in milliseconds since the Unix epoch.
func (p *Packet) FrameTime() int64 { return p.Timestamp.UnixMilli() }

// Encode serialises the frame exactly as stored.
func (p *Packet) Encode() []byte {
	if p.Frame == nil {
		return nil
	}
	return p.Frame.Encode()
}

// Serialize applies opts to the frame and returns its encoding.
func (p *Packet) Serialize(opts layer.SerializeOptions) []byte {
	if p.Frame == nil {
		return nil
	}
	return layer.Serialize(p.Frame, opts)
}

// Ethernet returns the frame as Ethernet, or nil for any other top layer.
func (p *Packet) Ethernet() *layer.Ethernet {
	eth, _ := p.Frame.(*layer.Ethernet)
	return eth
}

// Layer returns the first layer of type t in the frame.
func (p *Packet) Layer(t layer.LayerType) layer.Layer {
	if p.Frame == nil {
		return nil
	}
	return layer.Find(p.Frame, t)
}

// Layers lists the types of the frame's layers, outermost first.
func (p *Packet) Layers() []layer.LayerType {
	var types []layer.LayerType
	if p.Frame == nil {
		return types
	}
	layer.Walk(p.Frame, func(l layer.Layer) bool {
		types = append(types, l.Type())
		return true
	})
	return types
}

// Clone returns a deep copy of p.
func (p *Packet) Clone() *Packet {
	c := *p
	if p.Frame != nil {
		c.Frame = p.Frame.Clone()
	}
	return &c
}
