// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared by the codec, the envelope and the tooling around them.
var (
	// Packet decoding errors
	ErrPacketTooShort       = errors.New("pktcraft: packet too short")
	ErrUnsupportedProto     = errors.New("pktcraft: unsupported protocol")
	ErrUnsupportedInterface = errors.New("pktcraft: unsupported interface kind")
	ErrMalformedOption      = errors.New("pktcraft: malformed option")

	// Configuration errors
	ErrConfigInvalid = errors.New("pktcraft: invalid configuration")
)
