package layer

import "net/netip"

// Checksum returns the RFC 1071 one's complement checksum of data.
// Callers must zero the checksum field inside data before calling.
func Checksum(data []byte) uint16 {
	return fold(sum(data, 0))
}

// sum adds data as big-endian 16-bit words to acc. An odd trailing byte is
// padded with zero.
func sum(data []byte, acc uint32) uint32 {
	n := len(data) &^ 1
	for i := 0; i < n; i += 2 {
		acc += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if len(data)&1 == 1 {
		acc += uint32(data[len(data)-1]) << 8
	}
	return acc
}

// fold folds the carries of acc into 16 bits and complements the result.
func fold(acc uint32) uint16 {
	for acc > 0xffff {
		acc = (acc >> 16) + (acc & 0xffff)
	}
	return ^uint16(acc)
}

// pseudoHeaderSum sums the pseudo-header that UDP, TCP and ICMPv6 checksums
// cover. The address family of src selects the IPv4 or IPv6 form; both forms
// sum to the same words apart from the address width.
func pseudoHeaderSum(src, dst netip.Addr, proto IPProtocol, length int) uint32 {
	var acc uint32
	if src.Is4() && dst.Is4() {
		s, d := src.As4(), dst.As4()
		acc = sum(s[:], acc)
		acc = sum(d[:], acc)
	} else {
		s, d := src.As16(), dst.As16()
		acc = sum(s[:], acc)
		acc = sum(d[:], acc)
		acc += uint32(length >> 16)
	}
	acc += uint32(proto)
	acc += uint32(length & 0xffff)
	return acc
}

// transportChecksum computes the checksum of an encoded segment whose
// checksum field sits at offset off, with the pseudo-header folded in.
func transportChecksum(seg []byte, off int, src, dst netip.Addr, proto IPProtocol) uint16 {
	seg[off], seg[off+1] = 0, 0
	return fold(sum(seg, pseudoHeaderSum(src, dst, proto, len(seg))))
}
