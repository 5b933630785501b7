package layer

import "net/netip"

// SerializeOptions selects the fix-ups Serialize applies before encoding.
type SerializeOptions struct {
	// FixLengths recomputes every length field bottom-up.
	FixLengths bool
	// ComputeChecksums recomputes every checksum, using the addresses of the
	// enclosing IP layer for pseudo-headers.
	ComputeChecksums bool
}

// Serialize applies opts to l in place and returns its encoding. Lengths are
// fixed before checksums so that checksums cover the final length fields.
func Serialize(l Layer, opts SerializeOptions) []byte {
	if opts.FixLengths {
		l.RecomputeLength()
	}
	if opts.ComputeChecksums {
		ComputeChecksums(l)
	}
	return l.Encode()
}

// ComputeChecksums recomputes and stores the checksum of every layer in the
// spine rooted at l. Transport layers with no enclosing IP layer are left
// untouched.
func ComputeChecksums(l Layer) {
	var src, dst netip.Addr
	Walk(l, func(cur Layer) bool {
		switch v := cur.(type) {
		case *IPv4:
			src, dst = v.SrcIP, v.DstIP
			v.CalculateChecksum()
		case *IPv6:
			src, dst = v.SrcIP, v.DstIP
		case *ICMP:
			v.CalculateChecksum()
		case *TCP:
			if src.IsValid() {
				v.CalculateChecksum(src, dst)
			}
		case *UDP:
			if src.IsValid() {
				v.CalculateChecksum(src, dst)
			}
		case *ICMPv6:
			if src.IsValid() {
				v.CalculateChecksum(src, dst)
			}
		}
		return true
	})
}

// ChecksumStatus is the verification result for one checksummed layer.
type ChecksumStatus struct {
	Layer LayerType
	Value uint16
	Valid bool
}

// VerifyChecksums checks every checksummed layer in the spine rooted at l
// without modifying anything. Transport layers with no enclosing IP layer
// are skipped.
func VerifyChecksums(l Layer) []ChecksumStatus {
	var (
		src, dst netip.Addr
		out      []ChecksumStatus
	)
	Walk(l, func(cur Layer) bool {
		switch v := cur.(type) {
		case *IPv4:
			src, dst = v.SrcIP, v.DstIP
			out = append(out, ChecksumStatus{Layer: LayerTypeIPv4, Value: v.Checksum, Valid: v.ValidateChecksum()})
		case *IPv6:
			src, dst = v.SrcIP, v.DstIP
		case *ICMP:
			out = append(out, ChecksumStatus{Layer: LayerTypeICMP, Value: v.Checksum, Valid: v.ValidateChecksum()})
		case *TCP:
			if src.IsValid() {
				out = append(out, ChecksumStatus{Layer: LayerTypeTCP, Value: v.Checksum, Valid: v.ValidateChecksum(src, dst)})
			}
		case *UDP:
			if src.IsValid() {
				out = append(out, ChecksumStatus{Layer: LayerTypeUDP, Value: v.Checksum, Valid: v.ValidateChecksum(src, dst)})
			}
		case *ICMPv6:
			if src.IsValid() {
				out = append(out, ChecksumStatus{Layer: LayerTypeICMPv6, Value: v.Checksum, Valid: v.ValidateChecksum(src, dst)})
			}
		}
		return true
	})
	return out
}
