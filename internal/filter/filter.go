// Package filter selects Ethernet frames with classic BPF programs run on
// the x/net/bpf virtual machine.
package filter

import (
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/pktcraft/internal/core"
)

const (
	accept = 65535

	etherTypeOff = 12
	ipv4ProtoOff = 14 + 9
	ipv4FragOff  = 14 + 6
	ipv4SrcOff   = 14 + 12
	ipv4DstOff   = 14 + 16
	ipv6NextOff  = 14 + 6

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD

	protoICMP   = 1
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

// Filter matches raw Ethernet frames. The zero expression accepts every
// frame.
type Filter struct {
	expr string
	prog []bpf.Instruction
	raw  []bpf.RawInstruction
	vm   *bpf.VM
}

// Compile builds a filter from expr. Supported terms:
//
//	ipv4 | ip | ipv6 | ip6 | tcp | udp | icmp | icmp6 | dhcp
//	src A.B.C.D | dst A.B.C.D | host A.B.C.D
//
// Terms may be joined with "and" (or "&&"). An empty expression accepts
// everything.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(strings.ToLower(expr))
	f := &Filter{expr: expr}
	if expr == "" {
		return f, nil
	}

	prog, err := program(expr)
	if err != nil {
		return nil, err
	}
	raw, err := bpf.Assemble(prog)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble BPF filter %q: %w", expr, err)
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("failed to load BPF filter %q: %w", expr, err)
	}
	f.prog, f.raw, f.vm = prog, raw, vm
	return f, nil
}

// Match reports whether frame passes the filter.
func (f *Filter) Match(frame []byte) bool {
	if f == nil || f.vm == nil {
		return true
	}
	n, err := f.vm.Run(frame)
	return err == nil && n > 0
}

// String returns the normalised expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Instructions returns the program, nil for the accept-all filter.
func (f *Filter) Instructions() []bpf.Instruction { return f.prog }

// RawInstructions returns the assembled program, suitable for attaching to
// a socket.
func (f *Filter) RawInstructions() []bpf.RawInstruction { return f.raw }

// program compiles each term and chains them: a term's accept becomes a
// jump to the next term, its reject stays a reject.
func program(expr string) ([]bpf.Instruction, error) {
	var terms [][]string
	cur := []string{}
	for _, f := range strings.Fields(expr) {
		if f == "and" || f == "&&" {
			if len(cur) == 0 {
				return nil, fmt.Errorf("filter %q: dangling %q: %w", expr, f, core.ErrUnsupportedProto)
			}
			terms, cur = append(terms, cur), []string{}
			continue
		}
		cur = append(cur, f)
	}
	if len(cur) == 0 {
		return nil, fmt.Errorf("filter %q: dangling operator: %w", expr, core.ErrUnsupportedProto)
	}
	terms = append(terms, cur)

	var prog []bpf.Instruction
	for i, fields := range terms {
		t, err := term(expr, fields)
		if err != nil {
			return nil, err
		}
		if i < len(terms)-1 {
			for j, ins := range t {
				if ret, ok := ins.(bpf.RetConstant); ok && ret.Val == accept {
					t[j] = bpf.Jump{Skip: uint32(len(t) - j - 1)}
				}
			}
		}
		prog = append(prog, t...)
	}
	return prog, nil
}

func term(expr string, fields []string) ([]bpf.Instruction, error) {
	switch len(fields) {
	case 1:
		switch fields[0] {
		case "ip", "ipv4":
			return etherTypeFilter(etherTypeIPv4), nil
		case "ip6", "ipv6":
			return etherTypeFilter(etherTypeIPv6), nil
		case "tcp":
			return dualStackProtoFilter(protoTCP), nil
		case "udp":
			return dualStackProtoFilter(protoUDP), nil
		case "icmp":
			return ipv4ProtoFilter(protoICMP), nil
		case "icmp6", "icmpv6":
			return ipv6ProtoFilter(protoICMPv6), nil
		case "dhcp":
			return dhcpFilter(), nil
		}
	case 2:
		addr, err := netip.ParseAddr(fields[1])
		if err != nil || !addr.Is4() {
			return nil, fmt.Errorf("filter %q: %q is not an IPv4 address: %w", expr, fields[1], core.ErrUnsupportedProto)
		}
		ip := addr.As4()
		v := uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
		switch fields[0] {
		case "src":
			return ipv4AddrFilter(ipv4SrcOff, v), nil
		case "dst":
			return ipv4AddrFilter(ipv4DstOff, v), nil
		case "host":
			return ipv4HostFilter(v), nil
		}
	}
	return nil, fmt.Errorf("filter %q: term %q: %w", expr, strings.Join(fields, " "), core.ErrUnsupportedProto)
}

func etherTypeFilter(etherType uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherType, SkipFalse: 1},
		bpf.RetConstant{Val: accept},
		bpf.RetConstant{Val: 0},
	}
}

func ipv4ProtoFilter(proto uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 3},
		bpf.LoadAbsolute{Off: ipv4ProtoOff, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: proto, SkipFalse: 1},
		bpf.RetConstant{Val: accept},
		bpf.RetConstant{Val: 0},
	}
}

func ipv6ProtoFilter(proto uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv6, SkipFalse: 3},
		bpf.LoadAbsolute{Off: ipv6NextOff, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: proto, SkipFalse: 1},
		bpf.RetConstant{Val: accept},
		bpf.RetConstant{Val: 0},
	}
}

// dualStackProtoFilter matches proto carried directly by IPv4 or IPv6.
func dualStackProtoFilter(proto uint32) []bpf.Instruction {
	return []bpf.Instruction{
		/* 0 */ bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		/* 1 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 2},
		/* 2 */ bpf.LoadAbsolute{Off: ipv4ProtoOff, Size: 1},
		/* 3 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: proto, SkipTrue: 3, SkipFalse: 4},
		/* 4 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv6, SkipFalse: 3},
		/* 5 */ bpf.LoadAbsolute{Off: ipv6NextOff, Size: 1},
		/* 6 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: proto, SkipFalse: 1},
		/* 7 */ bpf.RetConstant{Val: accept},
		/* 8 */ bpf.RetConstant{Val: 0},
	}
}

// dhcpFilter matches unfragmented IPv4 UDP with both ports in {67, 68},
// the same pair the decoder classifies as DHCP.
func dhcpFilter() []bpf.Instruction {
	return []bpf.Instruction{
		/* 0 */ bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		/* 1 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 12},
		/* 2 */ bpf.LoadAbsolute{Off: ipv4ProtoOff, Size: 1},
		/* 3 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: protoUDP, SkipFalse: 10},
		/* 4 */ bpf.LoadAbsolute{Off: ipv4FragOff, Size: 2},
		/* 5 */ bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: 8},
		/* 6 */ bpf.LoadMemShift{Off: 14},
		/* 7 */ bpf.LoadIndirect{Off: 14, Size: 2},
		/* 8 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: 67, SkipTrue: 1},
		/* 9 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: 68, SkipFalse: 4},
		/* 10 */ bpf.LoadIndirect{Off: 16, Size: 2},
		/* 11 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: 67, SkipTrue: 1},
		/* 12 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: 68, SkipFalse: 1},
		/* 13 */ bpf.RetConstant{Val: accept},
		/* 14 */ bpf.RetConstant{Val: 0},
	}
}

func ipv4AddrFilter(off uint32, addr uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 3},
		bpf.LoadAbsolute{Off: off, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: addr, SkipFalse: 1},
		bpf.RetConstant{Val: accept},
		bpf.RetConstant{Val: 0},
	}
}

func ipv4HostFilter(addr uint32) []bpf.Instruction {
	return []bpf.Instruction{
		/* 0 */ bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		/* 1 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 5},
		/* 2 */ bpf.LoadAbsolute{Off: ipv4SrcOff, Size: 4},
		/* 3 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: addr, SkipTrue: 2},
		/* 4 */ bpf.LoadAbsolute{Off: ipv4DstOff, Size: 4},
		/* 5 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: addr, SkipFalse: 1},
		/* 6 */ bpf.RetConstant{Val: accept},
		/* 7 */ bpf.RetConstant{Val: 0},
	}
}
