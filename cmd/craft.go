package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/pipeline"
	filesink "firestige.xyz/pktcraft/internal/sink/file"
)

var craftCmd = &cobra.Command{
	Use:   "craft",
	Short: "Build a frame from flags",
	Long: `Build a frame with lengths and checksums filled in, and print it as hex
or write it to a pcap file.

Examples:
  pktcraft craft dhcp-discover --mac 02:42:ac:11:00:02
  pktcraft craft udp --src-ip 10.0.0.1 --dst-ip 10.0.0.2 --dport 53 --payload 00010203
  pktcraft craft udp --src-ip fe80::1 --dst-ip fe80::2 -w udp6.pcap`,
}

var craftDHCPCmd = &cobra.Command{
	Use:   "dhcp-discover",
	Short: "Build a broadcast DHCP DISCOVER",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := craftOpts
		if !cmd.Flags().Changed("xid") {
			opts.xid = rand.Uint32()
		}
		frame, err := buildDHCPDiscover(opts)
		if err != nil {
			return err
		}
		return writeFrame(frame, opts.writeFile, cmd.OutOrStdout())
	},
}

var craftUDPCmd = &cobra.Command{
	Use:   "udp",
	Short: "Build a UDP datagram over IPv4 or IPv6",
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, err := buildUDP(craftOpts)
		if err != nil {
			return err
		}
		return writeFrame(frame, craftOpts.writeFile, cmd.OutOrStdout())
	},
}

type craftOptions struct {
	writeFile string

	srcMAC string
	dstMAC string
	xid    uint32

	srcIP   string
	dstIP   string
	srcPort uint16
	dstPort uint16
	ttl     uint8
	payload string
}

var craftOpts craftOptions

func init() {
	pf := craftCmd.PersistentFlags()
	pf.StringVarP(&craftOpts.writeFile, "write", "w", "", "write a pcap file instead of printing hex")
	pf.StringVar(&craftOpts.srcMAC, "mac", "02:00:00:00:00:01", "source MAC address")
	pf.StringVar(&craftOpts.dstMAC, "dst-mac", "ff:ff:ff:ff:ff:ff", "destination MAC address")

	craftDHCPCmd.Flags().Uint32Var(&craftOpts.xid, "xid", 0, "transaction id (random when unset)")

	uf := craftUDPCmd.Flags()
	uf.StringVar(&craftOpts.srcIP, "src-ip", "192.0.2.1", "source address (IPv4 or IPv6)")
	uf.StringVar(&craftOpts.dstIP, "dst-ip", "192.0.2.2", "destination address, same family as --src-ip")
	uf.Uint16Var(&craftOpts.srcPort, "sport", 40000, "source port")
	uf.Uint16Var(&craftOpts.dstPort, "dport", 9, "destination port")
	uf.Uint8Var(&craftOpts.ttl, "ttl", 64, "IPv4 TTL / IPv6 hop limit")
	uf.StringVar(&craftOpts.payload, "payload", "", "payload as hex")

	craftCmd.AddCommand(craftDHCPCmd)
	craftCmd.AddCommand(craftUDPCmd)
}

var fixAll = layer.SerializeOptions{FixLengths: true, ComputeChecksums: true}

func parseMACs(opts craftOptions) (src, dst net.HardwareAddr, err error) {
	if src, err = net.ParseMAC(opts.srcMAC); err != nil {
		return nil, nil, fmt.Errorf("--mac: %w", err)
	}
	if dst, err = net.ParseMAC(opts.dstMAC); err != nil {
		return nil, nil, fmt.Errorf("--dst-mac: %w", err)
	}
	if len(src) != 6 || len(dst) != 6 {
		return nil, nil, fmt.Errorf("only 48-bit MAC addresses are supported")
	}
	return src, dst, nil
}

// buildDHCPDiscover returns a DISCOVER from 0.0.0.0:68 to
// 255.255.255.255:67.
func buildDHCPDiscover(opts craftOptions) ([]byte, error) {
	src, dst, err := parseMACs(opts)
	if err != nil {
		return nil, err
	}
	ip := layer.NewIPv4(netip.IPv4Unspecified(), netip.AddrFrom4([4]byte{255, 255, 255, 255}), layer.IPProtocolUDP)
	ip.SetPayload(layer.NewUDP(layer.PortDHCPClient, layer.PortDHCPServer, layer.NewDHCPDiscover(src, opts.xid)))
	eth := layer.NewEthernet(src, dst, layer.EtherTypeIPv4, ip)
	return layer.Serialize(eth, fixAll), nil
}

func buildUDP(opts craftOptions) ([]byte, error) {
	srcMAC, dstMAC, err := parseMACs(opts)
	if err != nil {
		return nil, err
	}
	src, err := netip.ParseAddr(opts.srcIP)
	if err != nil {
		return nil, fmt.Errorf("--src-ip: %w", err)
	}
	dst, err := netip.ParseAddr(opts.dstIP)
	if err != nil {
		return nil, fmt.Errorf("--dst-ip: %w", err)
	}
	src, dst = src.Unmap(), dst.Unmap()
	if src.Is4() != dst.Is4() {
		return nil, fmt.Errorf("--src-ip %s and --dst-ip %s: %w", src, dst, core.ErrUnsupportedProto)
	}

	var payload []byte
	if opts.payload != "" {
		if payload, err = parseHex(opts.payload); err != nil {
			return nil, fmt.Errorf("--payload: %w", err)
		}
	}
	udp := layer.NewUDP(opts.srcPort, opts.dstPort, layer.NewRaw(payload))

	var eth *layer.Ethernet
	if src.Is4() {
		ip := layer.NewIPv4(src, dst, layer.IPProtocolUDP)
		ip.TTL = opts.ttl
		ip.SetPayload(udp)
		eth = layer.NewEthernet(srcMAC, dstMAC, layer.EtherTypeIPv4, ip)
	} else {
		ip := layer.NewIPv6(src, dst, layer.IPProtocolUDP)
		ip.HopLimit = opts.ttl
		ip.Payload = udp
		eth = layer.NewEthernet(srcMAC, dstMAC, layer.EtherTypeIPv6, ip)
	}
	return layer.Serialize(eth, fixAll), nil
}

// writeFrame prints frame as one hex line, or stores it as a one-packet
// pcap when path is set.
func writeFrame(frame []byte, path string, stdout io.Writer) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, hex.EncodeToString(frame))
		return err
	}

	sink, err := filesink.NewSink(path, layers.LinkTypeEthernet)
	if err != nil {
		return err
	}
	rec := &pipeline.Record{
		Raw: core.RawPacket{
			Data:       frame,
			Timestamp:  time.Now(),
			CaptureLen: uint32(len(frame)),
			OrigLen:    uint32(len(frame)),
			Interface:  core.InterfaceEthernet,
		},
		Data: frame,
	}
	if err := sink.Write(rec); err != nil {
		sink.Close()
		return err
	}
	return sink.Close()
}
