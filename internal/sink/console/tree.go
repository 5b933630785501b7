package console

import (
	"encoding/hex"
	"fmt"
	"net"

	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/core/packet"
	"firestige.xyz/pktcraft/internal/pipeline"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// fields is a YAML mapping that keeps insertion order.
type fields []field

type field struct {
	key   string
	value any
}

func (f fields) add(key string, value any) fields {
	return append(f, field{key: key, value: value})
}

func (f fields) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, kv := range f {
		var v yaml.Node
		if err := v.Encode(kv.value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", kv.key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv.key},
			&v,
		)
	}
	return node, nil
}

// Describe renders a pipeline record as an ordered tree: the envelope, one
// entry per layer from the outermost in, then the checksum results.
func Describe(rec *pipeline.Record) any {
	doc := fields{}.
		add("index", rec.Index).
		add("interface", rec.Raw.Interface.String()).
		add("timestamp", rec.Raw.Timestamp.UTC().Format(timeLayout)).
		add("capture_length", rec.Raw.CaptureLen).
		add("length", rec.Raw.OrigLen)

	if rec.Err != nil {
		return doc.
			add("error", rec.Err.Error()).
			add("data", hexString(rec.Raw.Data))
	}
	if rec.Packet != nil {
		doc = doc.add("layers", describePacket(rec.Packet))
	}
	if len(rec.Checksums) > 0 {
		checks := make([]fields, 0, len(rec.Checksums))
		for _, c := range rec.Checksums {
			checks = append(checks, fields{}.
				add("layer", c.Layer.String()).
				add("value", hex16(c.Value)).
				add("valid", c.Valid))
		}
		doc = doc.add("checksums", checks)
	}
	if rec.Rewritten() {
		doc = doc.add("rewritten", true)
	}
	return doc
}

func describePacket(p *packet.Packet) []fields {
	var out []fields
	layer.Walk(p.Frame, func(l layer.Layer) bool {
		out = append(out, describeLayer(l))
		return true
	})
	return out
}

func describeLayer(l layer.Layer) fields {
	f := fields{}.add("layer", l.Type().String())
	switch v := l.(type) {
	case *layer.Ethernet:
		f = f.add("src", net.HardwareAddr(v.SrcMAC[:]).String()).
			add("dst", net.HardwareAddr(v.DstMAC[:]).String()).
			add("ether_type", v.EtherType.String())
		f = addRest(f, v.Rest)
	case *layer.IPv4:
		f = f.add("version", v.Version).
			add("ihl", v.IHL).
			add("tos", v.TOS).
			add("total_length", v.TotalLength).
			add("id", hex16(v.ID)).
			add("flags", v.Flags).
			add("fragment_offset", v.FragmentOffset).
			add("ttl", v.TTL).
			add("protocol", v.Protocol.String()).
			add("checksum", hex16(v.Checksum)).
			add("src", v.SrcIP.String()).
			add("dst", v.DstIP.String())
		if len(v.Options) > 0 {
			f = f.add("options", hexString(v.Options))
		}
		f = addRest(f, v.Rest)
	case *layer.IPv6:
		f = f.add("version", v.Version).
			add("traffic_class", v.TrafficClass).
			add("flow_label", v.FlowLabel).
			add("payload_length", v.PayloadLength).
			add("next_header", v.NextHeader.String()).
			add("hop_limit", v.HopLimit).
			add("src", v.SrcIP.String()).
			add("dst", v.DstIP.String())
		f = addRest(f, v.Rest)
	case *layer.TCP:
		f = f.add("src_port", v.SrcPort).
			add("dst_port", v.DstPort).
			add("seq", v.Seq).
			add("ack", v.Ack).
			add("data_offset", v.DataOffset).
			add("flags", v.FlagString()).
			add("window", v.Window).
			add("checksum", hex16(v.Checksum)).
			add("urgent", v.Urgent)
		if len(v.Options) > 0 {
			f = f.add("options", hexString(v.Options))
		}
	case *layer.UDP:
		f = f.add("src_port", v.SrcPort).
			add("dst_port", v.DstPort).
			add("length", v.Length).
			add("checksum", hex16(v.Checksum)).
			add("app", v.App.String())
	case *layer.ICMP:
		f = addICMP(f, v.MsgType, v.Code, v.Checksum, v.Identifier, v.Sequence, v.Data)
	case *layer.ICMPv6:
		f = addICMP(f, v.MsgType, v.Code, v.Checksum, v.Identifier, v.Sequence, v.Data)
	case *layer.DHCP:
		f = describeDHCP(f, v)
	case *layer.Raw:
		f = f.add("length", len(v.Data)).
			add("data", hexString(v.Data))
	}
	return f
}

func addICMP(f fields, typ, code uint8, checksum, id, seq uint16, data []byte) fields {
	return f.add("type", typ).
		add("code", code).
		add("checksum", hex16(checksum)).
		add("identifier", id).
		add("sequence", seq).
		add("data_length", len(data))
}

func describeDHCP(f fields, d *layer.DHCP) fields {
	f = f.add("op", d.Op).
		add("htype", d.HType).
		add("hlen", d.HLen).
		add("hops", d.Hops).
		add("xid", fmt.Sprintf("0x%08x", d.XID)).
		add("secs", d.Secs).
		add("flags", hex16(d.Flags)).
		add("ciaddr", d.CIAddr.String()).
		add("yiaddr", d.YIAddr.String()).
		add("siaddr", d.SIAddr.String()).
		add("giaddr", d.GIAddr.String()).
		add("chaddr", d.ClientHardwareAddr().String()).
		add("magic_cookie", d.HasMagicCookie())
	if mt, ok := d.MessageType(); ok {
		f = f.add("message_type", mt.String())
	}

	opts, err := d.ParseOptions()
	list := make([]fields, 0, len(opts))
	for _, o := range opts {
		list = append(list, fields{}.
			add("code", o.Code).
			add("data", hexString(o.Data)))
	}
	f = f.add("options", list)
	if err != nil {
		f = f.add("options_error", err.Error())
	}
	return f
}

func addRest(f fields, rest []byte) fields {
	if len(rest) == 0 {
		return f
	}
	return f.add("rest", hexString(rest))
}

func hex16(v uint16) string { return fmt.Sprintf("0x%04x", v) }

func hexString(b []byte) string { return hex.EncodeToString(b) }
