package cmd

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/pipeline"
	"firestige.xyz/pktcraft/internal/sink/console"
	filesource "firestige.xyz/pktcraft/internal/source/file"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [HEX...]",
	Short: "Decode frames and print their layer tree as YAML",
	Long: `Decode frames and print one YAML document per frame.

Frames come from a capture file (--read), from hex arguments, or from hex
lines on stdin when neither is given.

Examples:
  pktcraft decode -r capture.pcap --filter dhcp
  pktcraft decode --verify ffffffffffff0242ac110002080045...
  pktcraft craft udp | pktcraft decode`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := decodeOpts
		if !cmd.Flags().Changed("verify") {
			opts.verify = cfg.Pipeline.VerifyChecksums
		}
		if !cmd.Flags().Changed("filter") {
			opts.filter = cfg.Pipeline.Filter
		}
		opts.override = cmd.Flags().Changed("interface")
		if !opts.override && cfg.Pipeline.Interface != "" {
			opts.iface, opts.override = cfg.Pipeline.Interface, true
		}
		opts.workers = cfg.Pipeline.Workers
		_, err := runDecode(cmd.Context(), opts, args, cmd.InOrStdin(), cmd.OutOrStdout())
		return err
	},
}

type decodeOptions struct {
	readFile string
	iface    string
	override bool // iface also overrides the link type of captures
	filter   string
	verify   bool
	workers  int
}

var decodeOpts decodeOptions

func init() {
	decodeCmd.Flags().StringVarP(&decodeOpts.readFile, "read", "r", "",
		"capture file to decode (pcap or pcapng, - for stdin)")
	decodeCmd.Flags().StringVarP(&decodeOpts.iface, "interface", "i", "ethernet",
		"interface kind of hex frames, or override for capture files")
	decodeCmd.Flags().StringVarP(&decodeOpts.filter, "filter", "f", "",
		"only decode frames matching the filter (e.g. udp, dhcp, udp and host A.B.C.D)")
	decodeCmd.Flags().BoolVar(&decodeOpts.verify, "verify", false,
		"verify checksums of decoded frames")
}

func runDecode(ctx context.Context, opts decodeOptions, args []string, in io.Reader, out io.Writer) (pipeline.Stats, error) {
	kind, err := core.ParseInterfaceKind(opts.iface)
	if err != nil {
		return pipeline.Stats{}, err
	}

	var src pipeline.Source
	switch {
	case opts.readFile == "-":
		fs, err := filesource.NewReaderSource(in)
		if err != nil {
			return pipeline.Stats{}, fmt.Errorf("failed to read capture from stdin: %w", err)
		}
		src = overrideInterface(fs, opts, kind)
	case opts.readFile != "":
		fs, err := filesource.NewSource(opts.readFile)
		if err != nil {
			return pipeline.Stats{}, err
		}
		src = overrideInterface(fs, opts, kind)
	case len(args) > 0:
		src, err = newHexSource(kind, args)
	default:
		src, err = readHexSource(kind, in)
	}
	if err != nil {
		return pipeline.Stats{}, err
	}

	sink := console.NewSink(out)
	p, err := pipeline.NewBuilder().
		WithSource(src).
		WithSink(sink).
		WithFilter(opts.filter).
		WithWorkers(opts.workers).
		WithVerifyChecksums(opts.verify).
		Build()
	if err != nil {
		return pipeline.Stats{}, err
	}

	stats, err := p.Run(ctx)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	return stats, err
}

func overrideInterface(s *filesource.Source, opts decodeOptions, kind core.InterfaceKind) *filesource.Source {
	if opts.override {
		s.SetInterface(kind)
	}
	return s
}

// hexSource yields frames given as hex strings.
type hexSource struct {
	frames []core.RawPacket
}

func newHexSource(kind core.InterfaceKind, frames []string) (*hexSource, error) {
	s := &hexSource{}
	now := time.Now()
	for i, f := range frames {
		data, err := parseHex(f)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		s.frames = append(s.frames, core.RawPacket{
			Data:       data,
			Timestamp:  now,
			CaptureLen: uint32(len(data)),
			OrigLen:    uint32(len(data)),
			Interface:  kind,
		})
	}
	return s, nil
}

// readHexSource reads one hex frame per non-empty line. Lines starting with
// '#' are skipped.
func readHexSource(kind core.InterfaceKind, in io.Reader) (*hexSource, error) {
	var lines []string
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return newHexSource(kind, lines)
}

func (s *hexSource) Start(ctx context.Context) error { return nil }

func (s *hexSource) Stop() error { return nil }

func (s *hexSource) ReadPacket() (core.RawPacket, error) {
	if len(s.frames) == 0 {
		return core.RawPacket{}, io.EOF
	}
	raw := s.frames[0]
	s.frames = s.frames[1:]
	return raw, nil
}

// parseHex accepts plain hex as well as "0x"-prefixed, colon or space
// separated dumps.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("empty frame")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}
