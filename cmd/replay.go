package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/internal/config"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/internal/pipeline"
	filesink "firestige.xyz/pktcraft/internal/sink/file"
	filesource "firestige.xyz/pktcraft/internal/source/file"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Filter and rewrite a capture into a new capture",
	Long: `Read a capture file, keep the frames matching the filter, optionally fix
lengths and checksums, and write the result to a new pcap file. Frames that
fail to decode are copied unchanged.

Pipeline flags override the pipeline section of the config file.

Examples:
  pktcraft replay -r in.pcap -w out.pcap --filter udp
  pktcraft replay -r mangled.pcap -w fixed.pcap --fix-lengths --compute-checksums`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pc := cfg.Pipeline
		flags := cmd.Flags()
		if flags.Changed("filter") {
			pc.Filter = replayOpts.pipeline.Filter
		}
		if flags.Changed("workers") {
			pc.Workers = replayOpts.pipeline.Workers
		}
		if flags.Changed("fix-lengths") {
			pc.FixLengths = replayOpts.pipeline.FixLengths
		}
		if flags.Changed("compute-checksums") {
			pc.ComputeChecksums = replayOpts.pipeline.ComputeChecksums
		}
		if flags.Changed("verify") {
			pc.VerifyChecksums = replayOpts.pipeline.VerifyChecksums
		}
		if flags.Changed("interface") {
			pc.Interface = replayOpts.pipeline.Interface
		}
		if err := pc.Validate(); err != nil {
			return err
		}
		_, err := runReplay(cmd.Context(), replayOpts.readFile, replayOpts.writeFile, pc, cmd.OutOrStdout())
		return err
	},
}

var replayOpts struct {
	readFile  string
	writeFile string
	pipeline  config.PipelineConfig
}

func init() {
	f := replayCmd.Flags()
	f.StringVarP(&replayOpts.readFile, "read", "r", "", "input capture file (pcap or pcapng, required)")
	f.StringVarP(&replayOpts.writeFile, "write", "w", "", "output pcap file (required)")
	f.StringVarP(&replayOpts.pipeline.Filter, "filter", "f", "", "only keep frames matching the filter")
	f.IntVar(&replayOpts.pipeline.Workers, "workers", 0, "decode workers (0 = GOMAXPROCS)")
	f.BoolVar(&replayOpts.pipeline.FixLengths, "fix-lengths", false, "recompute every length field")
	f.BoolVar(&replayOpts.pipeline.ComputeChecksums, "compute-checksums", false, "recompute every checksum")
	f.BoolVar(&replayOpts.pipeline.VerifyChecksums, "verify", false, "count frames with invalid checksums")
	f.StringVarP(&replayOpts.pipeline.Interface, "interface", "i", "", "override the interface kind of the capture")
	replayCmd.MarkFlagRequired("read")
	replayCmd.MarkFlagRequired("write")
}

// runReplay copies in to out through the pipeline and prints the run
// statistics as YAML.
func runReplay(ctx context.Context, in, out string, pc config.PipelineConfig, w io.Writer) (pipeline.Stats, error) {
	src, err := filesource.NewSource(in)
	if err != nil {
		return pipeline.Stats{}, err
	}
	if kind, ok := pc.InterfaceOverride(); ok {
		src.SetInterface(kind)
	}
	// The output link type comes from the input header.
	if err := src.Start(ctx); err != nil {
		return pipeline.Stats{}, err
	}
	defer src.Stop()

	linkType := src.LinkType()
	if kind, ok := pc.InterfaceOverride(); ok {
		if linkType, err = filesource.LinkType(kind); err != nil {
			return pipeline.Stats{}, err
		}
	}
	sink, err := filesink.NewSink(out, linkType)
	if err != nil {
		return pipeline.Stats{}, err
	}

	p, err := pipeline.NewBuilder().WithConfig(pc).WithSource(src).WithSink(sink).Build()
	if err != nil {
		sink.Close()
		return pipeline.Stats{}, err
	}

	stats, err := p.Run(ctx)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return stats, err
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"input":  in,
		"output": out,
	}).Info("replay finished")
	if stats.ChecksumMismatches > 0 {
		log.GetLogger().Warnf("%d layer(s) with invalid checksums in %s", stats.ChecksumMismatches, in)
	}
	if err := printStats(w, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func printStats(w io.Writer, stats pipeline.Stats) error {
	b, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("render stats: %w", err)
	}
	_, err = w.Write(b)
	return err
}
