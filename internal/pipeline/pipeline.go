// Package pipeline replays captured frames through the codec: read, filter,
// decode, optionally rewrite and verify, then write in capture order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/core/packet"
	"firestige.xyz/pktcraft/internal/filter"
	"firestige.xyz/pktcraft/internal/log"
	"firestige.xyz/pktcraft/internal/metrics"
)

const defaultBatchSize = 1024

// Source yields raw frames until it returns io.EOF.
type Source interface {
	Start(ctx context.Context) error
	ReadPacket() (core.RawPacket, error)
	Stop() error
}

// Sink receives records in capture order. The pipeline never closes it.
type Sink interface {
	Write(rec *Record) error
	Close() error
}

// Config contains pipeline configuration.
type Config struct {
	Source Source
	Sink   Sink

	// Filter drops Ethernet frames it does not match. Nil accepts all.
	Filter *filter.Filter

	Workers         int // Decode parallelism (0 = GOMAXPROCS)
	BatchSize       int // Frames decoded per round (0 = 1024)
	Serialize       layer.SerializeOptions
	VerifyChecksums bool
}

// Pipeline runs one Source through the codec into one Sink.
type Pipeline struct {
	source    Source
	sink      Sink
	filter    *filter.Filter
	workers   int
	batchSize int
	opts      layer.SerializeOptions
	verify    bool
	metrics   *Metrics
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Pipeline{
		source:    cfg.Source,
		sink:      cfg.Sink,
		filter:    cfg.Filter,
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
		opts:      cfg.Serialize,
		verify:    cfg.VerifyChecksums,
		metrics:   NewMetrics(),
	}
}

// Run drains the source. Decode failures are recorded and handed to the
// sink; source and sink failures abort the run. Counters are reset at the
// start of every run.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	if p.source == nil || p.sink == nil {
		return Stats{}, fmt.Errorf("pipeline: source and sink are required")
	}
	p.metrics.Reset()
	logger := log.GetLogger()

	if err := p.source.Start(ctx); err != nil {
		return p.Stats(), fmt.Errorf("start source: %w", err)
	}
	defer func() {
		if err := p.source.Stop(); err != nil {
			logger.WithError(err).Warn("source stop failed")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"workers": p.workers,
		"filter":  p.filter.String(),
		"rewrite": p.opts.FixLengths || p.opts.ComputeChecksums,
		"verify":  p.verify,
	}).Info("pipeline started")

	index := 0
	for {
		batch, eof, err := p.readBatch(ctx, &index)
		if err != nil {
			return p.Stats(), err
		}
		if len(batch) > 0 {
			records, err := p.processBatch(ctx, batch)
			if err != nil {
				return p.Stats(), err
			}
			if err := p.writeBatch(records); err != nil {
				return p.Stats(), err
			}
		}
		if eof {
			break
		}
	}

	stats := p.Stats()
	logger.WithFields(map[string]interface{}{
		"read":          stats.Read,
		"filtered":      stats.Filtered,
		"decoded":       stats.Decoded,
		"decode_errors": stats.DecodeErrors,
		"written":       stats.Written,
	}).Info("pipeline finished")
	return stats, nil
}

// readBatch reads up to batchSize frames that pass the filter.
func (p *Pipeline) readBatch(ctx context.Context, index *int) ([]*Record, bool, error) {
	batch := make([]*Record, 0, p.batchSize)
	for len(batch) < p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		start := time.Now()
		raw, err := p.source.ReadPacket()
		if errors.Is(err, io.EOF) {
			return batch, true, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("read packet %d: %w", *index, err)
		}
		metrics.StageLatencySeconds.WithLabelValues(metrics.StageRead).Observe(time.Since(start).Seconds())
		metrics.PacketsTotal.WithLabelValues(metrics.StageRead).Inc()
		p.metrics.Read.Add(1)

		i := *index
		*index++
		if raw.Interface == core.InterfaceEthernet && !p.filter.Match(raw.Data) {
			metrics.PacketsTotal.WithLabelValues(metrics.StageFiltered).Inc()
			p.metrics.Filtered.Add(1)
			continue
		}
		batch = append(batch, &Record{Index: i, Raw: raw})
	}
	return batch, false, nil
}

func (p *Pipeline) processBatch(ctx context.Context, batch []*Record) ([]*Record, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, rec := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.process(rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

// process decodes one frame and fills in the rest of its record.
func (p *Pipeline) process(rec *Record) {
	start := time.Now()
	pkt, err := packet.FromRaw(rec.Raw)
	metrics.StageLatencySeconds.WithLabelValues(metrics.StageDecoded).Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.DecodeErrors.Add(1)
		metrics.DecodeErrorsTotal.WithLabelValues(metrics.ErrorReason(err)).Inc()
		log.GetLogger().WithFields(map[string]interface{}{
			"index": rec.Index,
			"len":   len(rec.Raw.Data),
		}).WithError(err).Debug("decode failed")
		rec.Err = err
		rec.Data = rec.Raw.Data
		return
	}
	rec.Packet = pkt
	p.metrics.Decoded.Add(1)
	metrics.PacketsTotal.WithLabelValues(metrics.StageDecoded).Inc()
	metrics.ObserveLayers(pkt.Frame)

	if p.verify {
		rec.Checksums = layer.VerifyChecksums(pkt.Frame)
		if bad := metrics.ObserveChecksums(rec.Checksums); bad > 0 {
			p.metrics.ChecksumMismatches.Add(uint64(bad))
			log.GetLogger().WithFields(map[string]interface{}{
				"index":   rec.Index,
				"invalid": bad,
			}).Debug("checksum mismatch")
		}
	}

	if !p.opts.FixLengths && !p.opts.ComputeChecksums {
		rec.Data = rec.Raw.Data
		return
	}
	start = time.Now()
	rec.Data = pkt.Serialize(p.opts)
	metrics.StageLatencySeconds.WithLabelValues(metrics.StageEncoded).Observe(time.Since(start).Seconds())
	metrics.PacketsTotal.WithLabelValues(metrics.StageEncoded).Inc()
	metrics.EncodedBytesTotal.Add(float64(len(rec.Data)))
	p.metrics.Encoded.Add(1)
}

func (p *Pipeline) writeBatch(records []*Record) error {
	for _, rec := range records {
		start := time.Now()
		if err := p.sink.Write(rec); err != nil {
			p.metrics.WriteErrors.Add(1)
			return fmt.Errorf("write packet %d: %w", rec.Index, err)
		}
		metrics.StageLatencySeconds.WithLabelValues(metrics.StageWritten).Observe(time.Since(start).Seconds())
		metrics.PacketsTotal.WithLabelValues(metrics.StageWritten).Inc()
		p.metrics.Written.Add(1)
	}
	return nil
}

// Stats returns the counters of the current or last run.
func (p *Pipeline) Stats() Stats {
	return p.metrics.Snapshot()
}
