package pipeline

import (
	"errors"
	"fmt"

	"firestige.xyz/pktcraft/internal/config"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/filter"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
	err    error
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			BatchSize: defaultBatchSize,
		},
	}
}

// WithConfig applies the pipeline section of the configuration file.
func (b *Builder) WithConfig(pc config.PipelineConfig) *Builder {
	b.config.Workers = pc.Workers
	b.config.Serialize = pc.SerializeOptions()
	b.config.VerifyChecksums = pc.VerifyChecksums
	return b.WithFilter(pc.Filter)
}

// WithSource sets the frame source.
func (b *Builder) WithSource(s Source) *Builder {
	b.config.Source = s
	return b
}

// WithSink sets the record sink.
func (b *Builder) WithSink(s Sink) *Builder {
	b.config.Sink = s
	return b
}

// WithFilter compiles expr. An empty expression accepts every frame.
func (b *Builder) WithFilter(expr string) *Builder {
	f, err := filter.Compile(expr)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("filter %q: %w", expr, err))
		return b
	}
	b.config.Filter = f
	return b
}

// WithWorkers sets the decode parallelism.
func (b *Builder) WithWorkers(n int) *Builder {
	b.config.Workers = n
	return b
}

// WithBatchSize sets how many frames are decoded per round.
func (b *Builder) WithBatchSize(n int) *Builder {
	b.config.BatchSize = n
	return b
}

// WithSerializeOptions sets the fix-ups applied before writing.
func (b *Builder) WithSerializeOptions(opts layer.SerializeOptions) *Builder {
	b.config.Serialize = opts
	return b
}

// WithVerifyChecksums enables checksum verification of decoded frames.
func (b *Builder) WithVerifyChecksums(on bool) *Builder {
	b.config.VerifyChecksums = on
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.config.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if b.config.Sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	return New(b.config), nil
}
