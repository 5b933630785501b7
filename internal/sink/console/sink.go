// Package console prints decoded frames as a stream of YAML documents.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/internal/pipeline"
)

const Name = "console"

// Sink writes one YAML document per record.
type Sink struct {
	mu  sync.Mutex
	enc *yaml.Encoder
}

// NewSink writes to w, or to stdout when w is nil.
func NewSink(w io.Writer) *Sink {
	if w == nil {
		w = os.Stdout
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &Sink{enc: enc}
}

// Write renders rec and writes it as the next document.
func (s *Sink) Write(rec *pipeline.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return fmt.Errorf("console sink closed")
	}
	if err := s.enc.Encode(Describe(rec)); err != nil {
		return fmt.Errorf("render packet %d: %w", rec.Index, err)
	}
	return nil
}

// Close flushes the encoder. The underlying writer is left open.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return nil
	}
	err := s.enc.Close()
	s.enc = nil
	return err
}
