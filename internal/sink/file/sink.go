// Package file writes frames to a pcap file.
package file

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/pktcraft/internal/pipeline"
)

const (
	Name = "file"

	defaultSnaplen = 262144
)

// Sink appends every record's Data to a pcap capture.
type Sink struct {
	mu       sync.Mutex
	buf      *bufio.Writer
	closer   io.Closer
	w        *pcapgo.Writer
	linkType layers.LinkType
	written  uint64
}

// NewSink creates the capture at path, truncating an existing file.
func NewSink(path string, linkType layers.LinkType) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file %s: %w", path, err)
	}
	s, err := NewWriterSink(f, linkType)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewWriterSink writes the capture to w. Close flushes but does not close w.
func NewWriterSink(w io.Writer, linkType layers.LinkType) (*Sink, error) {
	buf := bufio.NewWriter(w)
	pw := pcapgo.NewWriter(buf)
	if err := pw.WriteFileHeader(defaultSnaplen, linkType); err != nil {
		return nil, fmt.Errorf("write file header: %w", err)
	}
	return &Sink{buf: buf, w: pw, linkType: linkType}, nil
}

// Write appends rec.Data with the capture timestamp of rec.Raw. A frame
// passed through unchanged keeps its original wire length.
func (s *Sink) Write(rec *pipeline.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return fmt.Errorf("file sink closed")
	}

	frame := rec.Data
	if frame == nil {
		frame = rec.Raw.Data
	}
	length := len(frame)
	if string(frame) == string(rec.Raw.Data) && int(rec.Raw.OrigLen) > length {
		length = int(rec.Raw.OrigLen)
	}
	data := frame
	if len(data) > defaultSnaplen {
		data = data[:defaultSnaplen]
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     rec.Raw.Timestamp,
		CaptureLength: len(data),
		Length:        length,
	}
	if err := s.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write packet %d: %w", rec.Index, err)
	}
	s.written++
	return nil
}

// Written returns the number of packets written so far.
func (s *Sink) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// LinkType returns the link type recorded in the file header.
func (s *Sink) LinkType() layers.LinkType { return s.linkType }

// Close flushes buffered packets and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	s.w = nil
	err := s.buf.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}
