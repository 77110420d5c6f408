// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"io"
	"sync/atomic"
)

// countingReader counts the bytes pulled from r.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n.Add(int64(n))
	return n, err
}

// InflaterStream decodes a compressed payload and reports how many bytes it
// has consumed and produced. The counters may be read from any goroutine
// while another one reads the stream.
type InflaterStream struct {
	src          *countingReader
	dec          io.ReadCloser
	uncompressed atomic.Int64
}

// NewInflaterStream returns a stream decoding src with the decompressor
// registered for method. A nil registry selects DefaultRegistry.
func NewInflaterStream(src io.Reader, method CompressionMethod, registry *Registry) (*InflaterStream, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	d, err := registry.Decompressor(method)
	if err != nil {
		return nil, err
	}

	// The counter sits under the decompressor so any read-ahead it does is
	// counted as consumed.
	counter := &countingReader{r: src}
	dec, err := d.Decompress(counter)
	if err != nil {
		return nil, err
	}
	return &InflaterStream{src: counter, dec: dec}, nil
}

func (s *InflaterStream) Read(p []byte) (int, error) {
	n, err := s.dec.Read(p)
	s.uncompressed.Add(int64(n))
	return n, err
}

// ReadByte reads a single decoded byte.
func (s *InflaterStream) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := s.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// CompressedCount returns the number of bytes read from the source.
func (s *InflaterStream) CompressedCount() int64 { return s.src.n.Load() }

// UncompressedCount returns the number of decoded bytes delivered.
func (s *InflaterStream) UncompressedCount() int64 { return s.uncompressed.Load() }

// Close releases the decompressor. It does not close the source.
func (s *InflaterStream) Close() error { return s.dec.Close() }
