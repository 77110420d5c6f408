// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Measurement is what compressing one payload produced.
type Measurement struct {
	CRC32          uint32 // CRC32 of the uncompressed bytes
	CompressedSize uint64 // Bytes written to the destination
	Size           uint64 // Bytes read from the source
}

// StreamCompressor compresses payloads with codecs from a Registry while
// measuring their CRC32 and sizes. It is safe for concurrent use.
type StreamCompressor struct {
	registry *Registry
	level    int
	closed   atomic.Bool
}

// NewStreamCompressor returns a compressor using codecs from registry at the
// given level. A nil registry selects DefaultRegistry.
func NewStreamCompressor(registry *Registry, level int) *StreamCompressor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &StreamCompressor{registry: registry, level: level}
}

// Compress drains src through the compressor for method into dst.
func (sc *StreamCompressor) Compress(src io.Reader, method CompressionMethod, dst io.Writer) (Measurement, error) {
	if sc.closed.Load() {
		return Measurement{}, ErrPipelineClosed
	}

	comp, err := sc.registry.Compressor(method, sc.level)
	if err != nil {
		return Measurement{}, err
	}

	hasher := crc32.NewIEEE()
	counter := &byteCountWriter{dest: dst}

	n, err := comp.Compress(io.TeeReader(src, hasher), counter)
	if err != nil {
		return Measurement{}, fmt.Errorf("compress: %w", err)
	}

	return Measurement{
		CRC32:          hasher.Sum32(),
		CompressedSize: uint64(counter.bytesWritten),
		Size:           uint64(n),
	}, nil
}

// Close releases the compressor. Later calls to Compress fail with
// ErrPipelineClosed.
func (sc *StreamCompressor) Close() error {
	sc.closed.Store(true)
	return nil
}

// spillBuffers hands out per-entry buffers for compressed output: pooled
// memory channels for payloads known to be small, temp files otherwise.
type spillBuffers struct {
	threshold int64
	dir       string
	pool      sync.Pool
}

// Default upper bound for in-memory spill buffers.
const defaultSpillThreshold = 10 * 1024 * 1024

func newSpillBuffers(threshold int64, dir string) *spillBuffers {
	s := &spillBuffers{threshold: threshold, dir: dir}
	s.pool.New = func() any { return NewMemoryChannel(make([]byte, 0, 64*1024)) }
	return s
}

// get returns a buffer for a payload of sizeHint bytes; a negative hint
// means the size is unknown.
func (s *spillBuffers) get(sizeHint int64) (io.ReadWriteSeeker, error) {
	if sizeHint >= 0 && sizeHint <= s.threshold {
		mc := s.pool.Get().(*MemoryChannel)
		mc.Reset()
		return mc, nil
	}
	f, err := os.CreateTemp(s.dir, "zipkit-spill-*")
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	return f, nil
}

// put frees buf. Memory buffers return to the pool unless they grew beyond
// the threshold; temp files are deleted.
func (s *spillBuffers) put(buf io.ReadWriteSeeker) error {
	switch b := buf.(type) {
	case *MemoryChannel:
		if int64(cap(b.Bytes())) > s.threshold {
			return b.Close()
		}
		s.pool.Put(b)
	case *os.File:
		return cleanupTempFile(b)
	}
	return nil
}
