// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// CompressionMethod represents the compression algorithm used for an entry in the ZIP archive
type CompressionMethod uint16

// Supported compression methods according to ZIP specification
const (
	Stored    CompressionMethod = 0  // No compression - file stored as-is
	Deflated  CompressionMethod = 8  // DEFLATE compression (most common)
	ZStandard CompressionMethod = 93 // Zstandard compression (fastest decompression)
)

func (m CompressionMethod) String() string {
	switch m {
	case Stored:
		return "stored"
	case Deflated:
		return "deflated"
	case ZStandard:
		return "zstd"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// Compression levels for DEFLATE algorithm
const (
	DeflateNormal    = 6 // Default compression level (good balance between speed and ratio)
	DeflateMaximum   = 9 // Maximum compression (best ratio, slowest speed)
	DeflateFast      = 3 // Fast compression (lower ratio, faster speed)
	DeflateSuperFast = 1 // Super fast compression (lowest ratio, fastest speed)
)

// Compressor transforms raw data into compressed data.
type Compressor interface {
	// Compress reads from src and writes compressed data to dest.
	// Returns the number of uncompressed bytes read.
	Compress(src io.Reader, dest io.Writer) (int64, error)
}

// Decompressor transforms compressed data back into raw data.
type Decompressor interface {
	// Decompress returns a stream of uncompressed data.
	Decompress(src io.Reader) (io.ReadCloser, error)
}

// CompressorFactory creates a Compressor instance for a specific compression level.
// Implementations should normalize invalid levels to defaults.
type CompressorFactory func(level int) Compressor

type compressorKey struct {
	method CompressionMethod
	level  int
}

// Registry maps compression methods to their codecs.
// It is safe for concurrent use; compressors are created lazily per level and reused.
type Registry struct {
	mu            sync.RWMutex
	factories     map[CompressionMethod]CompressorFactory
	compressors   map[compressorKey]Compressor
	decompressors map[CompressionMethod]Decompressor
}

// NewRegistry returns a registry with Stored, Deflated and ZStandard support.
func NewRegistry() *Registry {
	r := &Registry{
		factories:     make(map[CompressionMethod]CompressorFactory),
		compressors:   make(map[compressorKey]Compressor),
		decompressors: make(map[CompressionMethod]Decompressor),
	}
	r.factories[Stored] = func(int) Compressor { return new(StoredCompressor) }
	r.factories[Deflated] = func(level int) Compressor { return NewDeflateCompressor(level) }
	r.factories[ZStandard] = func(level int) Compressor { return NewZstdCompressor(level) }
	r.decompressors[Stored] = new(StoredDecompressor)
	r.decompressors[Deflated] = new(DeflateDecompressor)
	r.decompressors[ZStandard] = new(ZstdDecompressor)
	return r
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used when no registry option is given.
func DefaultRegistry() *Registry { return defaultRegistry }

// RegisterCompressor registers a factory function for a specific compression method.
// Compressors already created for that method are discarded.
func (r *Registry) RegisterCompressor(method CompressionMethod, factory CompressorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[method] = factory
	for key := range r.compressors {
		if key.method == method {
			delete(r.compressors, key)
		}
	}
}

// RegisterDecompressor adds support for reading a custom compression method.
func (r *Registry) RegisterDecompressor(method CompressionMethod, d Decompressor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decompressors[method] = d
}

// Compressor returns the compressor for method at the given level.
func (r *Registry) Compressor(method CompressionMethod, level int) (Compressor, error) {
	key := compressorKey{method: method, level: level}

	r.mu.RLock()
	val, ok := r.compressors[key]
	r.mu.RUnlock()
	if ok {
		return val, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check if the key was just inserted
	if val, ok := r.compressors[key]; ok {
		return val, nil
	}

	factory, ok := r.factories[method]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, method)
	}
	r.compressors[key] = factory(level)
	return r.compressors[key], nil
}

// Decompressor returns the decompressor registered for method.
func (r *Registry) Decompressor(method CompressionMethod) (Decompressor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decompressors[method]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, method)
	}
	return d, nil
}

// StoredCompressor implements no compression (STORE method)
type StoredCompressor struct{}

func (sc *StoredCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	return io.Copy(dest, src)
}

// DeflateCompressor implements DEFLATE compression with memory pooling
type DeflateCompressor struct {
	level int
	pool  sync.Pool
}

// NewDeflateCompressor creates a reusable compressor for a specific level.
// Level 0 selects DeflateNormal.
func NewDeflateCompressor(level int) *DeflateCompressor {
	if level == 0 {
		level = DeflateNormal
	}
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = DeflateNormal
	}
	return &DeflateCompressor{level: level}
}

func (d *DeflateCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	w, ok := d.pool.Get().(*flate.Writer)
	if !ok {
		var err error
		if w, err = flate.NewWriter(dest, d.level); err != nil {
			return 0, err
		}
	} else {
		w.Reset(dest)
	}
	defer d.pool.Put(w)

	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}

	if err := w.Close(); err != nil {
		return n, err
	}

	return n, nil
}

// ZstdCompressor implements Zstandard compression with pooled encoders.
type ZstdCompressor struct {
	level zstd.EncoderLevel
	pool  sync.Pool
}

// NewZstdCompressor creates a reusable compressor. Level follows the zstd
// command line scale; 0 selects the encoder default.
func NewZstdCompressor(level int) *ZstdCompressor {
	l := zstd.SpeedDefault
	if level > 0 {
		l = zstd.EncoderLevelFromZstd(level)
	}
	return &ZstdCompressor{level: l}
}

func (z *ZstdCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	enc, ok := z.pool.Get().(*zstd.Encoder)
	if !ok {
		var err error
		enc, err = zstd.NewWriter(dest, zstd.WithEncoderLevel(z.level), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return 0, err
		}
	} else {
		enc.Reset(dest)
	}
	defer z.pool.Put(enc)

	n, err := io.Copy(enc, src)
	if err != nil {
		return n, err
	}
	if err := enc.Close(); err != nil {
		return n, err
	}
	return n, nil
}

// StoredDecompressor implements the "Store" method (no compression)
type StoredDecompressor struct{}

func (sd *StoredDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// DeflateDecompressor implements the "Deflate" method
type DeflateDecompressor struct{}

func (dd *DeflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

// ZstdDecompressor implements the Zstandard method.
type ZstdDecompressor struct{}

func (zd *ZstdDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
