// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// RawEntryWriter accepts entries whose payload is already compressed.
// The entry's Method, CRC32 and sizes describe data exactly.
type RawEntryWriter interface {
	AddRawEntry(entry *Entry, data io.Reader) error
}

// EntryRequest asks a Pipeline to compress one payload.
type EntryRequest struct {
	Entry  *Entry
	Method CompressionMethod

	// Open returns the uncompressed payload. It is called once, by the
	// goroutine running AddArchiveEntry. A nil Open means an empty payload.
	Open func() (io.ReadCloser, error)

	// SizeHint is the expected payload size, or -1 when unknown. Payloads
	// up to the spill threshold are buffered in memory.
	SizeHint int64
}

// NewEntryRequest returns a request compressing the payload of open with the
// entry's method. The size hint is taken from the entry's uncompressed size
// when it is set.
func NewEntryRequest(entry *Entry, open func() (io.ReadCloser, error)) EntryRequest {
	hint := int64(-1)
	if entry.UncompressedSize > 0 {
		hint = int64(entry.UncompressedSize)
	}
	return EntryRequest{Entry: entry, Method: entry.Method, Open: open, SizeHint: hint}
}

// NewStringEntryRequest returns a request for an entry whose payload is s.
func NewStringEntryRequest(entry *Entry, s string) EntryRequest {
	return EntryRequest{
		Entry:    entry,
		Method:   entry.Method,
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(s)), nil },
		SizeHint: int64(len(s)),
	}
}

// scatterEntry is one compressed payload waiting in the backing store.
type scatterEntry struct {
	entry  *Entry
	method CompressionMethod
	result Measurement
}

// transfer patches the measured values onto the caller's entry.
func (se *scatterEntry) transfer() { se.entry.apply(se.method, se.result) }

type pipelineState int32

const (
	stateScattering pipelineState = iota
	stateGathering
	stateClosed
)

type pipelineConfig struct {
	level          int
	registry       *Registry
	logger         *slog.Logger
	spillThreshold int64
	spillDir       string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*pipelineConfig)

// WithCompressionLevel sets the level passed to compressor factories.
func WithCompressionLevel(level int) PipelineOption {
	return func(c *pipelineConfig) { c.level = level }
}

// WithPipelineRegistry selects the codecs used for compression.
func WithPipelineRegistry(r *Registry) PipelineOption {
	return func(c *pipelineConfig) { c.registry = r }
}

// WithPipelineLogger sets the logger for scatter and gather events.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(c *pipelineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSpillThreshold sets the largest payload buffered in memory during
// compression. Larger or unknown payloads are spilled to temp files.
func WithSpillThreshold(n int64) PipelineOption {
	return func(c *pipelineConfig) { c.spillThreshold = n }
}

// WithSpillDir sets the directory for spill files.
func WithSpillDir(dir string) PipelineOption {
	return func(c *pipelineConfig) { c.spillDir = dir }
}

// Pipeline compresses entries concurrently into a shared backing store
// (scatter) and later replays them in order into a RawEntryWriter (gather).
//
// AddArchiveEntry may be called from many goroutines. Gather happens once;
// after it starts, further adds fail with ErrGatherStarted.
type Pipeline struct {
	store      BackingStore
	compressor *StreamCompressor
	spill      *spillBuffers
	logger     *slog.Logger

	state atomic.Int32

	mu     sync.Mutex // guards store appends and queue
	queue  []scatterEntry
	broken error

	gatherMu sync.Mutex
	writer   *EntryWriter
	drained  bool // writer is owned by WriteTo

	closeOnce sync.Once
	closeErr  error
}

// NewPipeline returns a pipeline that stores compressed payloads in store.
// The pipeline owns store and closes it.
func NewPipeline(store BackingStore, opts ...PipelineOption) *Pipeline {
	cfg := pipelineConfig{
		level:          DeflateNormal,
		logger:         discardLogger(),
		spillThreshold: defaultSpillThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Pipeline{
		store:      store,
		compressor: NewStreamCompressor(cfg.registry, cfg.level),
		spill:      newSpillBuffers(cfg.spillThreshold, cfg.spillDir),
		logger:     cfg.logger,
	}
}

// NewFilePipeline returns a pipeline backed by a temporary file in dir.
// Spill files go to the same directory unless WithSpillDir says otherwise.
func NewFilePipeline(dir string, opts ...PipelineOption) (*Pipeline, error) {
	store, err := NewFileBackingStore(dir)
	if err != nil {
		return nil, err
	}
	return NewPipeline(store, append([]PipelineOption{WithSpillDir(dir)}, opts...)...), nil
}

// Len returns the number of entries scattered so far.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pipeline) checkScattering() error {
	switch pipelineState(p.state.Load()) {
	case stateGathering:
		return ErrGatherStarted
	case stateClosed:
		return ErrPipelineClosed
	}
	return nil
}

// AddArchiveEntry compresses the request's payload and appends it to the
// backing store.
func (p *Pipeline) AddArchiveEntry(req EntryRequest) error {
	return p.AddArchiveEntryWithContext(context.Background(), req)
}

// AddArchiveEntryWithContext is like AddArchiveEntry but stops reading the
// payload once ctx is done.
func (p *Pipeline) AddArchiveEntryWithContext(ctx context.Context, req EntryRequest) error {
	if req.Entry == nil {
		return errors.New("zip: entry request without entry")
	}
	if err := p.checkScattering(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	method := req.Method
	if req.Entry.IsDir() {
		return p.enqueue(scatterEntry{entry: req.Entry, method: Stored}, nil)
	}

	buf, err := p.spill.get(req.SizeHint)
	if err != nil {
		return err
	}
	defer p.spill.put(buf)

	result, err := p.compress(ctx, req, buf)
	if err != nil {
		return fmt.Errorf("%s: %w", req.Entry.Name, err)
	}

	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek spill buffer: %w", err)
	}

	return p.enqueue(scatterEntry{entry: req.Entry, method: method, result: result}, buf)
}

func (p *Pipeline) compress(ctx context.Context, req EntryRequest, dst io.Writer) (Measurement, error) {
	var src io.ReadCloser = io.NopCloser(strings.NewReader(""))
	if req.Open != nil {
		var err error
		if src, err = req.Open(); err != nil {
			return Measurement{}, fmt.Errorf("open payload: %w", err)
		}
	}
	defer src.Close()

	return p.compressor.Compress(&contextReader{ctx: ctx, r: src}, req.Method, dst)
}

// enqueue appends the compressed payload in data to the store and records
// the entry. Both happen under one lock so store order is queue order.
func (p *Pipeline) enqueue(se scatterEntry, data io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkScattering(); err != nil {
		return err
	}
	if p.broken != nil {
		return p.broken
	}

	if data != nil {
		n, err := io.CopyN(p.store, data, int64(se.result.CompressedSize))
		if err != nil {
			// The store now holds a partial payload; nothing after it can be replayed.
			p.broken = fmt.Errorf("append %s to backing store after %d bytes: %w", se.entry.Name, n, err)
			return p.broken
		}
	}
	p.queue = append(p.queue, se)

	p.logger.Debug("scattered entry",
		slog.String("name", se.entry.Name),
		slog.String("method", se.method.String()),
		slog.Uint64("size", se.result.Size),
		slog.Uint64("compressed", se.result.CompressedSize),
	)
	return nil
}

// startGather moves the pipeline into the gathering state and opens the
// store for reading. Callers hold gatherMu.
func (p *Pipeline) startGather() (*EntryWriter, error) {
	if !p.state.CompareAndSwap(int32(stateScattering), int32(stateGathering)) {
		if pipelineState(p.state.Load()) == stateClosed {
			return nil, ErrPipelineClosed
		}
		return nil, ErrGatherStarted
	}

	// Waits for in-flight appends; later ones see the new state and bail out.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broken != nil {
		return nil, p.broken
	}
	if err := p.store.CloseForWriting(); err != nil {
		return nil, fmt.Errorf("close backing store for writing: %w", err)
	}
	data, err := p.store.Reader()
	if err != nil {
		return nil, fmt.Errorf("open backing store: %w", err)
	}

	p.logger.Debug("gather started", slog.Int("entries", len(p.queue)))

	p.writer = &EntryWriter{data: data, entries: p.queue, logger: p.logger}
	return p.writer, nil
}

// EntryWriter starts gather and returns the writer that replays the
// scattered entries one at a time. Repeated calls return the same writer.
func (p *Pipeline) EntryWriter() (*EntryWriter, error) {
	p.gatherMu.Lock()
	defer p.gatherMu.Unlock()

	if p.writer != nil {
		switch {
		case pipelineState(p.state.Load()) == stateClosed:
			return nil, ErrPipelineClosed
		case p.drained:
			return nil, ErrGatherStarted
		}
		return p.writer, nil
	}
	return p.startGather()
}

// WriteTo gathers every scattered entry into target in the order they were
// added. It may be called once.
func (p *Pipeline) WriteTo(target RawEntryWriter) error {
	p.gatherMu.Lock()
	if p.writer != nil {
		p.gatherMu.Unlock()
		if pipelineState(p.state.Load()) == stateClosed {
			return ErrPipelineClosed
		}
		return ErrGatherStarted
	}
	ew, err := p.startGather()
	p.drained = err == nil
	p.gatherMu.Unlock()
	if err != nil {
		return err
	}

	for {
		if err := ew.WriteNext(target); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Close releases the pipeline's resources: the entry writer, the backing
// store and finally the compressor. Only the first call does any work.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.state.Store(int32(stateClosed))

		var errs []error
		p.gatherMu.Lock()
		if p.writer != nil {
			errs = append(errs, p.writer.Close())
		}
		p.gatherMu.Unlock()

		p.mu.Lock()
		errs = append(errs, p.store.Close())
		p.mu.Unlock()

		errs = append(errs, p.compressor.Close())

		for _, err := range errs {
			if err != nil {
				p.closeErr = err
				break
			}
		}
	})
	return p.closeErr
}

// EntryWriter replays the entries of a Pipeline, in scatter order, from a
// single sequential read of its backing store.
type EntryWriter struct {
	mu      sync.Mutex
	data    io.ReadCloser
	entries []scatterEntry
	next    int
	closed  bool
	logger  *slog.Logger
}

// Remaining returns the number of entries not yet written.
func (ew *EntryWriter) Remaining() int {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return len(ew.entries) - ew.next
}

// WriteNext patches the next entry with its measured values and hands its
// compressed payload to target. It returns io.EOF once every entry has been
// written.
func (ew *EntryWriter) WriteNext(target RawEntryWriter) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if ew.closed {
		return ErrPipelineClosed
	}
	if ew.next >= len(ew.entries) {
		return io.EOF
	}

	se := &ew.entries[ew.next]
	ew.next++
	se.transfer()

	payload := &io.LimitedReader{R: ew.data, N: int64(se.result.CompressedSize)}
	err := target.AddRawEntry(se.entry, payload)

	// Skip whatever target left unread so the next payload starts aligned.
	if _, drainErr := io.Copy(io.Discard, payload); drainErr != nil && err == nil {
		err = drainErr
	}
	if err == nil && payload.N > 0 {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return fmt.Errorf("gather %s: %w", se.entry.Name, err)
	}

	ew.logger.Debug("gathered entry",
		slog.String("name", se.entry.Name),
		slog.Uint64("compressed", se.result.CompressedSize),
	)
	return nil
}

// Close releases the backing store reader.
func (ew *EntryWriter) Close() error {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	if ew.closed {
		return nil
	}
	ew.closed = true
	return ew.data.Close()
}
