// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type creatorConfig struct {
	workers int
	budget  int64
	logger  *slog.Logger
}

// CreatorOption configures a ParallelCreator.
type CreatorOption func(*creatorConfig)

// WithWorkers sets how many entries are compressed at once.
// Values below 1 select runtime.GOMAXPROCS(0).
func WithWorkers(n int) CreatorOption {
	return func(c *creatorConfig) { c.workers = n }
}

// WithSizeBudget bounds the total size hint of entries being compressed at
// once. Entries larger than the budget run alone. Zero disables the bound.
func WithSizeBudget(n int64) CreatorOption {
	return func(c *creatorConfig) { c.budget = n }
}

// WithCreatorLogger sets the logger for submitted entries.
func WithCreatorLogger(l *slog.Logger) CreatorOption {
	return func(c *creatorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// ParallelCreator compresses submitted entries on a bounded set of
// goroutines into one Pipeline and then gathers them into an archive.
// Entries are written in the order their compression finished.
type ParallelCreator struct {
	pipeline *Pipeline
	group    *errgroup.Group
	ctx      context.Context
	budget   *semaphore.Weighted
	limit    int64
	logger   *slog.Logger

	mu      sync.Mutex
	waited  bool
	waitErr error
}

// NewParallelCreator returns a creator feeding pipeline. The first failing
// entry cancels the entries still running; ctx cancels all of them.
func NewParallelCreator(ctx context.Context, pipeline *Pipeline, opts ...CreatorOption) *ParallelCreator {
	cfg := creatorConfig{logger: discardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)

	pc := &ParallelCreator{
		pipeline: pipeline,
		group:    g,
		ctx:      gctx,
		logger:   cfg.logger,
	}
	if cfg.budget > 0 {
		pc.budget = semaphore.NewWeighted(cfg.budget)
		pc.limit = cfg.budget
	}
	return pc
}

// Submit schedules req for compression. It blocks while every worker is
// busy. Submitting after Wait fails with ErrGatherStarted.
func (pc *ParallelCreator) Submit(req EntryRequest) error {
	pc.mu.Lock()
	waited := pc.waited
	pc.mu.Unlock()
	if waited {
		return ErrGatherStarted
	}
	if err := pc.ctx.Err(); err != nil {
		return err
	}

	weight := pc.weight(req)
	if weight > 0 {
		if err := pc.budget.Acquire(pc.ctx, weight); err != nil {
			return err
		}
	}

	pc.logger.Debug("submitted entry", slog.String("name", req.Entry.Name), slog.Int64("size_hint", req.SizeHint))

	pc.group.Go(func() error {
		if weight > 0 {
			defer pc.budget.Release(weight)
		}
		return pc.pipeline.AddArchiveEntryWithContext(pc.ctx, req)
	})
	return nil
}

func (pc *ParallelCreator) weight(req EntryRequest) int64 {
	if pc.budget == nil {
		return 0
	}
	if req.SizeHint < 0 || req.SizeHint > pc.limit {
		return pc.limit
	}
	return max(req.SizeHint, 1)
}

// SubmitFile schedules the file at path, stored under name.
func (pc *ParallelCreator) SubmitFile(path, name string, method CompressionMethod) error {
	req, err := FileRequest(path, name, method)
	if err != nil {
		return err
	}
	return pc.Submit(req)
}

// Wait blocks until every submitted entry has been compressed and returns
// the first error.
func (pc *ParallelCreator) Wait() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.waited {
		pc.waited = true
		pc.waitErr = pc.group.Wait()
	}
	return pc.waitErr
}

// WriteTo waits for the submitted entries and gathers them into target.
func (pc *ParallelCreator) WriteTo(target RawEntryWriter) error {
	if err := pc.Wait(); err != nil {
		return err
	}
	return pc.pipeline.WriteTo(target)
}

// Close waits for running entries and closes the pipeline. Compression
// errors are reported by Wait and WriteTo, not by Close.
func (pc *ParallelCreator) Close() error {
	_ = pc.Wait()
	return pc.pipeline.Close()
}

// FileRequest returns a request for the file or directory at path, stored
// under name.
func FileRequest(path, name string, method CompressionMethod) (EntryRequest, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return EntryRequest{}, err
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return EntryRequest{}, fmt.Errorf("%s: unsupported file type %s", path, info.Mode().Type())
	}

	req := NewEntryRequest(NewFileEntry(name, info, method), func() (io.ReadCloser, error) {
		return os.Open(path)
	})
	if !info.IsDir() {
		req.SizeHint = info.Size()
	}
	return req, nil
}
