// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Channel is a seekable byte range that can be read, written and truncated.
// Implementations are safe for concurrent use; positioned operations
// (Read, Write, Seek) are serialized, ReadAt is not positioned.
type Channel interface {
	io.Reader
	io.Writer
	io.Seeker
	io.ReaderAt
	io.Closer

	// Position returns the current position of the channel.
	Position() (int64, error)

	// Size returns the current size of the channel.
	Size() (int64, error)

	// Truncate shrinks the channel to size bytes. If the current position is
	// beyond the new size it is set to the new size.
	Truncate(size int64) error

	// IsOpen reports whether Close has not yet been called.
	IsOpen() bool
}

// Mode selects the operations a FileChannel is opened for.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite

	ModeReadWrite = ModeRead | ModeWrite
)

func (m Mode) canRead() bool  { return m&ModeRead != 0 }
func (m Mode) canWrite() bool { return m&ModeWrite != 0 }

// closeState tracks the open/closed flag shared by all channel types.
type closeState struct {
	closed atomic.Bool
}

func (s *closeState) IsOpen() bool { return !s.closed.Load() }

// enter fails if the channel was closed before the operation began.
func (s *closeState) enter() error {
	if s.closed.Load() {
		return ErrChannelClosed
	}
	return nil
}

// fail translates an I/O error into ErrClosedDuringOperation when the channel
// was closed while the operation was in flight.
func (s *closeState) fail(err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	if s.closed.Load() {
		return fmt.Errorf("%w: %w", ErrClosedDuringOperation, err)
	}
	return err
}

// markClosed reports true only for the first caller.
func (s *closeState) markClosed() bool {
	return s.closed.CompareAndSwap(false, true)
}

// seekTarget resolves an io.Seeker request against the current position and size.
func seekTarget(offset int64, whence int, pos int64, size func() (int64, error)) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = pos + offset
	case io.SeekEnd:
		n, err := size()
		if err != nil {
			return 0, err
		}
		abs = n + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", ErrInvalidOffset, whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ErrInvalidOffset, abs)
	}
	return abs, nil
}

// FileChannel is a Channel backed by an operating system file.
// The channel owns the file and closes it on Close.
type FileChannel struct {
	f     *os.File
	mode  Mode
	mu    sync.Mutex // guards pos
	pos   int64
	state closeState
}

// OpenFileChannel opens the named file for the given mode.
// ModeWrite creates the file if it does not exist.
func OpenFileChannel(path string, mode Mode) (*FileChannel, error) {
	flag := os.O_RDONLY
	switch {
	case mode.canRead() && mode.canWrite():
		flag = os.O_RDWR | os.O_CREATE
	case mode.canWrite():
		flag = os.O_WRONLY | os.O_CREATE
	case !mode.canRead():
		return nil, fmt.Errorf("%w: no mode requested", ErrWrongMode)
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return NewFileChannel(f, mode), nil
}

// NewFileChannel wraps an already open file. The file must have been opened
// with flags matching mode and must not be in append mode.
func NewFileChannel(f *os.File, mode Mode) *FileChannel {
	return &FileChannel{f: f, mode: mode}
}

// Name returns the name of the underlying file.
func (c *FileChannel) Name() string { return c.f.Name() }

func (c *FileChannel) Read(p []byte) (int, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	if !c.mode.canRead() {
		return 0, ErrWrongMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.f.ReadAt(p, c.pos)
	c.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, c.state.fail(err)
}

func (c *FileChannel) ReadAt(p []byte, off int64) (int, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	if !c.mode.canRead() {
		return 0, ErrWrongMode
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	n, err := c.f.ReadAt(p, off)
	return n, c.state.fail(err)
}

// Write writes p at the current position. Writing past the end of the file
// fills the gap with zeros.
func (c *FileChannel) Write(p []byte) (int, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	if !c.mode.canWrite() {
		return 0, ErrWrongMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.f.WriteAt(p, c.pos)
	c.pos += int64(n)
	return n, c.state.fail(err)
}

func (c *FileChannel) Seek(offset int64, whence int) (int64, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	abs, err := seekTarget(offset, whence, c.pos, c.size)
	if err != nil {
		return 0, c.state.fail(err)
	}
	c.pos = abs
	return abs, nil
}

func (c *FileChannel) Position() (int64, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, nil
}

func (c *FileChannel) Size() (int64, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	n, err := c.size()
	return n, c.state.fail(err)
}

func (c *FileChannel) size() (int64, error) {
	info, err := c.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (c *FileChannel) Truncate(size int64) error {
	if err := c.state.enter(); err != nil {
		return err
	}
	if !c.mode.canWrite() {
		return ErrWrongMode
	}
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidOffset, size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.size()
	if err != nil {
		return c.state.fail(err)
	}
	if size < current {
		if err := c.f.Truncate(size); err != nil {
			return c.state.fail(err)
		}
	}
	if c.pos > size {
		c.pos = size
	}
	return nil
}

func (c *FileChannel) IsOpen() bool { return c.state.IsOpen() }

// Close closes the underlying file. Subsequent calls return nil.
func (c *FileChannel) Close() error {
	if !c.state.markClosed() {
		return nil
	}
	if err := c.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
