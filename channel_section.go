// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"io"
	"sync"
)

// SectionChannel is a read-only Channel over n bytes of an io.ReaderAt
// starting at off. It borrows the underlying reader and does not close it.
type SectionChannel struct {
	mu    sync.Mutex
	sr    *io.SectionReader
	state closeState
}

// NewSectionChannel returns a read-only view of r covering [off, off+n).
func NewSectionChannel(r io.ReaderAt, off, n int64) *SectionChannel {
	return &SectionChannel{sr: io.NewSectionReader(r, off, n)}
}

func (c *SectionChannel) Read(p []byte) (int, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.sr.Read(p)
	return n, c.state.fail(err)
}

func (c *SectionChannel) ReadAt(p []byte, off int64) (int, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	n, err := c.sr.ReadAt(p, off)
	return n, c.state.fail(err)
}

func (c *SectionChannel) Write([]byte) (int, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	return 0, ErrReadOnly
}

func (c *SectionChannel) Truncate(int64) error {
	if err := c.state.enter(); err != nil {
		return err
	}
	return ErrReadOnly
}

func (c *SectionChannel) Seek(offset int64, whence int) (int64, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, _ := c.sr.Seek(0, io.SeekCurrent)
	abs, err := seekTarget(offset, whence, pos, func() (int64, error) { return c.sr.Size(), nil })
	if err != nil {
		return 0, err
	}
	return c.sr.Seek(abs, io.SeekStart)
}

func (c *SectionChannel) Position() (int64, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sr.Seek(0, io.SeekCurrent)
}

func (c *SectionChannel) Size() (int64, error) {
	if err := c.state.enter(); err != nil {
		return 0, err
	}
	return c.sr.Size(), nil
}

func (c *SectionChannel) IsOpen() bool { return c.state.IsOpen() }

func (c *SectionChannel) Close() error {
	c.state.markClosed()
	return nil
}
