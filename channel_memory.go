// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"io"
	"sync"
)

// MemoryChannel is a read/write Channel over an in-memory byte slice.
// It grows on demand and is suitable for pooling through Reset.
type MemoryChannel struct {
	mu    sync.RWMutex
	data  []byte // The underlying byte slice
	pos   int64  // Current read/write position
	state closeState
}

// NewMemoryChannel returns a channel holding data. The channel takes
// ownership of the slice; its length is the initial size and its capacity
// is used before growing.
func NewMemoryChannel(data []byte) *MemoryChannel {
	return &MemoryChannel{data: data}
}

// Read reads up to len(p) bytes from the current position into p.
// Returns io.EOF once the position reaches the end of the data.
func (mc *MemoryChannel) Read(p []byte) (int, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.pos >= int64(len(mc.data)) {
		return 0, io.EOF
	}
	n := copy(p, mc.data[mc.pos:])
	mc.pos += int64(n)
	return n, nil
}

func (mc *MemoryChannel) ReadAt(p []byte, off int64) (int, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if off >= int64(len(mc.data)) {
		return 0, io.EOF
	}
	n := copy(p, mc.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write writes len(p) bytes at the current position, expanding if necessary.
// Grows the buffer exponentially to amortize allocation costs.
func (mc *MemoryChannel) Write(p []byte) (int, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	// If at the end of the data
	if mc.pos == int64(len(mc.data)) {
		mc.data = append(mc.data, p...)
		mc.pos += int64(len(p))
		return len(p), nil
	}

	required := mc.pos + int64(len(p))
	if required > int64(cap(mc.data)) {
		newCap := max(int64(cap(mc.data))*2, required, 64)
		newData := make([]byte, len(mc.data), newCap)
		copy(newData, mc.data)
		mc.data = newData
	}

	// Extend slice if writing beyond current length; the gap is zeroed
	if required > int64(len(mc.data)) {
		old := int64(len(mc.data))
		mc.data = mc.data[:required]
		if mc.pos > old {
			clear(mc.data[old:mc.pos])
		}
	}

	n := copy(mc.data[mc.pos:], p)
	mc.pos += int64(n)
	return n, nil
}

func (mc *MemoryChannel) Seek(offset int64, whence int) (int64, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	abs, err := seekTarget(offset, whence, mc.pos, func() (int64, error) {
		return int64(len(mc.data)), nil
	})
	if err != nil {
		return 0, err
	}
	mc.pos = abs
	return abs, nil
}

func (mc *MemoryChannel) Position() (int64, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.pos, nil
}

func (mc *MemoryChannel) Size() (int64, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return int64(len(mc.data)), nil
}

func (mc *MemoryChannel) Truncate(size int64) error {
	if err := mc.state.enter(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidOffset, size)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if size < int64(len(mc.data)) {
		mc.data = mc.data[:size]
	}
	if mc.pos > size {
		mc.pos = size
	}
	return nil
}

// Bytes returns the channel contents. The slice aliases the channel's
// storage and is only valid until the next write.
func (mc *MemoryChannel) Bytes() []byte {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.data
}

// Reset clears the data and resets the position to 0, keeping capacity.
func (mc *MemoryChannel) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.data = mc.data[:0]
	mc.pos = 0
}

func (mc *MemoryChannel) IsOpen() bool { return mc.state.IsOpen() }

// Close releases the buffer. Subsequent operations fail with ErrChannelClosed.
func (mc *MemoryChannel) Close() error {
	if !mc.state.markClosed() {
		return nil
	}
	mc.mu.Lock()
	mc.data = nil
	mc.mu.Unlock()
	return nil
}
