// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// MultiChannel presents an ordered list of channels as one read-only
// address space. Segment i covers the global offsets
// [bounds[i], bounds[i+1]), where the bounds are recomputed from the
// segment sizes on every positioned operation so that a segment truncated
// by its owner is observed.
//
// MultiChannel owns its segments and closes them on Close.
type MultiChannel struct {
	segments []Channel
	mu       sync.Mutex // guards pos and segment positions
	pos      int64
	state    closeState
}

// NewMultiChannel composes segments in the given order.
// All segments must be open; none may be nil.
func NewMultiChannel(segments ...Channel) (*MultiChannel, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	for i, s := range segments {
		if s == nil {
			return nil, fmt.Errorf("%w: segment %d is nil", ErrNoSegments, i)
		}
	}
	return &MultiChannel{segments: append([]Channel(nil), segments...)}, nil
}

// Segments returns the number of segments.
func (mc *MultiChannel) Segments() int { return len(mc.segments) }

// bounds returns the cumulative segment boundaries, len(segments)+1 values.
func (mc *MultiChannel) bounds() ([]int64, error) {
	b := make([]int64, len(mc.segments)+1)
	for i, s := range mc.segments {
		n, err := s.Size()
		if err != nil {
			return nil, fmt.Errorf("size of segment %d: %w", i, err)
		}
		b[i+1] = b[i] + n
	}
	return b, nil
}

// locate returns the segment owning the global offset off, or
// len(segments) when off is at or past the end.
func locate(b []int64, off int64) int {
	// First boundary strictly greater than off, minus one. Empty segments
	// share their start with the next one and are skipped.
	i := sort.Search(len(b), func(i int) bool { return b[i] > off })
	if i == 0 || i == len(b) {
		return len(b) - 1
	}
	return i - 1
}

// Read reads from the current segment and continues into the following
// segments while p has room. It returns io.EOF only when no segment has
// more bytes.
func (mc *MultiChannel) Read(p []byte) (int, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	b, err := mc.bounds()
	if err != nil {
		return 0, mc.state.fail(err)
	}

	var read int
	for read < len(p) {
		i := locate(b, mc.pos)
		if i == len(mc.segments) {
			break
		}
		seg := mc.segments[i]
		if _, err := seg.Seek(mc.pos-b[i], io.SeekStart); err != nil {
			return read, mc.state.fail(err)
		}

		want := min(int64(len(p)-read), b[i+1]-mc.pos)
		n, err := seg.Read(p[read : read+int(want)])
		read += n
		mc.pos += int64(n)
		if err != nil && err != io.EOF {
			return read, mc.state.fail(err)
		}
		if n == 0 {
			// The segment reported fewer bytes than its size; treat it as
			// exhausted and move on.
			mc.pos = b[i+1]
		}
	}

	if read == 0 {
		return 0, io.EOF
	}
	return read, nil
}

// ReadAt reads len(p) bytes at the global offset off without moving the
// position. Reads spanning segment boundaries are stitched together.
func (mc *MultiChannel) ReadAt(p []byte, off int64) (int, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}

	b, err := mc.bounds()
	if err != nil {
		return 0, mc.state.fail(err)
	}

	var read int
	for read < len(p) {
		i := locate(b, off)
		if i == len(mc.segments) {
			return read, io.EOF
		}
		want := min(int64(len(p)-read), b[i+1]-off)
		n, err := mc.segments[i].ReadAt(p[read:read+int(want)], off-b[i])
		read += n
		off += int64(n)
		if err != nil && err != io.EOF {
			return read, mc.state.fail(err)
		}
		if int64(n) < want {
			off = b[i+1]
		}
	}
	return read, nil
}

// Seek moves the global position and positions the owning segment at the
// matching local offset. A position at or beyond the total size has no
// owning segment and reads from it return io.EOF.
func (mc *MultiChannel) Seek(offset int64, whence int) (int64, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	b, err := mc.bounds()
	if err != nil {
		return 0, mc.state.fail(err)
	}
	abs, err := seekTarget(offset, whence, mc.pos, func() (int64, error) { return b[len(b)-1], nil })
	if err != nil {
		return 0, err
	}

	if i := locate(b, abs); i < len(mc.segments) {
		if _, err := mc.segments[i].Seek(abs-b[i], io.SeekStart); err != nil {
			return 0, mc.state.fail(err)
		}
	}
	mc.pos = abs
	return abs, nil
}

// SegmentOffset converts a (segment, local offset) pair, as stored in split
// archive headers, into a global offset.
func (mc *MultiChannel) SegmentOffset(segment int, local int64) (int64, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	if segment < 0 || segment >= len(mc.segments) {
		return 0, fmt.Errorf("%w: segment %d of %d", ErrInvalidOffset, segment, len(mc.segments))
	}
	if local < 0 {
		return 0, fmt.Errorf("%w: negative local offset %d", ErrInvalidOffset, local)
	}
	b, err := mc.bounds()
	if err != nil {
		return 0, mc.state.fail(err)
	}
	return b[segment] + local, nil
}

func (mc *MultiChannel) Position() (int64, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.pos, nil
}

func (mc *MultiChannel) Size() (int64, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	b, err := mc.bounds()
	if err != nil {
		return 0, mc.state.fail(err)
	}
	return b[len(b)-1], nil
}

func (mc *MultiChannel) Write([]byte) (int, error) {
	if err := mc.state.enter(); err != nil {
		return 0, err
	}
	return 0, ErrReadOnly
}

func (mc *MultiChannel) Truncate(int64) error {
	if err := mc.state.enter(); err != nil {
		return err
	}
	return ErrReadOnly
}

func (mc *MultiChannel) IsOpen() bool { return mc.state.IsOpen() }

// Close closes every segment in order, even after a failure, and returns
// the first error. Only the first call has any effect.
func (mc *MultiChannel) Close() error {
	if !mc.state.markClosed() {
		return nil
	}
	var first error
	for i, s := range mc.segments {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("close segment %d: %w", i, err)
		}
	}
	return first
}
