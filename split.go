// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
)

// SplitSignature marks the start of the first volume of a split archive.
const SplitSignature uint32 = 0x08074b50

// SplitChannel is a MultiChannel whose first segment has been checked to
// begin with SplitSignature. The signature stays part of the stream.
type SplitChannel struct {
	*MultiChannel
}

// NewSplitChannel composes the volumes of a split archive, first physical
// volume first and the final .zip volume last.
// A single segment is returned unchanged without validation.
func NewSplitChannel(segments ...Channel) (Channel, error) {
	switch len(segments) {
	case 0:
		return nil, ErrNoSegments
	case 1:
		return segments[0], nil
	}

	mc, err := NewMultiChannel(segments...)
	if err != nil {
		return nil, err
	}
	if err := validateSplitSignature(segments[0]); err != nil {
		return nil, err
	}
	return &SplitChannel{MultiChannel: mc}, nil
}

// NewSplitChannelFromLast is NewSplitChannel for callers holding the final
// .zip volume separately from the numbered volumes.
func NewSplitChannelFromLast(last Channel, others []Channel) (Channel, error) {
	segments := make([]Channel, 0, len(others)+1)
	segments = append(segments, others...)
	segments = append(segments, last)
	return NewSplitChannel(segments...)
}

// validateSplitSignature reads the first four bytes of first and restores
// its position to 0 regardless of the outcome.
func validateSplitSignature(first Channel) (err error) {
	if _, err := first.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek first segment: %w", err)
	}
	defer func() {
		if _, serr := first.Seek(0, io.SeekStart); serr != nil && err == nil {
			err = fmt.Errorf("reset first segment: %w", serr)
		}
	}()

	var sig [4]byte
	if _, err := io.ReadFull(first, sig[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: first segment shorter than signature", ErrNotSplitArchive)
		}
		return fmt.Errorf("read split signature: %w", err)
	}
	if got := binary.LittleEndian.Uint32(sig[:]); got != SplitSignature {
		return fmt.Errorf("%w: found 0x%08x", ErrNotSplitArchive, got)
	}
	return nil
}

// OpenSplitArchive opens the archive whose final volume is at path.
// Numbered volumes name.z01, name.z02, ... next to it are opened read-only
// in ascending order; without them the single volume is returned as is.
// On failure every file opened so far is closed.
func OpenSplitArchive(path string) (ch Channel, err error) {
	var opened []Channel
	defer func() {
		if err != nil {
			for _, c := range opened {
				c.Close()
			}
		}
	}()

	base := strings.TrimSuffix(path, filepath.Ext(path))
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s.z%02d", base, i)
		c, err := OpenFileChannel(name, ModeRead)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("open volume %d: %w", i, err)
		}
		opened = append(opened, c)
	}

	last, err := OpenFileChannel(path, ModeRead)
	if err != nil {
		return nil, err
	}
	opened = append(opened, last)

	return NewSplitChannel(opened...)
}

