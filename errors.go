// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when the input is not a valid ZIP archive.
	ErrFormat = errors.New("zip: not a valid zip file")

	// ErrAlgorithm is returned when a compression algorithm is not supported.
	ErrAlgorithm = errors.New("zip: unsupported compression algorithm")

	// ErrChecksum is returned when reading a file checksum does not match.
	ErrChecksum = errors.New("zip: checksum error")

	// ErrSizeMismatch is returned when the uncompressed size does not match the header.
	ErrSizeMismatch = errors.New("zip: uncompressed size mismatch")

	// ErrFileNotFound is returned when the requested entry is not found in the archive.
	ErrFileNotFound = errors.New("zip: file not found")

	// ErrWriterClosed is returned when adding entries to a closed writer.
	ErrWriterClosed = errors.New("zip: writer closed")

	// ErrFilenameTooLong is returned when a filename exceeds 65535 bytes.
	ErrFilenameTooLong = errors.New("zip: filename too long")

	// ErrCommentTooLong is returned when a comment exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zip: comment too long")

	// ErrExtraFieldTooLong is returned when the total size of extra fields exceeds 65535 bytes.
	ErrExtraFieldTooLong = errors.New("zip: extra field too long")
)

// Channel errors.
var (
	// ErrChannelClosed is returned by any operation on a channel that was
	// already closed when the operation started.
	ErrChannelClosed = errors.New("zip: channel closed")

	// ErrClosedDuringOperation is returned when a read or write fails because
	// another goroutine closed the channel while the operation was in flight.
	ErrClosedDuringOperation = errors.New("zip: channel closed during operation")

	// ErrWrongMode is returned when reading from a channel that was not opened
	// for reading, or writing to one that was not opened for writing.
	ErrWrongMode = errors.New("zip: channel not opened for this operation")

	// ErrReadOnly is returned by write and truncate on read-only channels.
	ErrReadOnly = fmt.Errorf("%w: read-only channel", ErrWrongMode)

	// ErrInvalidOffset is returned for negative positions and sizes.
	ErrInvalidOffset = errors.New("zip: invalid offset")

	// ErrNoSegments is returned when a multi-segment channel is built without segments.
	ErrNoSegments = errors.New("zip: no segments")

	// ErrNotSplitArchive is returned when the first volume of a split archive
	// does not start with the split signature.
	ErrNotSplitArchive = errors.New("zip: first segment does not begin with split zip signature")
)

// Extra field errors.
var (
	// ErrCorruptExtraField is returned when an extra field record is malformed or undersized.
	ErrCorruptExtraField = errors.New("zip: corrupt extra field")

	// ErrUnsupportedVersion is returned when an extra field carries an unknown format version.
	ErrUnsupportedVersion = errors.New("zip: unsupported extra field version")

	// ErrInconsistentField is returned when a ZIP64 local header record would
	// carry only one of the two size values.
	ErrInconsistentField = errors.New("zip: zip64 extended information must contain both size values in the local file header")

	// ErrLengthMismatch is returned when the stored ZIP64 central directory data
	// is shorter than the fields the central directory header says it holds.
	ErrLengthMismatch = errors.New("zip: zip64 extra field length doesn't match central directory data")
)

// Pipeline errors.
var (
	// ErrGatherStarted is returned when entries are added to, or gathered from,
	// a pipeline whose gather phase has already begun.
	ErrGatherStarted = errors.New("zip: gather already started")

	// ErrPipelineClosed is returned by operations on a closed pipeline.
	ErrPipelineClosed = errors.New("zip: pipeline closed")
)

// LengthMismatchError reports the lengths involved in an [ErrLengthMismatch] failure.
type LengthMismatchError struct {
	Expected int // Bytes implied by the presence mask
	Actual   int // Bytes stored from the central directory
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%v: expected length %d but is %d", ErrLengthMismatch, e.Expected, e.Actual)
}

func (e *LengthMismatchError) Unwrap() error { return ErrLengthMismatch }
