// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	zip64DwordLen = 8
	zip64WordLen  = 4

	// size + compressed size, the only layout a local header may carry
	zip64LocalLen = 2 * zip64DwordLen
)

// Zip64State tells whether the central directory form of a ZIP64 field has
// been interpreted against its header.
type Zip64State uint8

const (
	// Zip64Resolved means the field values are authoritative.
	Zip64Resolved Zip64State = iota

	// Zip64Unresolved means the central directory bytes were stored but the
	// header sentinels that decide their layout have not been applied yet.
	// Field values are a best-effort guess until Reparse is called.
	Zip64Unresolved
)

func (s Zip64State) String() string {
	if s == Zip64Unresolved {
		return "unresolved"
	}
	return "resolved"
}

// Zip64Presence lists which values a central directory ZIP64 field holds.
type Zip64Presence struct {
	Size           bool
	CompressedSize bool
	HeaderOffset   bool
	DiskStart      bool
}

// PresenceFromHeader derives the presence mask from the 32-bit fields of a
// central directory header: a value carries its real width in the ZIP64
// field exactly when the header stores the all-ones sentinel.
func PresenceFromHeader(size, compressedSize, headerOffset uint32, diskStart uint16) Zip64Presence {
	return Zip64Presence{
		Size:           size == math.MaxUint32,
		CompressedSize: compressedSize == math.MaxUint32,
		HeaderOffset:   headerOffset == math.MaxUint32,
		DiskStart:      diskStart == math.MaxUint16,
	}
}

func (p Zip64Presence) length() int {
	n := 0
	if p.Size {
		n += zip64DwordLen
	}
	if p.CompressedSize {
		n += zip64DwordLen
	}
	if p.HeaderOffset {
		n += zip64DwordLen
	}
	if p.DiskStart {
		n += zip64WordLen
	}
	return n
}

// Zip64ExtendedInfo is the ZIP64 extended information extra field (0x0001).
//
// The central directory encoding has no per-value markers: which values are
// present depends on sentinels in the surrounding header. Parsing the
// central form therefore stores the raw bytes and leaves the field
// Zip64Unresolved until Reparse is called with the header's presence mask.
type Zip64ExtendedInfo struct {
	size, compressedSize, headerOffset uint64
	diskStart                          uint32

	hasSize, hasCompressedSize, hasHeaderOffset, hasDiskStart bool

	raw   []byte // central directory bytes kept for Reparse
	state Zip64State
}

// NewZip64ExtendedInfo returns a field holding both sizes.
func NewZip64ExtendedInfo(size, compressedSize uint64) *Zip64ExtendedInfo {
	z := new(Zip64ExtendedInfo)
	z.SetSize(size)
	z.SetCompressedSize(compressedSize)
	return z
}

func (z *Zip64ExtendedInfo) HeaderID() uint16 { return Zip64ExtraID }

// State reports whether the field values are final.
func (z *Zip64ExtendedInfo) State() Zip64State { return z.state }

func (z *Zip64ExtendedInfo) Size() (uint64, bool) { return z.size, z.hasSize }

func (z *Zip64ExtendedInfo) CompressedSize() (uint64, bool) {
	return z.compressedSize, z.hasCompressedSize
}

func (z *Zip64ExtendedInfo) HeaderOffset() (uint64, bool) {
	return z.headerOffset, z.hasHeaderOffset
}

func (z *Zip64ExtendedInfo) DiskStart() (uint32, bool) { return z.diskStart, z.hasDiskStart }

func (z *Zip64ExtendedInfo) SetSize(v uint64) { z.size, z.hasSize = v, true }

func (z *Zip64ExtendedInfo) SetCompressedSize(v uint64) {
	z.compressedSize, z.hasCompressedSize = v, true
}

func (z *Zip64ExtendedInfo) SetHeaderOffset(v uint64) {
	z.headerOffset, z.hasHeaderOffset = v, true
}

func (z *Zip64ExtendedInfo) SetDiskStart(v uint32) { z.diskStart, z.hasDiskStart = v, true }

func (z *Zip64ExtendedInfo) clear() {
	*z = Zip64ExtendedInfo{raw: z.raw, state: z.state}
}

func (z *Zip64ExtendedInfo) LocalFileDataLength() uint16 {
	if z.hasSize || z.hasCompressedSize {
		return zip64LocalLen
	}
	return 0
}

// LocalFileData returns both sizes, or nothing when neither is set.
// A local header cannot carry one size without the other, so a field with
// exactly one of them fails with ErrInconsistentField.
func (z *Zip64ExtendedInfo) LocalFileData() ([]byte, error) {
	if !z.hasSize && !z.hasCompressedSize {
		return []byte{}, nil
	}
	if z.hasSize != z.hasCompressedSize {
		return nil, ErrInconsistentField
	}
	data := make([]byte, 0, zip64LocalLen)
	data = binary.LittleEndian.AppendUint64(data, z.size)
	data = binary.LittleEndian.AppendUint64(data, z.compressedSize)
	return data, nil
}

func (z *Zip64ExtendedInfo) CentralDirectoryLength() uint16 {
	return uint16(z.presence().length())
}

// CentralDirectoryData returns the present values in the fixed order size,
// compressed size, header offset, disk start. Absent values are omitted.
func (z *Zip64ExtendedInfo) CentralDirectoryData() ([]byte, error) {
	data := make([]byte, 0, z.presence().length())
	if z.hasSize {
		data = binary.LittleEndian.AppendUint64(data, z.size)
	}
	if z.hasCompressedSize {
		data = binary.LittleEndian.AppendUint64(data, z.compressedSize)
	}
	if z.hasHeaderOffset {
		data = binary.LittleEndian.AppendUint64(data, z.headerOffset)
	}
	if z.hasDiskStart {
		data = binary.LittleEndian.AppendUint32(data, z.diskStart)
	}
	return data, nil
}

func (z *Zip64ExtendedInfo) presence() Zip64Presence {
	return Zip64Presence{
		Size:           z.hasSize,
		CompressedSize: z.hasCompressedSize,
		HeaderOffset:   z.hasHeaderOffset,
		DiskStart:      z.hasDiskStart,
	}
}

// ParseLocalFileData decodes the local header form. An empty record is legal
// and leaves the field unchanged. Otherwise both sizes are required; a
// header offset and a disk start are read when enough bytes follow, and
// anything after them is ignored.
func (z *Zip64ExtendedInfo) ParseLocalFileData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(data) < zip64LocalLen {
		return fmt.Errorf("%w: zip64 local data must be at least %d bytes, got %d",
			ErrCorruptExtraField, zip64LocalLen, len(data))
	}

	z.clear()
	z.SetSize(binary.LittleEndian.Uint64(data[0:8]))
	z.SetCompressedSize(binary.LittleEndian.Uint64(data[8:16]))
	rest := data[zip64LocalLen:]

	if len(rest) >= zip64DwordLen {
		z.SetHeaderOffset(binary.LittleEndian.Uint64(rest[:8]))
		rest = rest[zip64DwordLen:]
	}
	if len(rest) >= zip64WordLen {
		z.SetDiskStart(binary.LittleEndian.Uint32(rest[:4]))
	}
	return nil
}

// ParseCentralDirectoryData stores data for Reparse and marks the field
// Zip64Unresolved. Lengths that admit only one layout are decoded right away:
// 28 or more bytes as a full record, exactly 24 bytes as size, compressed
// size and header offset, and 8n+4 bytes as a lone disk start.
func (z *Zip64ExtendedInfo) ParseCentralDirectoryData(data []byte) error {
	z.raw = append([]byte{}, data...)
	z.state = Zip64Unresolved
	z.clear()

	switch n := len(data); {
	case n >= 3*zip64DwordLen+zip64WordLen:
		return z.ParseLocalFileData(data)
	case n == 3*zip64DwordLen:
		z.SetSize(binary.LittleEndian.Uint64(data[0:8]))
		z.SetCompressedSize(binary.LittleEndian.Uint64(data[8:16]))
		z.SetHeaderOffset(binary.LittleEndian.Uint64(data[16:24]))
	case n%zip64DwordLen == zip64WordLen:
		z.SetDiskStart(binary.LittleEndian.Uint32(data[n-4:]))
	}
	return nil
}

// Reparse reinterprets the stored central directory bytes using the presence
// mask of the header the field belongs to. Values are read in the fixed
// order size, compressed size, header offset, disk start; values not in the
// mask are cleared. The result supersedes the guess made while parsing and
// the call may be repeated with the same outcome.
//
// If the stored bytes are shorter than the mask requires, Reparse returns a
// *LengthMismatchError. A field that was not parsed from a central directory
// has nothing to reparse and is left unchanged.
func (z *Zip64ExtendedInfo) Reparse(p Zip64Presence) error {
	if z.raw == nil {
		return nil
	}
	if expected := p.length(); len(z.raw) < expected {
		return &LengthMismatchError{Expected: expected, Actual: len(z.raw)}
	}

	z.clear()
	data := z.raw
	if p.Size {
		z.SetSize(binary.LittleEndian.Uint64(data[:8]))
		data = data[zip64DwordLen:]
	}
	if p.CompressedSize {
		z.SetCompressedSize(binary.LittleEndian.Uint64(data[:8]))
		data = data[zip64DwordLen:]
	}
	if p.HeaderOffset {
		z.SetHeaderOffset(binary.LittleEndian.Uint64(data[:8]))
		data = data[zip64DwordLen:]
	}
	if p.DiskStart {
		z.SetDiskStart(binary.LittleEndian.Uint32(data[:4]))
	}
	z.state = Zip64Resolved
	return nil
}
