// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Header IDs of the extra fields known to this package.
const (
	Zip64ExtraID          uint16 = 0x0001
	NTFSExtraID           uint16 = 0x000a
	UnicodeCommentExtraID uint16 = 0x6375
	UnicodePathExtraID    uint16 = 0x7075
)

// extraHeaderLen is the size of the tag and length prefix of every record.
const extraHeaderLen = 4

// ExtraField is a tagged record stored in the extra block of a local file
// header or central directory header. The two encodings may differ.
// For both encodings the reported length always equals the length of the
// data returned.
type ExtraField interface {
	HeaderID() uint16

	LocalFileDataLength() uint16
	LocalFileData() ([]byte, error)

	CentralDirectoryLength() uint16
	CentralDirectoryData() ([]byte, error)

	ParseLocalFileData(data []byte) error
	ParseCentralDirectoryData(data []byte) error
}

var (
	extraMu       sync.RWMutex
	extraRegistry = map[uint16]func() ExtraField{
		Zip64ExtraID:          func() ExtraField { return new(Zip64ExtendedInfo) },
		NTFSExtraID:           func() ExtraField { return new(NTFSTimestamps) },
		UnicodeCommentExtraID: func() ExtraField { return new(UnicodeCommentField) },
		UnicodePathExtraID:    func() ExtraField { return new(UnicodePathField) },
	}
)

// RegisterExtraField makes ParseExtraFields decode records tagged id with
// fields created by newField. An existing registration is replaced.
func RegisterExtraField(id uint16, newField func() ExtraField) {
	extraMu.Lock()
	defer extraMu.Unlock()
	extraRegistry[id] = newField
}

// newExtraField returns an empty field for id, or an UnrecognizedExtraField
// when nothing is registered for it.
func newExtraField(id uint16) ExtraField {
	extraMu.RLock()
	newField, ok := extraRegistry[id]
	extraMu.RUnlock()
	if !ok {
		return &UnrecognizedExtraField{ID: id}
	}
	return newField()
}

// ParseExtraFields splits an extra block into records and decodes each one
// with its registered variant. local selects the local file header encoding.
// Unknown tags are kept as *UnrecognizedExtraField. A record whose declared
// length overruns the block, or trailing bytes too short for a record
// header, fail with ErrCorruptExtraField.
func ParseExtraFields(data []byte, local bool) ([]ExtraField, error) {
	var fields []ExtraField

	for offset := 0; offset < len(data); {
		if offset+extraHeaderLen > len(data) {
			return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrCorruptExtraField, len(data)-offset, offset)
		}

		id := binary.LittleEndian.Uint16(data[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
		offset += extraHeaderLen

		if offset+size > len(data) {
			return nil, fmt.Errorf("%w: tag 0x%04x declares %d bytes but only %d remain",
				ErrCorruptExtraField, id, size, len(data)-offset)
		}
		body := data[offset : offset+size]
		offset += size

		field := newExtraField(id)
		var err error
		if local {
			err = field.ParseLocalFileData(body)
		} else {
			err = field.ParseCentralDirectoryData(body)
		}
		if err != nil {
			if errors.Is(err, ErrCorruptExtraField) {
				return nil, fmt.Errorf("extra field 0x%04x: %w", id, err)
			}
			return nil, fmt.Errorf("%w: tag 0x%04x: %w", ErrCorruptExtraField, id, err)
		}
		fields = append(fields, field)
	}

	return fields, nil
}

// MergeLocalFileData serializes fields into a local file header extra block.
func MergeLocalFileData(fields []ExtraField) ([]byte, error) {
	return mergeExtraFields(fields, ExtraField.LocalFileData)
}

// MergeCentralDirectoryData serializes fields into a central directory
// extra block.
func MergeCentralDirectoryData(fields []ExtraField) ([]byte, error) {
	return mergeExtraFields(fields, ExtraField.CentralDirectoryData)
}

func mergeExtraFields(fields []ExtraField, encode func(ExtraField) ([]byte, error)) ([]byte, error) {
	var out []byte
	for _, f := range fields {
		data, err := encode(f)
		if err != nil {
			return nil, fmt.Errorf("encode extra field 0x%04x: %w", f.HeaderID(), err)
		}
		if len(data) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: field 0x%04x holds %d bytes", ErrExtraFieldTooLong, f.HeaderID(), len(data))
		}
		out = binary.LittleEndian.AppendUint16(out, f.HeaderID())
		out = binary.LittleEndian.AppendUint16(out, uint16(len(data)))
		out = append(out, data...)
	}
	if len(out) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrExtraFieldTooLong, len(out))
	}
	return out, nil
}

// findExtraField returns the first field with the given id, or nil.
func findExtraField(fields []ExtraField, id uint16) ExtraField {
	for _, f := range fields {
		if f.HeaderID() == id {
			return f
		}
	}
	return nil
}

// withoutExtraField returns fields minus every field with the given id.
func withoutExtraField(fields []ExtraField, id uint16) []ExtraField {
	out := make([]ExtraField, 0, len(fields))
	for _, f := range fields {
		if f.HeaderID() != id {
			out = append(out, f)
		}
	}
	return out
}

// UnrecognizedExtraField keeps the raw bytes of a record whose tag has no
// registered variant. Both encodings are preserved independently.
type UnrecognizedExtraField struct {
	ID      uint16
	Local   []byte
	Central []byte
}

func (f *UnrecognizedExtraField) HeaderID() uint16 { return f.ID }

func (f *UnrecognizedExtraField) LocalFileDataLength() uint16 {
	return uint16(len(f.localOrCentral()))
}

func (f *UnrecognizedExtraField) LocalFileData() ([]byte, error) {
	return f.localOrCentral(), nil
}

// localOrCentral returns the local encoding, falling back to the central
// one when only that was parsed.
func (f *UnrecognizedExtraField) localOrCentral() []byte {
	if f.Local != nil {
		return f.Local
	}
	return f.Central
}

func (f *UnrecognizedExtraField) CentralDirectoryLength() uint16 {
	return uint16(len(f.centralOrLocal()))
}

func (f *UnrecognizedExtraField) CentralDirectoryData() ([]byte, error) {
	return f.centralOrLocal(), nil
}

func (f *UnrecognizedExtraField) centralOrLocal() []byte {
	if f.Central != nil {
		return f.Central
	}
	return f.Local
}

func (f *UnrecognizedExtraField) ParseLocalFileData(data []byte) error {
	f.Local = append([]byte{}, data...)
	return nil
}

func (f *UnrecognizedExtraField) ParseCentralDirectoryData(data []byte) error {
	f.Central = append([]byte{}, data...)
	return nil
}
