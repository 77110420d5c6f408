// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	unicodeFieldVersion = 1
	unicodeHeaderLen    = 5 // version + crc32
)

// unicodeExtraField holds the state shared by the Info-ZIP Unicode path and
// comment fields: a CRC32 of the header's original bytes and the UTF-8 text
// that replaces them. Both encodings are identical.
type unicodeExtraField struct {
	nameCRC32   uint32
	unicodeName []byte
	data        []byte // assembled encoding, nil when stale
}

func newUnicodeExtraField(text string, original []byte) unicodeExtraField {
	return unicodeExtraField{
		nameCRC32:   crc32.ChecksumIEEE(original),
		unicodeName: []byte(text),
	}
}

// NameCRC32 returns the CRC32 of the original header bytes.
func (f *unicodeExtraField) NameCRC32() uint32 { return f.nameCRC32 }

// SetNameCRC32 replaces the stored checksum.
func (f *unicodeExtraField) SetNameCRC32(crc uint32) {
	f.nameCRC32 = crc
	f.data = nil
}

// UnicodeName returns the UTF-8 bytes.
func (f *unicodeExtraField) UnicodeName() []byte { return f.unicodeName }

// SetUnicodeName replaces the UTF-8 bytes.
func (f *unicodeExtraField) SetUnicodeName(name []byte) {
	f.unicodeName = append([]byte{}, name...)
	f.data = nil
}

// Text returns the UTF-8 text as a string.
func (f *unicodeExtraField) Text() string { return string(f.unicodeName) }

// Matches reports whether original is the byte sequence the field was
// created for. Readers use it to discard fields made stale by tools that
// rename entries without updating their extra fields.
func (f *unicodeExtraField) Matches(original []byte) bool {
	return crc32.ChecksumIEEE(original) == f.nameCRC32
}

func (f *unicodeExtraField) assemble() []byte {
	if f.data == nil {
		data := make([]byte, 0, unicodeHeaderLen+len(f.unicodeName))
		data = append(data, unicodeFieldVersion)
		data = binary.LittleEndian.AppendUint32(data, f.nameCRC32)
		f.data = append(data, f.unicodeName...)
	}
	return f.data
}

func (f *unicodeExtraField) LocalFileDataLength() uint16 { return uint16(len(f.assemble())) }

func (f *unicodeExtraField) LocalFileData() ([]byte, error) { return f.assemble(), nil }

func (f *unicodeExtraField) CentralDirectoryLength() uint16 { return f.LocalFileDataLength() }

func (f *unicodeExtraField) CentralDirectoryData() ([]byte, error) { return f.LocalFileData() }

func (f *unicodeExtraField) ParseLocalFileData(data []byte) error {
	if len(data) < unicodeHeaderLen {
		return fmt.Errorf("%w: unicode field needs at least %d bytes, got %d",
			ErrCorruptExtraField, unicodeHeaderLen, len(data))
	}
	if version := data[0]; version != unicodeFieldVersion {
		return fmt.Errorf("%w: unicode field version %d", ErrUnsupportedVersion, version)
	}
	f.nameCRC32 = binary.LittleEndian.Uint32(data[1:5])
	f.unicodeName = append([]byte{}, data[unicodeHeaderLen:]...)
	f.data = nil
	return nil
}

func (f *unicodeExtraField) ParseCentralDirectoryData(data []byte) error {
	return f.ParseLocalFileData(data)
}

// UnicodePathField is the Info-ZIP Unicode path extra field (0x7075).
// It carries a UTF-8 name for entries whose header name uses a legacy
// encoding.
type UnicodePathField struct {
	unicodeExtraField
}

// NewUnicodePathField returns a field naming text, bound to the original
// encoded header name. Pass a sub-slice to bind to part of a buffer.
func NewUnicodePathField(text string, original []byte) *UnicodePathField {
	return &UnicodePathField{newUnicodeExtraField(text, original)}
}

func (f *UnicodePathField) HeaderID() uint16 { return UnicodePathExtraID }

// UnicodeCommentField is the Info-ZIP Unicode comment extra field (0x6375).
type UnicodeCommentField struct {
	unicodeExtraField
}

// NewUnicodeCommentField returns a field carrying text for the original
// encoded entry comment.
func NewUnicodeCommentField(text string, original []byte) *UnicodeCommentField {
	return &UnicodeCommentField{newUnicodeExtraField(text, original)}
}

func (f *UnicodeCommentField) HeaderID() uint16 { return UnicodeCommentExtraID }
