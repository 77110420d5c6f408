// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// Shadow structs for binary reading (excluding string/slice fields)
// These are necessary because binary.Read cannot handle string fields found in the main structs.
type rawLocalHeader struct {
	Signature              uint32
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
}

type rawCentralDirectory struct {
	Signature              uint32
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
}

// TestLocalFileHeader_Encode checks the fixed part and the filename of an encoded local header
func TestLocalFileHeader_Encode(t *testing.T) {
	tests := []struct {
		name     string
		header   LocalFileHeader
		expected string // Expected filename in output
	}{
		{
			name: "Standard file",
			header: LocalFileHeader{
				VersionNeededToExtract: 20,
				CompressionMethod:      8,
				CRC32:                  0x12345678,
				CompressedSize:         100,
				UncompressedSize:       200,
				FilenameLength:         8,
				Filename:               "test.txt",
			},
			expected: "test.txt",
		},
		{
			name: "File inside directory",
			header: LocalFileHeader{
				VersionNeededToExtract: 20,
				CompressionMethod:      0,
				FilenameLength:         14,
				Filename:               "folder/doc.txt",
			},
			expected: "folder/doc.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Action
			encoded := tt.header.Encode()

			// Verification
			buf := bytes.NewReader(encoded)

			// 1. Verify Fixed Header
			var raw rawLocalHeader
			if err := binary.Read(buf, binary.LittleEndian, &raw); err != nil {
				t.Fatalf("Failed to read raw header: %v", err)
			}

			if raw.Signature != LocalFileHeaderSignature {
				t.Errorf("Signature mismatch: got %x, want %x", raw.Signature, LocalFileHeaderSignature)
			}
			if raw.FilenameLength != tt.header.FilenameLength {
				t.Errorf("FilenameLength mismatch: got %d, want %d", raw.FilenameLength, tt.header.FilenameLength)
			}

			// 2. Verify Variable Data (Filename)
			filenameBytes := make([]byte, raw.FilenameLength)
			if _, err := io.ReadFull(buf, filenameBytes); err != nil {
				t.Fatalf("Failed to read filename from buffer: %v", err)
			}

			if string(filenameBytes) != tt.expected {
				t.Errorf("Filename mismatch: got %q, want %q", string(filenameBytes), tt.expected)
			}

			// 3. Check total size matches expectations
			expectedSize := 30 + int(tt.header.FilenameLength) + int(tt.header.ExtraFieldLength)
			if len(encoded) != expectedSize {
				t.Errorf("Total encoded size mismatch: got %d, want %d", len(encoded), expectedSize)
			}
		})
	}
}

// TestCentralDirectory_Encode checks Filename, ExtraField and Comment placement
func TestCentralDirectory_Encode(t *testing.T) {
	extraData := []byte{0x01, 0x02, 0x03} // Fake extra data

	tests := []struct {
		name             string
		entry            CentralDirectory
		expectedFilename string
		expectedComment  string
	}{
		{
			name: "Simple Entry",
			entry: CentralDirectory{
				VersionMadeBy:     63,
				CRC32:             0xAABBCCDD,
				FilenameLength:    8,
				Filename:          "test.txt",
				LocalHeaderOffset: 12345,
			},
			expectedFilename: "test.txt",
			expectedComment:  "",
		},
		{
			name: "Entry with Extra Field and Comment",
			entry: CentralDirectory{
				VersionMadeBy:     63,
				FilenameLength:    9,
				ExtraFieldLength:  3,
				FileCommentLength: 13,
				Filename:          "image.png",
				ExtraField:        extraData,
				Comment:           "Hello Archive",
			},
			expectedFilename: "image.png",
			expectedComment:  "Hello Archive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Action
			encoded := tt.entry.Encode()

			// Verification
			buf := bytes.NewReader(encoded)

			// 1. Verify Fixed Header
			var raw rawCentralDirectory
			if err := binary.Read(buf, binary.LittleEndian, &raw); err != nil {
				t.Fatalf("Failed to read raw central dir: %v", err)
			}

			if raw.Signature != CentralDirectorySignature {
				t.Errorf("Signature mismatch: got %x, want %x", raw.Signature, CentralDirectorySignature)
			}

			// 2. Verify Filename
			filenameBytes := make([]byte, raw.FilenameLength)
			if _, err := io.ReadFull(buf, filenameBytes); err != nil {
				t.Fatalf("Reading filename: %v", err)
			}
			if string(filenameBytes) != tt.expectedFilename {
				t.Errorf("Filename mismatch: got %q, want %q", string(filenameBytes), tt.expectedFilename)
			}

			// 3. Verify Extra Fields
			if raw.ExtraFieldLength > 0 {
				extraBytes := make([]byte, raw.ExtraFieldLength)
				if _, err := io.ReadFull(buf, extraBytes); err != nil {
					t.Fatalf("Reading extra fields: %v", err)
				}
				if !bytes.Equal(extraBytes, extraData) {
					t.Error("Extra field data mismatch")
				}
			}

			// 4. Verify Comment
			if raw.FileCommentLength > 0 {
				commentBytes := make([]byte, raw.FileCommentLength)
				if _, err := io.ReadFull(buf, commentBytes); err != nil {
					t.Fatalf("Reading comment: %v", err)
				}
				if string(commentBytes) != tt.expectedComment {
					t.Errorf("Comment mismatch: got %q, want %q", string(commentBytes), tt.expectedComment)
				}
			}
		})
	}
}

// TestEndOfCentralDir_Encode tests the EOCD record encoding including the comment
func TestEndOfCentralDir_Encode(t *testing.T) {
	entries := uint64(5)
	size := uint64(1024)
	offset := uint64(2048)
	comment := "End of Archive"

	// Action
	encoded := EncodeEndOfCentralDirRecord(entries, size, offset, comment)

	// Verification
	if len(encoded) != 22+len(comment) {
		t.Errorf("Encoded length mismatch: got %d, want %d", len(encoded), 22+len(comment))
	}

	buf := bytes.NewReader(encoded)

	// Check Signature
	var signature uint32
	binary.Read(buf, binary.LittleEndian, &signature)
	if signature != EndOfCentralDirSignature {
		t.Errorf("Signature mismatch")
	}

	// Skip to Comment Length (Offset 20)
	buf.Seek(20, io.SeekStart)
	var commentLen uint16
	binary.Read(buf, binary.LittleEndian, &commentLen)

	if int(commentLen) != len(comment) {
		t.Errorf("Comment length mismatch: got %d, want %d", commentLen, len(comment))
	}

	// Verify Comment Body
	actualComment := make([]byte, commentLen)
	io.ReadFull(buf, actualComment)
	if string(actualComment) != comment {
		t.Errorf("Comment content mismatch: got %q, want %q", string(actualComment), comment)
	}
}

// TestZip64Records tests the structure of Zip64 specific records
func TestZip64Records(t *testing.T) {
	t.Run("Zip64 End Of Central Directory", func(t *testing.T) {
		encoded := EncodeZip64EndOfCentralDirRecord(0x0300|63, 100, 5000, 10000)

		if len(encoded) != 56 {
			t.Errorf("Zip64 EOCD size mismatch: got %d, want 56", len(encoded))
		}

		sig := binary.LittleEndian.Uint32(encoded[0:4])
		if sig != Zip64EndOfCentralDirSignature {
			t.Errorf("Signature mismatch")
		}

		sizeOfRest := binary.LittleEndian.Uint64(encoded[4:12])
		if sizeOfRest != 44 {
			t.Errorf("Size of rest mismatch: got %d, want 44", sizeOfRest)
		}
	})

	t.Run("Zip64 Locator", func(t *testing.T) {
		encoded := EncodeZip64EndOfCentralDirLocator(9999)

		if len(encoded) != 20 {
			t.Errorf("Zip64 Locator size mismatch: got %d, want 20", len(encoded))
		}

		sig := binary.LittleEndian.Uint32(encoded[0:4])
		if sig != Zip64EndOfCentralDirLocatorSignature {
			t.Errorf("Signature mismatch")
		}
	})
}

func TestLocalFileHeader_ReadBack(t *testing.T) {
	h := LocalFileHeader{
		VersionNeededToExtract: 45,
		GeneralPurposeBitFlag:  0x800,
		CompressionMethod:      8,
		CRC32:                  0xCAFEBABE,
		CompressedSize:         0xFFFFFFFF,
		UncompressedSize:       0xFFFFFFFF,
		Filename:               "dir/file.bin",
		ExtraField:             []byte{0x01, 0x00, 0x00, 0x00},
	}

	r := bytes.NewReader(h.Encode())
	r.Seek(4, io.SeekStart) // signature

	got, err := ReadLocalFileHeader(r)
	if err != nil {
		t.Fatalf("ReadLocalFileHeader: %v", err)
	}
	if got.Filename != h.Filename {
		t.Errorf("Filename mismatch: got %q, want %q", got.Filename, h.Filename)
	}
	if !bytes.Equal(got.ExtraField, h.ExtraField) {
		t.Errorf("ExtraField mismatch: got %x, want %x", got.ExtraField, h.ExtraField)
	}
	if got.CRC32 != h.CRC32 || got.CompressedSize != h.CompressedSize {
		t.Errorf("Fixed fields mismatch: got %+v", got)
	}
	if int(got.FilenameLength) != len(h.Filename) || int(got.ExtraFieldLength) != len(h.ExtraField) {
		t.Errorf("Lengths mismatch: got %d/%d", got.FilenameLength, got.ExtraFieldLength)
	}
}

func TestCentralDirectory_ReadBack(t *testing.T) {
	d := CentralDirectory{
		VersionMadeBy:          0x0300 | 63,
		VersionNeededToExtract: 20,
		CompressionMethod:      93,
		DiskNumberStart:        2,
		ExternalFileAttributes: 0100644 << 16,
		LocalHeaderOffset:      777,
		Filename:               "a.txt",
		ExtraField:             []byte{0xfe, 0xca, 0x01, 0x00, 0x09},
		Comment:                "note",
	}

	r := bytes.NewReader(d.Encode())
	r.Seek(4, io.SeekStart)

	got, err := ReadCentralDirEntry(r)
	if err != nil {
		t.Fatalf("ReadCentralDirEntry: %v", err)
	}
	if got.Filename != d.Filename || got.Comment != d.Comment {
		t.Errorf("Strings mismatch: got %q/%q", got.Filename, got.Comment)
	}
	if !bytes.Equal(got.ExtraField, d.ExtraField) {
		t.Errorf("ExtraField mismatch: got %x", got.ExtraField)
	}
	if got.DiskNumberStart != 2 || got.LocalHeaderOffset != 777 || got.CompressionMethod != 93 {
		t.Errorf("Fixed fields mismatch: got %+v", got)
	}
	if r.Len() != 0 {
		t.Errorf("Unread bytes left: %d", r.Len())
	}
}

func TestEndOfCentralDir_ReadBack(t *testing.T) {
	encoded := EncodeEndOfCentralDirRecord(70000, 1<<33, 12, "c")

	end, err := ReadEndOfCentralDir(bytes.NewReader(encoded[4:]))
	if err != nil {
		t.Fatalf("ReadEndOfCentralDir: %v", err)
	}
	if end.TotalNumberOfEntries != 0xFFFF {
		t.Errorf("Entries should saturate: got %d", end.TotalNumberOfEntries)
	}
	if end.CentralDirSize != 0xFFFFFFFF {
		t.Errorf("Size should saturate: got %d", end.CentralDirSize)
	}
	if end.CentralDirOffset != 12 || end.Comment != "c" {
		t.Errorf("Offset/comment mismatch: got %d/%q", end.CentralDirOffset, end.Comment)
	}

	z := EncodeZip64EndOfCentralDirRecord(0x0300|63, 70000, 1<<33, 12)
	z64, err := ReadZip64EndOfCentralDir(bytes.NewReader(z[4:]))
	if err != nil {
		t.Fatalf("ReadZip64EndOfCentralDir: %v", err)
	}
	if z64.TotalNumberOfEntries != 70000 || z64.CentralDirSize != 1<<33 || z64.CentralDirOffset != 12 {
		t.Errorf("Zip64 EOCD mismatch: got %+v", z64)
	}

	loc, err := ReadZip64EndOfCentralDirLocator(bytes.NewReader(EncodeZip64EndOfCentralDirLocator(1 << 40)[4:]))
	if err != nil {
		t.Fatalf("ReadZip64EndOfCentralDirLocator: %v", err)
	}
	if loc.Zip64EndOfCentralDirOffset != 1<<40 || loc.TotalNumberOfDisks != 1 {
		t.Errorf("Locator mismatch: got %+v", loc)
	}
}
