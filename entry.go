// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/lemon4ksan/zipkit/internal/sys"
)

// LatestZipVersion represents the maximum ZIP specification version supported
// by this implementation. Version 63 corresponds to ZIP 6.3 specification.
const LatestZipVersion uint16 = 63

// General purpose bit flag marking UTF-8 names and comments.
const flagUTF8 uint16 = 0x0800

// Entry describes one file in an archive.
//
// Entries passed to a Pipeline are patched with the measured method, CRC32
// and sizes during gather; callers must not modify them concurrently with
// gather.
type Entry struct {
	Name     string    // Path within the archive using forward slashes; directories end in "/"
	Comment  string    // Per-entry comment
	Modified time.Time // Modification time
	Mode     fs.FileMode

	Method           CompressionMethod
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64

	// Extra holds extra fields written with the entry. The writer adds its
	// own ZIP64 and Unicode fields and replaces any given here.
	Extra []ExtraField

	// Populated by Reader; headerOffset is also set by Writer.
	hostSystem   sys.HostSystem
	externalAttr uint32
	headerOffset int64 // global offset of the local header
}

// NewEntry returns an entry for a regular file called name.
func NewEntry(name string, method CompressionMethod) *Entry {
	return &Entry{
		Name:     name,
		Method:   method,
		Mode:     0o644,
		Modified: time.Now(),
	}
}

// NewFileEntry returns an entry for the file described by info, stored
// under name. The modification, access and creation times the platform
// exposes are kept in an NTFS extra field.
func NewFileEntry(name string, info os.FileInfo, method CompressionMethod) *Entry {
	times := sys.GetFileTimes(info)
	e := &Entry{
		Name:     name,
		Method:   method,
		Mode:     info.Mode(),
		Modified: times.Modified,
		Extra: []ExtraField{&NTFSTimestamps{
			Modified: times.Modified,
			Accessed: times.Accessed,
			Created:  times.Created,
		}},
	}
	if info.IsDir() {
		e.Method = Stored
		if !strings.HasSuffix(e.Name, "/") {
			e.Name += "/"
		}
	} else {
		e.UncompressedSize = uint64(info.Size())
	}
	return e
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/") || e.Mode.IsDir()
}

// ExtraField returns the first extra field with the given header ID, or nil.
func (e *Entry) ExtraField(id uint16) ExtraField {
	return findExtraField(e.Extra, id)
}

// HostSystem returns the system that created the entry. It is only
// meaningful for entries returned by a Reader.
func (e *Entry) HostSystem() sys.HostSystem { return e.hostSystem }

// HeaderOffset returns the offset of the entry's local header within the
// archive, as written by a Writer or found by a Reader.
func (e *Entry) HeaderOffset() int64 { return e.headerOffset }

// apply records the measured result of compressing the entry's payload.
// It is the only place where gather writes to a caller's Entry.
func (e *Entry) apply(method CompressionMethod, m Measurement) {
	e.Method = method
	e.CRC32 = m.CRC32
	e.CompressedSize = m.CompressedSize
	e.UncompressedSize = m.Size
}

// requiresZip64 reports whether the sizes or the local header offset do not
// fit the 32-bit header fields.
func (e *Entry) requiresZip64(offset int64) bool {
	return e.UncompressedSize >= math.MaxUint32 ||
		e.CompressedSize >= math.MaxUint32 ||
		offset >= math.MaxUint32
}

func (e *Entry) versionNeededToExtract(zip64 bool) uint16 {
	switch {
	case e.Method == ZStandard:
		return LatestZipVersion
	case zip64:
		return 45
	case e.Method == Deflated, e.IsDir(), strings.Contains(e.Name, "/"):
		return 20
	}
	return 10
}

func versionMadeBy() uint16 {
	hs := sys.DefaultHostSystem
	// Normalize NTFS to FAT for broader compatibility
	if hs == sys.HostSystemNTFS {
		hs = sys.HostSystemFAT
	}
	return uint16(hs)<<8 | LatestZipVersion
}

func (e *Entry) externalFileAttributes() uint32 {
	mode := e.Mode
	if e.IsDir() {
		mode |= fs.ModeDir
	}

	switch sys.DefaultHostSystem {
	case sys.HostSystemNTFS, sys.HostSystemFAT:
		var attrs uint32
		if mode.IsDir() {
			attrs |= sys.DOSDirectory
		} else {
			attrs |= sys.DOSArchive
		}
		if mode&0200 == 0 {
			attrs |= sys.DOSReadOnly
		}
		return attrs
	default:
		attrs := sys.UnixMode(mode) << 16
		if mode.IsDir() {
			attrs |= sys.DOSDirectory
		}
		return attrs
	}
}

// parseFileExternalAttributes derives a file mode from the external
// attributes recorded by hostSystem.
func parseFileExternalAttributes(hostSystem sys.HostSystem, attrs uint32, name string) fs.FileMode {
	isDir := strings.HasSuffix(name, "/")

	if hostSystem.IsUnix() {
		if unixMode := attrs >> 16; unixMode != 0 {
			return sys.FileMode(unixMode)
		}
	}

	if hostSystem.IsWindows() || hostSystem.IsUnix() {
		isDir = isDir || attrs&sys.DOSDirectory != 0
		mode := fs.FileMode(0644)
		if isDir {
			mode = 0755 | fs.ModeDir
		}
		if attrs&sys.DOSReadOnly != 0 {
			mode &^= 0222 // Remove write permission (a-w)
		}
		return mode
	}

	if isDir {
		return 0755 | fs.ModeDir
	}
	return 0644
}
