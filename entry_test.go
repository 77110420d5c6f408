// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/lemon4ksan/zipkit/internal/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileExternalAttributes(t *testing.T) {
	tests := []struct {
		name     string
		host     sys.HostSystem
		attrs    uint32
		filename string
		wantMode fs.FileMode
	}{
		{
			name:     "unix regular file",
			host:     sys.HostSystemUNIX,
			attrs:    uint32(0o644) << 16,
			filename: "file.txt",
			wantMode: 0o644,
		},
		{
			name:     "unix directory",
			host:     sys.HostSystemUNIX,
			attrs:    uint32(0o040755) << 16, // IFDIR + 0755
			filename: "folder/",
			wantMode: 0o755 | fs.ModeDir,
		},
		{
			name:     "unix without mode bits",
			host:     sys.HostSystemUNIX,
			attrs:    sys.DOSDirectory,
			filename: "folder",
			wantMode: 0o755 | fs.ModeDir,
		},
		{
			name:     "dos read-only",
			host:     sys.HostSystemFAT,
			attrs:    sys.DOSReadOnly,
			filename: "file.txt",
			wantMode: 0o444,
		},
		{
			name:     "dos directory",
			host:     sys.HostSystemFAT,
			attrs:    sys.DOSDirectory,
			filename: "folder/",
			wantMode: 0o755 | fs.ModeDir,
		},
		{
			name:     "other host file",
			host:     sys.HostSystemAmiga,
			attrs:    0xdeadbeef,
			filename: "file",
			wantMode: 0o644,
		},
		{
			name:     "other host directory",
			host:     sys.HostSystemAmiga,
			filename: "folder/",
			wantMode: 0o755 | fs.ModeDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMode, parseFileExternalAttributes(tt.host, tt.attrs, tt.filename))
		})
	}
}

func TestVersionNeededToExtract(t *testing.T) {
	tests := []struct {
		name   string
		entry  *Entry
		zip64  bool
		wanted uint16
	}{
		{name: "stored", entry: NewEntry("a.txt", Stored), wanted: 10},
		{name: "stored in folder", entry: NewEntry("dir/a.txt", Stored), wanted: 20},
		{name: "deflated", entry: NewEntry("a.txt", Deflated), wanted: 20},
		{name: "directory", entry: NewEntry("dir/", Stored), wanted: 20},
		{name: "zip64", entry: NewEntry("a.txt", Deflated), zip64: true, wanted: 45},
		{name: "zstd", entry: NewEntry("a.txt", ZStandard), zip64: true, wanted: LatestZipVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wanted, tt.entry.versionNeededToExtract(tt.zip64))
		})
	}
}

func TestNewFileEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("twelve bytes"), 0o600))

	t.Run("file", func(t *testing.T) {
		info, err := os.Stat(path)
		require.NoError(t, err)

		e := NewFileEntry("file.txt", info, Deflated)
		assert.Equal(t, Deflated, e.Method)
		assert.Equal(t, uint64(12), e.UncompressedSize)
		assert.False(t, e.IsDir())
		assert.True(t, e.Modified.Equal(info.ModTime()))

		ntfs, ok := e.ExtraField(NTFSExtraID).(*NTFSTimestamps)
		require.True(t, ok)
		assert.True(t, ntfs.Modified.Equal(info.ModTime()))
	})

	t.Run("directory", func(t *testing.T) {
		info, err := os.Stat(dir)
		require.NoError(t, err)

		e := NewFileEntry("folder", info, Deflated)
		assert.Equal(t, "folder/", e.Name)
		assert.Equal(t, Stored, e.Method)
		assert.Zero(t, e.UncompressedSize)
		assert.True(t, e.IsDir())
	})
}

func TestEntry_Apply(t *testing.T) {
	e := NewEntry("a.txt", Deflated)
	e.apply(Stored, Measurement{CRC32: 0xcafebabe, Size: 10, CompressedSize: 10})

	assert.Equal(t, Stored, e.Method)
	assert.Equal(t, uint32(0xcafebabe), e.CRC32)
	assert.Equal(t, uint64(10), e.UncompressedSize)
	assert.Equal(t, uint64(10), e.CompressedSize)
}
