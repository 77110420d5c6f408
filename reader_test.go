// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lemon4ksan/zipkit/internal"
	"github.com/lemon4ksan/zipkit/internal/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEOCD(entries uint16, cdSize, cdOffset uint32, comment string) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, internal.EndOfCentralDirSignature)
	binary.Write(buf, binary.LittleEndian, uint16(0))            // Disk number
	binary.Write(buf, binary.LittleEndian, uint16(0))            // Disk number with start
	binary.Write(buf, binary.LittleEndian, entries)              // Entries on disk
	binary.Write(buf, binary.LittleEndian, entries)              // Total entries
	binary.Write(buf, binary.LittleEndian, cdSize)               // Size of CD
	binary.Write(buf, binary.LittleEndian, cdOffset)             // Offset of CD
	binary.Write(buf, binary.LittleEndian, uint16(len(comment))) // Comment len
	buf.WriteString(comment)
	return buf.Bytes()
}

func TestFindEndOfCentralDir(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		wantOffset  int64
		wantComment string
		wantErr     error
	}{
		{
			name: "record at end",
			data: makeEOCD(5, 100, 200, ""),
		},
		{
			name:        "record with comment",
			data:        makeEOCD(1, 50, 10, "This is a comment"),
			wantComment: "This is a comment",
		},
		{
			name:        "preceded by garbage",
			data:        append([]byte("garbage data..."), makeEOCD(1, 50, 10, "Comment")...),
			wantOffset:  15,
			wantComment: "Comment",
		},
		{
			name:        "signature inside comment",
			data:        append([]byte("prefix"), makeEOCD(1, 50, 10, "Fake PK\x05\x06 signature")...),
			wantOffset:  6,
			wantComment: "Fake PK\x05\x06 signature",
		},
		{
			name:    "file too small",
			data:    []byte("too short"),
			wantErr: ErrFormat,
		},
		{
			name:    "no signature",
			data:    make([]byte, 100),
			wantErr: ErrFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Reader{src: bytes.NewReader(tt.data), size: int64(len(tt.data))}

			end, offset, err := r.findEndOfCentralDir(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantComment, end.Comment)
		})
	}
}

func TestFindEndOfCentralDir_SignatureAcrossWindows(t *testing.T) {
	// The signature starts two bytes before the last 1024-byte window.
	comment := strings.Repeat("c", 1024+2-internal.EndOfCentralDirLen)
	data := append(make([]byte, 100), makeEOCD(1, 10, 10, comment)...)

	r := &Reader{src: bytes.NewReader(data), size: int64(len(data))}
	end, offset, err := r.findEndOfCentralDir(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), offset)
	assert.Equal(t, uint16(len(comment)), end.CommentLength)
}

func zip64Extra(values ...uint64) []byte {
	buf := binary.LittleEndian.AppendUint16(nil, Zip64ExtraID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(8*len(values)))
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	return buf
}

func TestNewEntry_Zip64(t *testing.T) {
	tests := []struct {
		name           string
		cd             internal.CentralDirectory
		wantSize       uint64
		wantCompressed uint64
		wantOffset     int64
		wantErr        error
	}{
		{
			name: "all values",
			cd: internal.CentralDirectory{
				UncompressedSize:  math.MaxUint32,
				CompressedSize:    math.MaxUint32,
				LocalHeaderOffset: math.MaxUint32,
				ExtraField:        zip64Extra(5000000000, 4000000000, 1000000000),
			},
			wantSize:       5000000000,
			wantCompressed: 4000000000,
			wantOffset:     1000000000,
		},
		{
			name: "offset only",
			cd: internal.CentralDirectory{
				UncompressedSize:  100,
				CompressedSize:    80,
				LocalHeaderOffset: math.MaxUint32,
				ExtraField:        zip64Extra(6 << 30),
			},
			wantSize:       100,
			wantCompressed: 80,
			wantOffset:     6 << 30,
		},
		{
			name: "field shorter than sentinels",
			cd: internal.CentralDirectory{
				UncompressedSize:  math.MaxUint32,
				CompressedSize:    math.MaxUint32,
				LocalHeaderOffset: math.MaxUint32,
				ExtraField:        zip64Extra(5000000000),
			},
			wantErr: ErrLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cd.Filename = "large_file.dat"
			e, err := new(Reader).newEntry(tt.cd)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var mismatch *LengthMismatchError
				require.True(t, errors.As(err, &mismatch))
				assert.Equal(t, 24, mismatch.Expected)
				assert.Equal(t, 8, mismatch.Actual)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, e.UncompressedSize)
			assert.Equal(t, tt.wantCompressed, e.CompressedSize)
			assert.Equal(t, tt.wantOffset, e.HeaderOffset())
		})
	}
}

func TestNewEntry_DiskOnSingleVolume(t *testing.T) {
	_, err := new(Reader).newEntry(internal.CentralDirectory{Filename: "x", DiskNumberStart: 2})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestReader_ReadsArchiveZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	require.NoError(t, zw.SetComment("made by archive/zip"))

	contents := map[string]string{
		"deflated.txt": strings.Repeat("compress me ", 500),
		"stored.txt":   "stored as is",
	}
	for _, name := range []string{"deflated.txt", "stored.txt"} {
		method := zip.Deflate
		if name == "stored.txt" {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: defaultTime()})
		require.NoError(t, err)
		_, err = io.WriteString(w, contents[name])
		require.NoError(t, err)
	}
	_, err := zw.Create("folder/")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "made by archive/zip", r.Comment())
	require.Len(t, r.Entries(), 3)

	for name, want := range contents {
		got, err := r.ReadAll(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got))
	}

	dir, err := r.Find("folder/")
	require.NoError(t, err)
	assert.True(t, dir.IsDir())
	assert.True(t, dir.Mode.IsDir())

	_, err = r.Find("missing.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = r.Open("missing.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestReader_EntryReaderCounts(t *testing.T) {
	content := strings.Repeat("count the bytes ", 1000)
	data := writeArchive(t, []testFile{{name: "c.txt", method: Deflated, content: content}})

	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	e := r.Entries()[0]

	er, err := r.OpenEntry(e)
	require.NoError(t, err)
	defer er.Close()

	got, err := io.ReadAll(er)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
	assert.Equal(t, int64(e.CompressedSize), er.CompressedCount())
	assert.Equal(t, int64(len(content)), er.UncompressedCount())
}

func TestReader_OpenRaw(t *testing.T) {
	data := writeArchive(t, []testFile{
		{name: "first.txt", method: Stored, content: "first"},
		{name: "second.txt", method: Stored, content: "second"},
	})

	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	for _, e := range r.Entries() {
		raw, err := r.OpenRaw(e)
		require.NoError(t, err)
		got, err := io.ReadAll(raw)
		require.NoError(t, err)
		assert.Equal(t, strings.TrimSuffix(e.Name, ".txt"), string(got))
	}
}

func TestReader_CorruptPayload(t *testing.T) {
	data := writeArchive(t, []testFile{{name: "data.bin", method: Stored, content: "hello world"}})
	data[internal.LocalFileHeaderLen+len("data.bin")] ^= 0xff

	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	_, err = r.ReadAll("data.bin")
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestEntryReader_Verifies(t *testing.T) {
	data := []byte("hello world")
	crc := crc32.ChecksumIEEE(data)

	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{name: "valid", payload: data},
		{name: "wrong data", payload: []byte("wrong data!"), wantErr: ErrChecksum},
		{name: "too short", payload: data[:5], wantErr: ErrSizeMismatch},
		{name: "too long", payload: append(append([]byte{}, data...), '!'), wantErr: ErrSizeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inflater, err := NewInflaterStream(bytes.NewReader(tt.payload), Stored, nil)
			require.NoError(t, err)
			er := &EntryReader{
				inflater: inflater,
				hash:     crc32.NewIEEE(),
				want:     crc,
				size:     uint64(len(data)),
			}
			defer er.Close()

			_, err = io.Copy(io.Discard, er)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func archiveWithUnicodePath(t *testing.T, raw string, field *UnicodePathField) []byte {
	t.Helper()
	extra, err := MergeCentralDirectoryData([]ExtraField{field})
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: raw, NonUTF8: true, Method: zip.Store, Extra: extra})
	require.NoError(t, err)
	_, err = io.WriteString(w, "payload")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReader_UnicodePathField(t *testing.T) {
	const raw = "caf\x82.txt"

	tests := []struct {
		name  string
		field *UnicodePathField
		want  string
	}{
		{
			name:  "matching field",
			field: NewUnicodePathField("кафе.txt", []byte(raw)),
			want:  "кафе.txt",
		},
		{
			name:  "stale field",
			field: NewUnicodePathField("кафе.txt", []byte("renamed.txt")),
			want:  "café.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := archiveWithUnicodePath(t, raw, tt.field)
			r, err := NewReader(bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			require.Len(t, r.Entries(), 1)
			assert.Equal(t, tt.want, r.Entries()[0].Name)

			got, err := r.ReadAll(tt.want)
			require.NoError(t, err)
			assert.Equal(t, "payload", string(got))
		})
	}
}

func TestReader_DecodeText(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		flags uint16
		want  string
	}{
		{name: "ascii", raw: "plain.txt", want: "plain.txt"},
		{name: "utf-8 flag", raw: "naïve.txt", flags: flagUTF8, want: "naïve.txt"},
		{name: "cp437", raw: "na\x8bve.txt", want: "naïve.txt"},
		{name: "cp437 box drawing", raw: "\xc9\xcd\xbb", want: "╔═╗"},
	}

	r := new(Reader)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.decodeText(tt.raw, tt.flags))
		})
	}
}

func TestReader_InvalidArchives(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "text", data: []byte("this is not a zip archive at all")},
		{name: "zeros", data: make([]byte, 4096)},
		{name: "directory outside archive", data: makeEOCD(1, 46, 1000, "")},
		{name: "zip64 sentinel without locator", data: makeEOCD(math.MaxUint16, 0, 0, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data), int64(len(tt.data)))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestReader_Canceled(t *testing.T) {
	data := writeArchive(t, []testFile{{name: "a", method: Stored}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReaderContext(ctx, bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, context.Canceled)
}

func storedLocalHeader(name, content string) []byte {
	h := internal.LocalFileHeader{
		VersionNeededToExtract: 10,
		CompressionMethod:      uint16(Stored),
		CRC32:                  crc32.ChecksumIEEE([]byte(content)),
		CompressedSize:         uint32(len(content)),
		UncompressedSize:       uint32(len(content)),
		Filename:               name,
	}
	return append(h.Encode(), content...)
}

func storedCentralEntry(name, content string, disk uint16, offset uint32) []byte {
	return internal.CentralDirectory{
		VersionMadeBy:          uint16(sys.HostSystemUNIX)<<8 | LatestZipVersion,
		VersionNeededToExtract: 10,
		CompressionMethod:      uint16(Stored),
		CRC32:                  crc32.ChecksumIEEE([]byte(content)),
		CompressedSize:         uint32(len(content)),
		UncompressedSize:       uint32(len(content)),
		DiskNumberStart:        disk,
		ExternalFileAttributes: uint32(0o644) << 16,
		LocalHeaderOffset:      offset,
		Filename:               name,
	}.Encode()
}

func TestOpenReader_SplitArchive(t *testing.T) {
	// Volume 1 holds the split signature and a.txt; volume 2 holds b.txt
	// and the central directory.
	seg0 := binary.LittleEndian.AppendUint32(nil, SplitSignature)
	seg0 = append(seg0, storedLocalHeader("a.txt", "alpha")...)

	seg1 := storedLocalHeader("b.txt", "beta")
	cdOffset := len(seg1)
	seg1 = append(seg1, storedCentralEntry("a.txt", "alpha", 0, 4)...)
	seg1 = append(seg1, storedCentralEntry("b.txt", "beta", 1, 0)...)
	end := makeEOCD(2, uint32(len(seg1)-cdOffset), uint32(cdOffset), "split")
	binary.LittleEndian.PutUint16(end[4:6], 1) // this disk
	binary.LittleEndian.PutUint16(end[6:8], 1) // disk holding the central directory
	seg1 = append(seg1, end...)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive.z01"), seg0, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive.zip"), seg1, 0o644))

	r, err := OpenReader(filepath.Join(dir, "archive.zip"))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "split", r.Comment())
	require.Len(t, r.Entries(), 2)
	assert.Equal(t, int64(4), r.Entries()[0].HeaderOffset())
	assert.Equal(t, int64(len(seg0)), r.Entries()[1].HeaderOffset())

	for name, want := range map[string]string{"a.txt": "alpha", "b.txt": "beta"} {
		got, err := r.ReadAll(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got))
	}
}

func TestOpenReader_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.zip")
	data := writeArchive(t, []testFile{{name: "only.txt", method: Deflated, content: "one volume"}})
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := OpenReader(path)
	require.NoError(t, err)
	got, err := r.ReadAll("only.txt")
	require.NoError(t, err)
	assert.Equal(t, "one volume", string(got))
	require.NoError(t, r.Close())
}
