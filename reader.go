// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log/slog"
	"math"

	"github.com/lemon4ksan/zipkit/internal"
	"github.com/lemon4ksan/zipkit/internal/sys"
	"golang.org/x/text/encoding/charmap"
)

type readerConfig struct {
	registry *Registry
	logger   *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerConfig)

// WithReaderRegistry selects the codecs used to decode entries.
func WithReaderRegistry(r *Registry) ReaderOption {
	return func(c *readerConfig) { c.registry = r }
}

// WithReaderLogger sets the logger for archive scanning.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(c *readerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// segmentLocator translates a (disk, offset) pair of a split archive into
// an offset of the concatenated stream.
type segmentLocator interface {
	SegmentOffset(segment int, local int64) (int64, error)
}

// Reader reads the entries of a ZIP archive.
type Reader struct {
	src      io.ReaderAt
	size     int64
	registry *Registry
	logger   *slog.Logger
	segments segmentLocator
	closer   io.Closer

	comment string
	entries []*Entry
}

// OpenReader opens the archive at path. Split archives are recognized by
// their .z01, .z02, ... volumes next to path.
func OpenReader(path string, opts ...ReaderOption) (*Reader, error) {
	ch, err := OpenSplitArchive(path)
	if err != nil {
		return nil, err
	}
	size, err := ch.Size()
	if err != nil {
		ch.Close()
		return nil, err
	}

	r, err := NewReader(ch, size, opts...)
	if err != nil {
		ch.Close()
		return nil, err
	}
	r.closer = ch
	return r, nil
}

// NewReader reads the central directory of the size-byte archive in src.
// If src can translate split archive offsets (as a SplitChannel does), disk
// numbers in the archive are honored.
func NewReader(src io.ReaderAt, size int64, opts ...ReaderOption) (*Reader, error) {
	return NewReaderContext(context.Background(), src, size, opts...)
}

// NewReaderContext is like NewReader but stops scanning when ctx is done.
func NewReaderContext(ctx context.Context, src io.ReaderAt, size int64, opts ...ReaderOption) (*Reader, error) {
	cfg := readerConfig{logger: discardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = DefaultRegistry()
	}

	r := &Reader{
		src:      src,
		size:     size,
		registry: cfg.registry,
		logger:   cfg.logger,
	}
	if loc, ok := src.(segmentLocator); ok {
		r.segments = loc
	}

	if err := r.readDirectory(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Comment returns the archive comment.
func (r *Reader) Comment() string { return r.comment }

// Entries returns the entries in central directory order.
func (r *Reader) Entries() []*Entry { return r.entries }

// Find returns the first entry called name.
func (r *Reader) Find(name string) (*Entry, error) {
	for _, e := range r.entries {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

// Open opens the entry called name for reading.
func (r *Reader) Open(name string) (*EntryReader, error) {
	e, err := r.Find(name)
	if err != nil {
		return nil, err
	}
	return r.OpenEntry(e)
}

// OpenEntry returns a reader decoding the entry's payload. The CRC32 and
// size are checked when the payload has been read to the end.
func (r *Reader) OpenEntry(e *Entry) (*EntryReader, error) {
	data, err := r.OpenRaw(e)
	if err != nil {
		return nil, err
	}
	inflater, err := NewInflaterStream(data, e.Method, r.registry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	return &EntryReader{
		inflater: inflater,
		hash:     crc32.NewIEEE(),
		want:     e.CRC32,
		size:     e.UncompressedSize,
	}, nil
}

// OpenRaw returns the entry's payload as stored, without decoding it.
func (r *Reader) OpenRaw(e *Entry) (*io.SectionReader, error) {
	hr := io.NewSectionReader(r.src, e.headerOffset, r.size-e.headerOffset)
	if !verifySignature(hr, internal.LocalFileHeaderSignature) {
		return nil, fmt.Errorf("%w: %s: expected local file header signature", ErrFormat, e.Name)
	}
	local, err := internal.ReadLocalFileHeader(hr)
	if err != nil {
		return nil, fmt.Errorf("read local header: %w", err)
	}

	dataOffset := e.headerOffset + internal.LocalFileHeaderLen +
		int64(len(local.Filename)) + int64(len(local.ExtraField))
	if dataOffset+int64(e.CompressedSize) > r.size {
		return nil, fmt.Errorf("%w: %s: data extends past end of archive", ErrFormat, e.Name)
	}
	return io.NewSectionReader(r.src, dataOffset, int64(e.CompressedSize)), nil
}

// Close closes the archive file if the reader was created by OpenReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Reader) readDirectory(ctx context.Context) error {
	end, endOffset, err := r.findEndOfCentralDir(ctx)
	if err != nil {
		return err
	}
	r.comment = r.decodeText(end.Comment, 0)

	entriesNum := uint64(end.TotalNumberOfEntries)
	cdSize := uint64(end.CentralDirSize)
	cdOffset := uint64(end.CentralDirOffset)
	cdDisk := uint32(end.DiskNumWithTheStartOfCentralDir)

	zip64End, found, err := r.findZip64EndOfCentralDir(endOffset)
	if err != nil {
		return err
	}
	needsZip64 := end.TotalNumberOfEntries == math.MaxUint16 ||
		end.CentralDirSize == math.MaxUint32 ||
		end.CentralDirOffset == math.MaxUint32 ||
		end.DiskNumWithTheStartOfCentralDir == math.MaxUint16
	switch {
	case found:
		entriesNum = zip64End.TotalNumberOfEntries
		cdSize = zip64End.CentralDirSize
		cdOffset = zip64End.CentralDirOffset
		cdDisk = zip64End.DiskNumWithTheStartOfCentralDir
	case needsZip64:
		return fmt.Errorf("%w: zip64 end of central directory locator not found", ErrFormat)
	}

	start, err := r.globalOffset(cdDisk, cdOffset)
	if err != nil {
		return err
	}
	if start < 0 || start > r.size || cdSize > uint64(r.size-start) {
		return fmt.Errorf("%w: central directory outside archive", ErrFormat)
	}

	r.logger.Debug("found central directory",
		slog.Uint64("entries", entriesNum),
		slog.Int64("offset", start),
		slog.Uint64("size", cdSize),
		slog.Bool("zip64", found),
	)

	return r.readCentralDir(ctx, start, int64(cdSize), entriesNum)
}

// findEndOfCentralDir scans backwards for the end of central directory
// record and returns it with its offset.
func (r *Reader) findEndOfCentralDir(ctx context.Context) (internal.EndOfCentralDirectory, int64, error) {
	var end internal.EndOfCentralDirectory

	if r.size < internal.EndOfCentralDirLen {
		return end, 0, fmt.Errorf("%w: file too small", ErrFormat)
	}

	const bufSize = 1024
	buf := make([]byte, bufSize)
	searchLimit := min(int64(math.MaxUint16)+internal.EndOfCentralDirLen, r.size)

	// Windows overlap by 3 bytes so a signature crossing a boundary is seen.
	for searched := int64(0); searched < searchLimit; {
		if err := ctx.Err(); err != nil {
			return end, 0, err
		}

		readSize := min(bufSize, searchLimit-searched)
		readPos := r.size - searched - readSize

		n, err := r.src.ReadAt(buf[:readSize], readPos)
		if err != nil && err != io.EOF {
			return end, 0, fmt.Errorf("read at %d: %w", readPos, err)
		}

		for p := n - 4; p >= 0; p-- {
			if binary.LittleEndian.Uint32(buf[p:p+4]) != internal.EndOfCentralDirSignature {
				continue
			}
			recordOffset := readPos + int64(p)
			if recordOffset+internal.EndOfCentralDirLen > r.size {
				continue
			}
			sr := io.NewSectionReader(r.src, recordOffset+4, r.size-(recordOffset+4))
			end, err := internal.ReadEndOfCentralDir(sr)
			if err != nil || recordOffset+internal.EndOfCentralDirLen+int64(end.CommentLength) > r.size {
				// Signature bytes inside a comment.
				continue
			}
			return end, recordOffset, nil
		}

		if readSize < 4 {
			break
		}
		searched += readSize - 3
	}

	return end, 0, fmt.Errorf("%w: no end of central directory signature found", ErrFormat)
}

// findZip64EndOfCentralDir reads the ZIP64 record through the locator that
// precedes the end of central directory record at endOffset. It reports
// false when there is no locator.
func (r *Reader) findZip64EndOfCentralDir(endOffset int64) (internal.Zip64EndOfCentralDirectory, bool, error) {
	var zip64End internal.Zip64EndOfCentralDirectory

	locatorOffset := endOffset - internal.Zip64LocatorLen
	if locatorOffset < 0 {
		return zip64End, false, nil
	}
	lr := io.NewSectionReader(r.src, locatorOffset, internal.Zip64LocatorLen)
	if !verifySignature(lr, internal.Zip64EndOfCentralDirLocatorSignature) {
		return zip64End, false, nil
	}

	locator, err := internal.ReadZip64EndOfCentralDirLocator(lr)
	if err != nil {
		return zip64End, false, fmt.Errorf("read zip64 end of central directory locator: %w", err)
	}

	recordOffset, err := r.globalOffset(locator.EndOfCentralDirStartDiskNum, locator.Zip64EndOfCentralDirOffset)
	if err != nil {
		return zip64End, false, err
	}
	if recordOffset < 0 || recordOffset+internal.Zip64EndOfCentralDirLen > r.size {
		return zip64End, false, fmt.Errorf("%w: invalid zip64 end of central directory offset", ErrFormat)
	}

	zr := io.NewSectionReader(r.src, recordOffset, internal.Zip64EndOfCentralDirLen)
	if !verifySignature(zr, internal.Zip64EndOfCentralDirSignature) {
		return zip64End, false, fmt.Errorf("%w: expected zip64 end of central directory signature", ErrFormat)
	}
	zip64End, err = internal.ReadZip64EndOfCentralDir(zr)
	if err != nil {
		return zip64End, false, fmt.Errorf("read zip64 end of central directory: %w", err)
	}
	return zip64End, true, nil
}

func (r *Reader) readCentralDir(ctx context.Context, offset, size int64, entries uint64) error {
	// The entry count comes from the archive; don't trust it for allocation.
	r.entries = make([]*Entry, 0, min(entries, uint64(size/internal.CentralDirectoryLen)))

	cdReader := io.NewSectionReader(r.src, offset, size)
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !verifySignature(cdReader, internal.CentralDirectorySignature) {
			return fmt.Errorf("%w: expected central directory signature at entry %d", ErrFormat, i)
		}
		cd, err := internal.ReadCentralDirEntry(cdReader)
		if err != nil {
			return fmt.Errorf("decode central dir entry: %w", err)
		}

		e, err := r.newEntry(cd)
		if err != nil {
			return err
		}
		r.entries = append(r.entries, e)
	}
	return nil
}

// newEntry builds an Entry from a central directory header, resolving ZIP64
// values, Unicode names and NTFS times from its extra fields.
func (r *Reader) newEntry(cd internal.CentralDirectory) (*Entry, error) {
	e := &Entry{
		Method:           CompressionMethod(cd.CompressionMethod),
		CRC32:            cd.CRC32,
		CompressedSize:   uint64(cd.CompressedSize),
		UncompressedSize: uint64(cd.UncompressedSize),
		Modified:         msDosToTime(cd.LastModFileDate, cd.LastModFileTime),
		hostSystem:       sys.HostSystem(cd.VersionMadeBy >> 8),
		externalAttr:     cd.ExternalFileAttributes,
	}
	e.Name = r.decodeText(cd.Filename, cd.GeneralPurposeBitFlag)
	e.Comment = r.decodeText(cd.Comment, cd.GeneralPurposeBitFlag)

	fields, err := ParseExtraFields(cd.ExtraField, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	e.Extra = fields

	headerOffset := uint64(cd.LocalHeaderOffset)
	disk := uint32(cd.DiskNumberStart)

	if z, ok := findExtraField(fields, Zip64ExtraID).(*Zip64ExtendedInfo); ok {
		presence := PresenceFromHeader(cd.UncompressedSize, cd.CompressedSize, cd.LocalHeaderOffset, cd.DiskNumberStart)
		if err := z.Reparse(presence); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		if v, ok := z.Size(); ok {
			e.UncompressedSize = v
		}
		if v, ok := z.CompressedSize(); ok {
			e.CompressedSize = v
		}
		if v, ok := z.HeaderOffset(); ok {
			headerOffset = v
		}
		if v, ok := z.DiskStart(); ok {
			disk = v
		}
	}

	if f, ok := findExtraField(fields, UnicodePathExtraID).(*UnicodePathField); ok && f.Matches([]byte(cd.Filename)) {
		e.Name = f.Text()
	}
	if f, ok := findExtraField(fields, UnicodeCommentExtraID).(*UnicodeCommentField); ok && f.Matches([]byte(cd.Comment)) {
		e.Comment = f.Text()
	}
	if f, ok := findExtraField(fields, NTFSExtraID).(*NTFSTimestamps); ok && !f.Modified.IsZero() {
		e.Modified = f.Modified
	}

	e.Mode = parseFileExternalAttributes(e.hostSystem, e.externalAttr, e.Name)

	if e.headerOffset, err = r.globalOffset(disk, headerOffset); err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	return e, nil
}

// globalOffset maps an offset on the given disk to an offset in src.
func (r *Reader) globalOffset(disk uint32, offset uint64) (int64, error) {
	if offset > math.MaxInt64 {
		return 0, fmt.Errorf("%w: offset %d out of range", ErrFormat, offset)
	}
	if r.segments == nil {
		if disk != 0 {
			return 0, fmt.Errorf("%w: entry on disk %d of a single volume archive", ErrFormat, disk)
		}
		return int64(offset), nil
	}
	global, err := r.segments.SegmentOffset(int(disk), int64(offset))
	if err != nil {
		return 0, fmt.Errorf("%w: disk %d offset %d: %w", ErrFormat, disk, offset, err)
	}
	return global, nil
}

// decodeText returns header text as UTF-8. Text without the UTF-8 flag
// that is not plain ASCII is decoded as code page 437.
func (r *Reader) decodeText(s string, flags uint16) string {
	if flags&flagUTF8 != 0 || isASCII(s) {
		return s
	}
	decoded, err := charmap.CodePage437.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}

// verifySignature checks whether the next 4 bytes match the given signature.
func verifySignature(r io.Reader, s uint32) bool {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false
	}
	return binary.LittleEndian.Uint32(buf[:]) == s
}

// EntryReader decodes one entry and verifies its CRC32 and size once the
// payload has been read to the end.
type EntryReader struct {
	inflater *InflaterStream
	hash     hash.Hash32
	want     uint32
	read     uint64
	size     uint64
}

func (er *EntryReader) Read(p []byte) (int, error) {
	n, err := er.inflater.Read(p)
	if n > 0 {
		er.read += uint64(n)
		if er.read > er.size {
			return n, fmt.Errorf("%w: read more than %d bytes", ErrSizeMismatch, er.size)
		}
		er.hash.Write(p[:n])
	}
	if err == io.EOF {
		if er.read != er.size {
			return n, fmt.Errorf("%w: read %d, want %d", ErrSizeMismatch, er.read, er.size)
		}
		if got := er.hash.Sum32(); got != er.want {
			return n, fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, got, er.want)
		}
	}
	return n, err
}

// CompressedCount returns the number of stored bytes consumed so far.
func (er *EntryReader) CompressedCount() int64 { return er.inflater.CompressedCount() }

// UncompressedCount returns the number of decoded bytes delivered so far.
func (er *EntryReader) UncompressedCount() int64 { return er.inflater.UncompressedCount() }

func (er *EntryReader) Close() error { return er.inflater.Close() }

// ReadAll decodes the whole entry called name.
func (r *Reader) ReadAll(name string) ([]byte, error) {
	rc, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

