// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lemon4ksan/zipkit/internal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

type writerConfig struct {
	registry       *Registry
	level          int
	logger         *slog.Logger
	legacyNames    bool
	comment        string
	spillThreshold int64
	spillDir       string
}

// WriterOption configures a Writer.
type WriterOption func(*writerConfig)

// WithWriterRegistry selects the codecs AddEntry compresses with.
func WithWriterRegistry(r *Registry) WriterOption {
	return func(c *writerConfig) { c.registry = r }
}

// WithWriterLevel sets the compression level used by AddEntry.
func WithWriterLevel(level int) WriterOption {
	return func(c *writerConfig) { c.level = level }
}

// WithWriterLogger sets the logger for written entries.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(c *writerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLegacyNames stores non-ASCII names and comments in code page 437,
// with the exact UTF-8 text in Unicode path and comment extra fields,
// instead of setting the UTF-8 flag.
func WithLegacyNames() WriterOption {
	return func(c *writerConfig) { c.legacyNames = true }
}

// WithComment sets the archive comment.
func WithComment(comment string) WriterOption {
	return func(c *writerConfig) { c.comment = comment }
}

// Writer writes a ZIP archive to an io.Writer. Entries are written in the
// order they are added; the central directory is written by Close.
// Methods are safe for concurrent use.
type Writer struct {
	mu          sync.Mutex
	dest        io.Writer
	offset      int64         // Bytes written to dest so far
	centralDir  *bytes.Buffer // Central directory accumulated until Close
	entriesNum  uint64
	comment     string
	legacyNames bool
	compressor  *StreamCompressor
	spill       *spillBuffers
	logger      *slog.Logger
	err         error // Sticky write error
	closed      bool
}

// NewWriter returns a Writer writing an archive to w.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	cfg := writerConfig{
		level:          DeflateNormal,
		logger:         discardLogger(),
		spillThreshold: defaultSpillThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Writer{
		dest:        w,
		centralDir:  new(bytes.Buffer),
		comment:     cfg.comment,
		legacyNames: cfg.legacyNames,
		compressor:  NewStreamCompressor(cfg.registry, cfg.level),
		spill:       newSpillBuffers(cfg.spillThreshold, cfg.spillDir),
		logger:      cfg.logger,
	}
}

// SetComment sets the archive comment written by Close.
func (w *Writer) SetComment(comment string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.comment = comment
}

// AddEntry compresses src with the entry's method and writes the entry.
// The entry's CRC32 and sizes are replaced with the measured values.
func (w *Writer) AddEntry(e *Entry, src io.Reader) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWriterClosed
	}

	if e.IsDir() {
		e.apply(Stored, Measurement{})
		return w.AddRawEntry(e, strings.NewReader(""))
	}

	hint := int64(-1)
	if e.UncompressedSize > 0 {
		hint = int64(e.UncompressedSize)
	}
	buf, err := w.spill.get(hint)
	if err != nil {
		return err
	}
	defer w.spill.put(buf)

	m, err := w.compressor.Compress(src, e.Method, buf)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}
	e.apply(e.Method, m)

	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek buffer: %w", err)
	}
	return w.AddRawEntry(e, buf)
}

// AddRawEntry writes an entry whose payload is already compressed with
// e.Method. Exactly e.CompressedSize bytes are copied from data; a shorter
// payload is an error.
func (w *Writer) AddRawEntry(e *Entry, data io.Reader) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}

	h, err := w.newHeaders(e, w.offset)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}
	local, err := h.localHeader()
	if err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}
	central, err := h.centralDirEntry()
	if err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}

	headerOffset := w.offset
	if err := w.write(local.Encode()); err != nil {
		return fmt.Errorf("write local header: %w", err)
	}

	n, err := io.CopyN(w.dest, data, int64(e.CompressedSize))
	w.offset += n
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		w.err = fmt.Errorf("copy %s: wrote %d of %d bytes: %w", e.Name, n, e.CompressedSize, err)
		return w.err
	}

	w.centralDir.Write(central.Encode())
	w.entriesNum++
	e.headerOffset = headerOffset

	w.logger.Debug("wrote entry",
		slog.String("name", e.Name),
		slog.String("method", e.Method.String()),
		slog.Uint64("size", e.UncompressedSize),
		slog.Uint64("compressed", e.CompressedSize),
		slog.Int64("offset", headerOffset),
	)
	return nil
}

func (w *Writer) write(p []byte) error {
	n, err := w.dest.Write(p)
	w.offset += int64(n)
	if err != nil {
		w.err = err
	}
	return err
}

// Close writes the central directory and the end records. It does not close
// the underlying writer. Subsequent calls return nil.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	defer w.compressor.Close()

	if w.err != nil {
		return w.err
	}
	if len(w.comment) > math.MaxUint16 {
		return ErrCommentTooLong
	}

	cdOffset := uint64(w.offset)
	cdSize := uint64(w.centralDir.Len())
	if err := w.write(w.centralDir.Bytes()); err != nil {
		return fmt.Errorf("write central directory: %w", err)
	}

	if w.entriesNum >= math.MaxUint16 || cdSize >= math.MaxUint32 || cdOffset >= math.MaxUint32 {
		if err := w.writeZip64EndHeaders(cdSize, cdOffset); err != nil {
			return err
		}
	}

	end := internal.EncodeEndOfCentralDirRecord(w.entriesNum, cdSize, cdOffset, w.comment)
	if err := w.write(end); err != nil {
		return fmt.Errorf("write end of central directory: %w", err)
	}

	w.logger.Debug("archive closed",
		slog.Uint64("entries", w.entriesNum),
		slog.Int64("size", w.offset),
	)
	return nil
}

// writeZip64EndHeaders writes ZIP64 end of central directory record and locator.
func (w *Writer) writeZip64EndHeaders(cdSize, cdOffset uint64) error {
	recordOffset := uint64(w.offset)

	record := internal.EncodeZip64EndOfCentralDirRecord(versionMadeBy(), w.entriesNum, cdSize, cdOffset)
	if err := w.write(record); err != nil {
		return fmt.Errorf("write zip64 end of central directory: %w", err)
	}

	locator := internal.EncodeZip64EndOfCentralDirLocator(recordOffset)
	if err := w.write(locator); err != nil {
		return fmt.Errorf("write zip64 end of central directory locator: %w", err)
	}
	return nil
}

// entryHeaders holds everything shared by an entry's local and central headers.
type entryHeaders struct {
	entry   *Entry
	offset  int64
	name    []byte
	comment []byte
	flags   uint16
	extra   []ExtraField // Caller fields minus the ones the writer manages
	unicode []ExtraField // Unicode path and comment fields, legacy mode only
	zip64   bool
}

func (w *Writer) newHeaders(e *Entry, offset int64) (*entryHeaders, error) {
	h := &entryHeaders{entry: e, offset: offset, zip64: e.requiresZip64(offset)}

	h.extra = e.Extra
	for _, id := range []uint16{Zip64ExtraID, UnicodePathExtraID, UnicodeCommentExtraID} {
		h.extra = withoutExtraField(h.extra, id)
	}

	var nameNeedsUTF8, commentNeedsUTF8 bool
	h.name, nameNeedsUTF8 = w.encodeText(e.Name)
	h.comment, commentNeedsUTF8 = w.encodeText(e.Comment)

	if len(h.name) > math.MaxUint16 {
		return nil, ErrFilenameTooLong
	}
	if len(h.comment) > math.MaxUint16 {
		return nil, ErrCommentTooLong
	}

	switch {
	case w.legacyNames:
		if nameNeedsUTF8 {
			h.unicode = append(h.unicode, NewUnicodePathField(e.Name, h.name))
		}
		if commentNeedsUTF8 {
			h.unicode = append(h.unicode, NewUnicodeCommentField(e.Comment, h.comment))
		}
	case nameNeedsUTF8 || commentNeedsUTF8:
		h.flags |= flagUTF8
	}
	return h, nil
}

// encodeText returns the header bytes for s and whether s is outside ASCII.
// In legacy mode such text is encoded to code page 437, with unsupported
// characters replaced.
func (w *Writer) encodeText(s string) ([]byte, bool) {
	if isASCII(s) {
		return []byte(s), false
	}
	if !w.legacyNames || !utf8.ValidString(s) {
		return []byte(s), true
	}
	b, err := encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s), true
	}
	return b, true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (h *entryHeaders) localHeader() (internal.LocalFileHeader, error) {
	e := h.entry
	dosDate, dosTime := timeToMsDos(e.Modified)

	var fields []ExtraField
	size, compressed := uint32(e.UncompressedSize), uint32(e.CompressedSize)
	if e.UncompressedSize >= math.MaxUint32 || e.CompressedSize >= math.MaxUint32 {
		// A local ZIP64 record always carries both sizes.
		fields = append(fields, NewZip64ExtendedInfo(e.UncompressedSize, e.CompressedSize))
		size, compressed = math.MaxUint32, math.MaxUint32
	}
	fields = append(fields, h.extra...)
	fields = append(fields, h.unicode...)

	extra, err := MergeLocalFileData(fields)
	if err != nil {
		return internal.LocalFileHeader{}, err
	}

	return internal.LocalFileHeader{
		VersionNeededToExtract: e.versionNeededToExtract(h.zip64),
		GeneralPurposeBitFlag:  h.flags,
		CompressionMethod:      uint16(e.Method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  e.CRC32,
		CompressedSize:         compressed,
		UncompressedSize:       size,
		Filename:               string(h.name),
		ExtraField:             extra,
	}, nil
}

func (h *entryHeaders) centralDirEntry() (internal.CentralDirectory, error) {
	e := h.entry
	dosDate, dosTime := timeToMsDos(e.Modified)

	size, compressed, offset := uint32(e.UncompressedSize), uint32(e.CompressedSize), uint32(h.offset)
	var fields []ExtraField
	if h.zip64 {
		// Only the values that overflow go into the central ZIP64 record.
		z := new(Zip64ExtendedInfo)
		if e.UncompressedSize >= math.MaxUint32 {
			z.SetSize(e.UncompressedSize)
			size = math.MaxUint32
		}
		if e.CompressedSize >= math.MaxUint32 {
			z.SetCompressedSize(e.CompressedSize)
			compressed = math.MaxUint32
		}
		if h.offset >= math.MaxUint32 {
			z.SetHeaderOffset(uint64(h.offset))
			offset = math.MaxUint32
		}
		fields = append(fields, z)
	}
	fields = append(fields, h.extra...)
	fields = append(fields, h.unicode...)

	extra, err := MergeCentralDirectoryData(fields)
	if err != nil {
		return internal.CentralDirectory{}, err
	}

	return internal.CentralDirectory{
		VersionMadeBy:          versionMadeBy(),
		VersionNeededToExtract: e.versionNeededToExtract(h.zip64),
		GeneralPurposeBitFlag:  h.flags,
		CompressionMethod:      uint16(e.Method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  e.CRC32,
		CompressedSize:         compressed,
		UncompressedSize:       size,
		ExternalFileAttributes: e.externalFileAttributes(),
		LocalHeaderOffset:      offset,
		Filename:               string(h.name),
		ExtraField:             extra,
		Comment:                string(h.comment),
	}, nil
}
