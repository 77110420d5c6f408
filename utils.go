// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// byteCountWriter counts bytes written to a writer.
type byteCountWriter struct {
	dest         io.Writer
	bytesWritten int64
}

func (w *byteCountWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	w.bytesWritten += int64(n)
	return n, err
}

// contextReader wraps an io.Reader to make it respect context cancellation.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (n int, err error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// cleanupTempFile safely cleans up a temporary file
func cleanupTempFile(tmpFile *os.File) error {
	if tmpFile == nil {
		return nil
	}
	err := tmpFile.Close()
	if rmErr := os.Remove(tmpFile.Name()); err == nil && !os.IsNotExist(rmErr) {
		err = rmErr
	}
	return err
}

// Time conversion functions
func timeToMsDos(t time.Time) (dosDate uint16, dosTime uint16) {
	year := min(max(t.Year()-1980, 0), 127)
	month := uint16(t.Month())
	day := uint16(t.Day())
	hour := uint16(t.Hour())
	minute := uint16(t.Minute())
	second := uint16(t.Second())

	dosDate = uint16(year)<<9 | month<<5 | day
	dosTime = hour<<11 | minute<<5 | second/2
	return dosDate, dosTime
}

func msDosToTime(dosDate uint16, dosTime uint16) time.Time {
	day := dosDate & 0x1F
	month := (dosDate >> 5) & 0x0F
	year := int((dosDate>>9)&0x7F) + 1980
	second := (dosTime & 0x1F) * 2
	minute := (dosTime >> 5) & 0x3F
	hour := (dosTime >> 11) & 0x1F

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}

	return time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
}

// 116444736000000000 is the number of 100ns intervals between
// Jan 1, 1601 (UTC) and Jan 1, 1970 (UTC).
const filetimeEpochOffset = 116444736000000000

// winFiletimeToTime converts Windows FILETIME (100ns ticks since 1601) to Go time.Time.
func winFiletimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}

	const ticksPerSecond = 10000000

	// Handle dates before 1970
	if ft < filetimeEpochOffset {
		diff := int64(filetimeEpochOffset - ft)
		seconds := -(diff / ticksPerSecond)
		nanos := -(diff % ticksPerSecond) * 100
		if nanos < 0 {
			seconds--
			nanos += 1000000000
		}
		return time.Unix(seconds, nanos).UTC()
	}

	diff := ft - filetimeEpochOffset
	seconds := int64(diff / ticksPerSecond)
	nanos := int64(diff%ticksPerSecond) * 100

	return time.Unix(seconds, nanos).UTC()
}

// timeToWinFiletime is the inverse of winFiletimeToTime. The zero time maps to 0.
func timeToWinFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + filetimeEpochOffset)
}
