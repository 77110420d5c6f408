// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	ntfsReservedLen  = 4
	ntfsTimesTag     = 0x0001
	ntfsTimesSize    = 24
	ntfsAttrHeadLen  = 4
	ntfsEncodedTotal = ntfsReservedLen + ntfsAttrHeadLen + ntfsTimesSize
)

// NTFSTimestamps is the NTFS extra field (0x000a) holding modification,
// access and creation times with 100ns precision. Zero times are stored
// as 0. Both encodings are identical.
type NTFSTimestamps struct {
	Modified time.Time
	Accessed time.Time
	Created  time.Time
}

func (f *NTFSTimestamps) HeaderID() uint16 { return NTFSExtraID }

func (f *NTFSTimestamps) LocalFileDataLength() uint16 { return ntfsEncodedTotal }

// LocalFileData returns the reserved word followed by the single
// timestamp attribute.
func (f *NTFSTimestamps) LocalFileData() ([]byte, error) {
	data := make([]byte, ntfsEncodedTotal)
	binary.LittleEndian.PutUint16(data[4:6], ntfsTimesTag)
	binary.LittleEndian.PutUint16(data[6:8], ntfsTimesSize)
	binary.LittleEndian.PutUint64(data[8:16], timeToWinFiletime(f.Modified))
	binary.LittleEndian.PutUint64(data[16:24], timeToWinFiletime(f.Accessed))
	binary.LittleEndian.PutUint64(data[24:32], timeToWinFiletime(f.Created))
	return data, nil
}

func (f *NTFSTimestamps) CentralDirectoryLength() uint16 { return ntfsEncodedTotal }

func (f *NTFSTimestamps) CentralDirectoryData() ([]byte, error) { return f.LocalFileData() }

// ParseLocalFileData walks the attribute list and decodes the timestamp
// attribute. Other attributes are skipped.
func (f *NTFSTimestamps) ParseLocalFileData(data []byte) error {
	if len(data) < ntfsReservedLen {
		return fmt.Errorf("%w: ntfs field needs at least %d bytes, got %d", ErrCorruptExtraField, ntfsReservedLen, len(data))
	}

	for rest := data[ntfsReservedLen:]; len(rest) > 0; {
		if len(rest) < ntfsAttrHeadLen {
			return fmt.Errorf("%w: truncated ntfs attribute header", ErrCorruptExtraField)
		}
		tag := binary.LittleEndian.Uint16(rest[0:2])
		size := int(binary.LittleEndian.Uint16(rest[2:4]))
		rest = rest[ntfsAttrHeadLen:]
		if size > len(rest) {
			return fmt.Errorf("%w: ntfs attribute 0x%04x overruns the field", ErrCorruptExtraField, tag)
		}
		if tag == ntfsTimesTag && size >= ntfsTimesSize {
			f.Modified = winFiletimeToTime(binary.LittleEndian.Uint64(rest[0:8]))
			f.Accessed = winFiletimeToTime(binary.LittleEndian.Uint64(rest[8:16]))
			f.Created = winFiletimeToTime(binary.LittleEndian.Uint64(rest[16:24]))
		}
		rest = rest[size:]
	}
	return nil
}

func (f *NTFSTimestamps) ParseCentralDirectoryData(data []byte) error {
	return f.ParseLocalFileData(data)
}
