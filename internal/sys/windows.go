//go:build windows

// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

import (
	"os"
	"syscall"
	"time"
)

func GetFileTimes(stat os.FileInfo) FileTimes {
	times := FileTimes{Modified: stat.ModTime()}
	if s, ok := stat.Sys().(*syscall.Win32FileAttributeData); ok {
		times.Modified = time.Unix(0, s.LastWriteTime.Nanoseconds()).UTC()
		times.Accessed = time.Unix(0, s.LastAccessTime.Nanoseconds()).UTC()
		times.Created = time.Unix(0, s.CreationTime.Nanoseconds()).UTC()
	}
	return times
}

func hostSystem() HostSystem {
	return HostSystemNTFS
}
