//go:build linux

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

	s, ok := stat.Sys().(*syscall.Stat_t)
	if !ok {
		return times
	}

	// Atim - Access Time
	times.Accessed = time.Unix(int64(s.Atim.Sec), int64(s.Atim.Nsec)).UTC()
	// Mtim - Modification Time
	times.Modified = time.Unix(int64(s.Mtim.Sec), int64(s.Mtim.Nsec)).UTC()

	// Linux syscall.Stat_t does not expose "BirthTime" (Creation Time).
	// Note: s.Ctim is "Change Time" (metadata change), NOT creation time.
	return times
}
