//go:build !windows

// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

// hostSystem returns the HostSystem type.
// On Unix we don't inspect the file system type, we just report the OS type.
func hostSystem() HostSystem {
	return HostSystemUNIX
}
