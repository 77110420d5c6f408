// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/zipkit"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want zipkit.CompressionMethod
	}{
		{"stored", zipkit.Stored},
		{"Deflated", zipkit.Deflated},
		{"ZSTD", zipkit.ZStandard},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMethod(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseMethod("bzip2")
	assert.ErrorIs(t, err, zipkit.ErrAlgorithm)
}

func TestCollectTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "project")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("readme"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0o644))

	reqs, err := collectTree(nil, root, zipkit.Deflated)
	require.NoError(t, err)

	var names []string
	for _, r := range reqs {
		names = append(names, r.Entry.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"project/", "project/README", "project/src/", "project/src/main.go"}, names)

	single, err := collectTree(nil, filepath.Join(root, "README"), zipkit.Stored)
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "README", single[0].Entry.Name)
	assert.Equal(t, int64(6), single[0].SizeHint)
}
