// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"fatal", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestSetup_WritesJSONFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	dir := filepath.Join(t.TempDir(), "logs")
	closer, err := Setup("debug", dir)
	require.NoError(t, err)

	slog.Debug("scattered entry", slog.String("name", "a.txt"))
	require.NoError(t, closer.Close())

	files, err := filepath.Glob(filepath.Join(dir, "zipkit_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "scattered entry", record["msg"])
	assert.Equal(t, "a.txt", record["name"])
	assert.Equal(t, "DEBUG", record["level"])
}

func TestSetup_ConsoleOnly(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	closer, err := Setup("warn", "")
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.False(t, slog.Default().Enabled(t.Context(), slog.LevelInfo))
}
