// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileChannel(t *testing.T, content string, mode Mode) *FileChannel {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channel.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	c, err := OpenFileChannel(path, mode)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestChannels_ReadSeekSize(t *testing.T) {
	const content = "0123456789"

	channels := map[string]func(t *testing.T) Channel{
		"file": func(t *testing.T) Channel { return newTestFileChannel(t, content, ModeRead) },
		"memory": func(t *testing.T) Channel {
			return NewMemoryChannel([]byte(content))
		},
		"section": func(t *testing.T) Channel {
			return NewSectionChannel(strings.NewReader("xx"+content+"yy"), 2, int64(len(content)))
		},
	}

	for name, open := range channels {
		t.Run(name, func(t *testing.T) {
			c := open(t)

			size, err := c.Size()
			require.NoError(t, err)
			assert.Equal(t, int64(len(content)), size)

			buf := make([]byte, 4)
			n, err := io.ReadFull(c, buf)
			require.NoError(t, err)
			assert.Equal(t, "0123", string(buf[:n]))

			pos, err := c.Position()
			require.NoError(t, err)
			assert.Equal(t, int64(4), pos)

			pos, err = c.Seek(-2, io.SeekEnd)
			require.NoError(t, err)
			assert.Equal(t, int64(8), pos)

			rest, err := io.ReadAll(c)
			require.NoError(t, err)
			assert.Equal(t, "89", string(rest))

			n, err = c.ReadAt(buf[:3], 5)
			require.NoError(t, err)
			assert.Equal(t, "567", string(buf[:n]))

			_, err = c.Seek(-1, io.SeekStart)
			assert.ErrorIs(t, err, ErrInvalidOffset)

			// Seeking past the end is legal; reads there hit EOF.
			_, err = c.Seek(100, io.SeekStart)
			require.NoError(t, err)
			_, err = c.Read(buf)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestChannels_ClosedChannel(t *testing.T) {
	channels := map[string]Channel{
		"file":    newTestFileChannel(t, "abc", ModeReadWrite),
		"memory":  NewMemoryChannel([]byte("abc")),
		"section": NewSectionChannel(strings.NewReader("abc"), 0, 3),
	}

	for name, c := range channels {
		t.Run(name, func(t *testing.T) {
			assert.True(t, c.IsOpen())
			require.NoError(t, c.Close())
			assert.False(t, c.IsOpen())
			assert.NoError(t, c.Close(), "second close must be a no-op")

			_, err := c.Read(make([]byte, 1))
			assert.ErrorIs(t, err, ErrChannelClosed)
			_, err = c.Write([]byte("x"))
			assert.ErrorIs(t, err, ErrChannelClosed)
			_, err = c.Seek(0, io.SeekStart)
			assert.ErrorIs(t, err, ErrChannelClosed)
			_, err = c.Size()
			assert.ErrorIs(t, err, ErrChannelClosed)
			_, err = c.Position()
			assert.ErrorIs(t, err, ErrChannelClosed)
			assert.ErrorIs(t, c.Truncate(0), ErrChannelClosed)
		})
	}
}

func TestFileChannel_WrongMode(t *testing.T) {
	ro := newTestFileChannel(t, "abc", ModeRead)
	_, err := ro.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrWrongMode)
	assert.ErrorIs(t, ro.Truncate(1), ErrWrongMode)

	path := filepath.Join(t.TempDir(), "wo.bin")
	wo, err := OpenFileChannel(path, ModeWrite)
	require.NoError(t, err)
	defer wo.Close()

	_, err = wo.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestFileChannel_WriteBeyondEndAndTruncate(t *testing.T) {
	c := newTestFileChannel(t, "abc", ModeReadWrite)

	_, err := c.Seek(6, io.SeekStart)
	require.NoError(t, err)

	// The seek alone does not grow the file.
	size, err := c.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	_, err = c.Write([]byte("xyz"))
	require.NoError(t, err)

	got, err := os.ReadFile(c.Name())
	require.NoError(t, err)
	assert.Equal(t, []byte("abc\x00\x00\x00xyz"), got)

	require.NoError(t, c.Truncate(2))
	size, err = c.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	pos, err := c.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos, "position clamps to the new size")

	assert.ErrorIs(t, c.Truncate(-1), ErrInvalidOffset)
}

func TestFileChannel_ClosedDuringOperation(t *testing.T) {
	c := newTestFileChannel(t, "abc", ModeRead)

	// Close the descriptor behind the channel's back and then mark the
	// channel closed, reproducing a read that loses the race with Close.
	require.NoError(t, c.f.Close())
	c.state.markClosed()

	err := c.state.fail(os.ErrClosed)
	assert.ErrorIs(t, err, ErrClosedDuringOperation)
	assert.NotErrorIs(t, err, ErrChannelClosed)

	_, err = c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestMemoryChannel_Write(t *testing.T) {
	mc := NewMemoryChannel(nil)

	_, err := mc.Write([]byte("hello"))
	require.NoError(t, err)

	_, err = mc.Seek(1, io.SeekStart)
	require.NoError(t, err)
	_, err = mc.Write([]byte("EL"))
	require.NoError(t, err)
	assert.Equal(t, "hELlo", string(mc.Bytes()))

	_, err = mc.Seek(7, io.SeekStart)
	require.NoError(t, err)
	_, err = mc.Write([]byte("!"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hELlo\x00\x00!"), mc.Bytes())

	require.NoError(t, mc.Truncate(3))
	assert.Equal(t, "hEL", string(mc.Bytes()))
	pos, err := mc.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	// Stale bytes past the truncation point must not resurface.
	_, err = mc.Seek(5, io.SeekStart)
	require.NoError(t, err)
	_, err = mc.Write([]byte("?"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hEL\x00\x00?"), mc.Bytes())

	mc.Reset()
	size, err := mc.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestSectionChannel_ReadOnly(t *testing.T) {
	c := NewSectionChannel(bytes.NewReader([]byte("abcdef")), 1, 3)

	_, err := c.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, err, ErrWrongMode)
	assert.ErrorIs(t, c.Truncate(0), ErrReadOnly)

	data, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, "bcd", string(data))
}
