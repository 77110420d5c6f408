// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	errStoreReadOnly    = errors.New("zip: backing store closed for writing")
	errStoreWritable    = errors.New("zip: backing store still open for writing")
	errStoreReaderTaken = errors.New("zip: backing store reader already opened")
)

// BackingStore holds the compressed payloads of a Pipeline between scatter
// and gather. It is append-only until CloseForWriting and can then be read
// back sequentially once.
type BackingStore interface {
	io.Writer

	// CloseForWriting switches the store to read-only.
	CloseForWriting() error

	// Reader returns a sequential reader over everything written.
	// It may be called once, after CloseForWriting.
	Reader() (io.ReadCloser, error)

	// Close releases the store and anything it created.
	Close() error
}

// storeState implements the write-then-read lifecycle shared by the stores.
type storeState struct {
	mu         sync.Mutex
	readOnly   bool
	readerUsed bool
	closed     bool
	written    int64
}

func (s *storeState) checkWrite() error {
	switch {
	case s.closed:
		return ErrPipelineClosed
	case s.readOnly:
		return errStoreReadOnly
	}
	return nil
}

func (s *storeState) takeReader() error {
	switch {
	case s.closed:
		return ErrPipelineClosed
	case !s.readOnly:
		return errStoreWritable
	case s.readerUsed:
		return errStoreReaderTaken
	}
	s.readerUsed = true
	return nil
}

// FileBackingStore keeps payloads in a temporary file that is removed on Close.
type FileBackingStore struct {
	state storeState
	f     *os.File
	w     *bufio.Writer
}

// NewFileBackingStore creates the store's temporary file in dir, or in the
// default temp directory when dir is empty.
func NewFileBackingStore(dir string) (*FileBackingStore, error) {
	f, err := os.CreateTemp(dir, "zipkit-scatter-*")
	if err != nil {
		return nil, fmt.Errorf("create backing store: %w", err)
	}
	return &FileBackingStore{f: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (s *FileBackingStore) Write(p []byte) (int, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if err := s.state.checkWrite(); err != nil {
		return 0, err
	}
	n, err := s.w.Write(p)
	s.state.written += int64(n)
	return n, err
}

func (s *FileBackingStore) CloseForWriting() error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		return ErrPipelineClosed
	}
	if s.state.readOnly {
		return nil
	}
	s.state.readOnly = true
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush backing store: %w", err)
	}
	return nil
}

func (s *FileBackingStore) Reader() (io.ReadCloser, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if err := s.state.takeReader(); err != nil {
		return nil, err
	}
	section := NewSectionChannel(s.f, 0, s.state.written)
	return struct {
		io.Reader
		io.Closer
	}{bufio.NewReaderSize(section, 64*1024), section}, nil
}

// Close removes the temporary file. Subsequent calls return nil.
func (s *FileBackingStore) Close() error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		return nil
	}
	s.state.closed = true
	return cleanupTempFile(s.f)
}

// MemoryBackingStore keeps payloads in memory.
type MemoryBackingStore struct {
	state storeState
	buf   *MemoryChannel
}

func NewMemoryBackingStore() *MemoryBackingStore {
	return &MemoryBackingStore{buf: NewMemoryChannel(nil)}
}

func (s *MemoryBackingStore) Write(p []byte) (int, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if err := s.state.checkWrite(); err != nil {
		return 0, err
	}
	n, err := s.buf.Write(p)
	s.state.written += int64(n)
	return n, err
}

func (s *MemoryBackingStore) CloseForWriting() error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		return ErrPipelineClosed
	}
	s.state.readOnly = true
	return nil
}

func (s *MemoryBackingStore) Reader() (io.ReadCloser, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if err := s.state.takeReader(); err != nil {
		return nil, err
	}
	return NewSectionChannel(s.buf, 0, s.state.written), nil
}

func (s *MemoryBackingStore) Close() error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		return nil
	}
	s.state.closed = true
	return s.buf.Close()
}
