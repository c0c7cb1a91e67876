// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"bufio"
	"errors"
	"io"
	"os"
)

// DefaultChunkSize is the default size of the chunks a file source reads from
// disk, and of the data blocks an [Archive] yields.
const DefaultChunkSize = 10240

// Source provides the raw bytes of an archive. A Source is consumed by
// exactly one [Archive], which closes it.
type Source interface {
	io.Reader
	io.Closer

	// Peek returns up to n bytes without advancing the reader. Fewer than
	// n bytes are returned only if the source ends before. The returned
	// slice is only valid until the next call to Read.
	Peek(n int) ([]byte, error)

	// Name describes the source, e.g. the path of a file.
	Name() string
}

// fileSource reads a file incrementally in chunks of a fixed size. It holds
// the file descriptor until it is closed.
type fileSource struct {
	f  *os.File
	br *bufio.Reader
}

// NewFileSource opens the file at path and reads it in chunks of chunkSize
// bytes. Chunk sizes below one tar block are raised to one block.
func NewFileSource(path string, chunkSize int) (Source, error) {
	if chunkSize < blockSize {
		chunkSize = blockSize
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(OpOpen, path, err)
	}
	return &fileSource{f: f, br: bufio.NewReaderSize(f, chunkSize)}, nil
}

// Read reads from the buffered file.
func (s *fileSource) Read(p []byte) (int, error) {
	return s.br.Read(p)
}

// Peek returns up to n bytes of the file without consuming them.
func (s *fileSource) Peek(n int) ([]byte, error) {
	b, err := s.br.Peek(n)
	if errors.Is(err, io.EOF) {
		return b, nil
	}
	return b, err
}

// Name returns the path of the file.
func (s *fileSource) Name() string {
	return s.f.Name()
}

// Close closes the file descriptor.
func (s *fileSource) Close() error {
	return s.f.Close()
}

// memorySource reads from a caller-owned byte slice. It never copies the
// slice, so the slice must stay unmodified until the source is closed.
type memorySource struct {
	buf []byte
	off int
}

// NewMemorySource returns a [Source] that reads buf.
func NewMemorySource(buf []byte) Source {
	return &memorySource{buf: buf}
}

// Read copies the next bytes of the buffer into p.
func (s *memorySource) Read(p []byte) (int, error) {
	if s.off >= len(s.buf) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[s.off:])
	s.off += n
	return n, nil
}

// Peek returns a view into the buffer.
func (s *memorySource) Peek(n int) ([]byte, error) {
	end := s.off + n
	if end > len(s.buf) {
		end = len(s.buf)
	}
	return s.buf[s.off:end], nil
}

// Name returns a fixed description of the source.
func (s *memorySource) Name() string {
	return "memory"
}

// Close releases the reference to the buffer.
func (s *memorySource) Close() error {
	s.buf = nil
	s.off = 0
	return nil
}
