// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// Archive iterates over the entries of a tar archive and the data blocks of
// each entry. It is bound to one [Source] for its whole life and is not safe
// for concurrent use.
type Archive struct {
	src    Source
	lr     *limitErrorReader
	dec    io.ReadCloser
	tr     *tar.Reader
	cfg    *Config
	filter string

	// block buffer, reused for every data block
	buf []byte

	// state of the current entry
	name      string
	inEntry   bool
	sparse    bool
	offset    int64
	remaining int64

	closed bool
}

// OpenFile opens the archive at path and reads it incrementally in chunks
// of cfg.ChunkSize() bytes.
func OpenFile(path string, cfg *Config) (*Archive, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	src, err := NewFileSource(path, cfg.ChunkSize())
	if err != nil {
		return nil, err
	}
	return OpenSource(src, cfg)
}

// OpenMemory opens the archive held in buf. The buffer is not copied and
// must stay unmodified until the [Archive] is closed.
func OpenMemory(buf []byte, cfg *Config) (*Archive, error) {
	return OpenSource(NewMemorySource(buf), cfg)
}

// OpenSource identifies the input filter of src, and verifies that the
// (decompressed) content is a tar archive. The returned [Archive] owns src.
// On failure src is closed.
func OpenSource(src Source, cfg *Config) (*Archive, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	a, err := openSource(src, cfg)
	if err != nil {
		if a != nil && a.dec != nil {
			a.dec.Close()
		}
		src.Close()
		return nil, err
	}
	return a, nil
}

func openSource(src Source, cfg *Config) (*Archive, error) {
	// peek into the raw input
	header, err := src.Peek(maxHeaderLength)
	if err != nil {
		return nil, newError(OpOpen, src.Name(), fmt.Errorf("cannot read header: %w", err))
	}

	// select input filter
	var filter *inputFilter
	switch name := cfg.Compression(); {
	case name == compressionNone:
	case name != "":
		if filter, err = filterByName(name); err != nil {
			return nil, newError(OpFormat, src.Name(), err)
		}
	case isTar(header):
	default:
		if filter = detectFilter(header); filter == nil {
			return nil, newError(OpFormat, src.Name(), fmt.Errorf("no tar header found"))
		}
	}

	a := &Archive{
		src: src,
		lr:  newLimitErrorReader(src, cfg.MaxInputSize()),
		cfg: cfg,
		buf: make([]byte, cfg.ChunkSize()),
	}
	var r io.Reader = a.lr
	if filter != nil {
		cfg.Logger().Debug("input filter selected", "filter", filter.Name)
		if a.dec, err = filter.Decompress(r); err != nil {
			return nil, newError(OpFormat, src.Name(), fmt.Errorf("cannot initialize %s decompression: %w", filter.Name, err))
		}
		a.filter = filter.Name
		r = a.dec
	}

	// verify the decompressed content
	hr, err := newHeaderReader(r, blockSize)
	if err != nil {
		return a, newError(OpOpen, src.Name(), err)
	}
	if !isTar(hr.PeekHeader()) {
		return a, newError(OpFormat, src.Name(), fmt.Errorf("no tar header found"))
	}
	a.tr = tar.NewReader(hr)

	return a, nil
}

// Type returns the format of the archive, e.g. "tar" or "tar.gz".
func (a *Archive) Type() string {
	if a.filter == "" {
		return fileExtensionTar
	}
	return fileExtensionTar + "." + a.filter
}

// InputSize returns the number of raw bytes consumed from the source.
func (a *Archive) InputSize() int64 {
	return a.lr.ReadBytes()
}

// NextEntry advances to the next entry. Unread data of the current entry is
// discarded. At the end of the archive io.EOF is returned.
func (a *Archive) NextEntry() (Entry, error) {
	if a.closed {
		return Entry{}, newError(OpReadHeader, "", ErrClosed)
	}
	a.inEntry = false

	for {
		hdr, err := a.tr.Next()
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		if err != nil {
			return Entry{}, newError(OpReadHeader, a.name, err)
		}

		// global pax headers only modify following entries
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		e := newEntry(hdr)
		a.name = e.Name
		a.inEntry = true
		a.sparse = e.Sparse
		a.offset = 0
		a.remaining = 0
		if e.Type == TypeRegular {
			a.remaining = e.Size
		}
		return e, nil
	}
}

// NextDataBlock returns the next chunk of the current entry. At the end of
// the entry io.EOF is returned. Chunks of sparse entries that only hold
// zeros are not returned, the offsets of the returned blocks are therefore
// not contiguous for those entries.
func (a *Archive) NextDataBlock() (DataBlock, error) {
	if a.closed {
		return DataBlock{}, newError(OpReadData, "", ErrClosed)
	}
	if !a.inEntry {
		return DataBlock{}, newError(OpReadData, "", ErrInvalidState)
	}

	for a.remaining > 0 {
		n := int64(len(a.buf))
		if n > a.remaining {
			n = a.remaining
		}
		if _, err := io.ReadFull(a.tr, a.buf[:n]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return DataBlock{}, newError(OpReadData, a.name, err)
		}

		off := a.offset
		a.offset += n
		a.remaining -= n
		if a.sparse && isZeroBlock(a.buf[:n]) {
			continue
		}
		return DataBlock{Data: a.buf[:n], Offset: off}, nil
	}

	return DataBlock{}, io.EOF
}

// Skip abandons the data of the current entry. It is discarded by the next
// call to NextEntry.
func (a *Archive) Skip() {
	a.remaining = 0
}

// Close closes the input filter and the source. Calling Close more than
// once has no effect.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.inEntry = false
	a.buf = nil

	var result error
	if a.dec != nil {
		if err := a.dec.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("cannot close %s decompression: %w", a.filter, err))
		}
	}
	if err := a.src.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("cannot close source: %w", err))
	}
	return result
}
