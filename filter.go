// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"bytes"
	"fmt"
	"io"
)

// compressionNone disables input filter detection.
const compressionNone = "none"

// decompressionFunc wraps src with a decompressor.
type decompressionFunc func(io.Reader) (io.ReadCloser, error)

// inputFilter is a decompressor that can be placed between a [Source]
// and the tar decoder.
type inputFilter struct {
	Name       string
	MagicBytes [][]byte
	Decompress decompressionFunc
}

// inputFilters is the collection of supported input filters. Filters without
// magic bytes are never detected and must be selected by name.
var inputFilters = []inputFilter{
	{
		Name:       fileExtensionGZip,
		MagicBytes: magicBytesGZip,
		Decompress: decompressGZipStream,
	},
	{
		Name:       fileExtensionBzip2,
		MagicBytes: magicBytesBzip2,
		Decompress: decompressBzip2Stream,
	},
	{
		Name:       fileExtensionXz,
		MagicBytes: magicBytesXz,
		Decompress: decompressXzStream,
	},
	{
		Name:       fileExtensionZstd,
		MagicBytes: magicBytesZstd,
		Decompress: decompressZstdStream,
	},
	{
		Name:       fileExtensionLZ4,
		MagicBytes: magicBytesLZ4,
		Decompress: decompressLZ4Stream,
	},
	{
		Name:       fileExtensionSnappy,
		MagicBytes: magicBytesSnappy,
		Decompress: decompressSnappyStream,
	},
	{
		Name:       fileExtensionZlib,
		MagicBytes: magicBytesZlib,
		Decompress: decompressZlibStream,
	},
	{
		Name:       fileExtensionBrotli,
		Decompress: decompressBrotliStream,
	},
}

// maxHeaderLength is the number of bytes that are needed to identify an
// input filter or an uncompressed tar header.
var maxHeaderLength = blockSize

// init calculates the maximum header length
func init() {
	for _, f := range inputFilters {
		for _, mb := range f.MagicBytes {
			if len(mb) > maxHeaderLength {
				maxHeaderLength = len(mb)
			}
		}
	}
}

// filterByName returns the input filter with the given name.
func filterByName(name string) (*inputFilter, error) {
	for i := range inputFilters {
		if inputFilters[i].Name == name {
			return &inputFilters[i], nil
		}
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}

// detectFilter returns the input filter whose magic bytes match header, or
// nil if none matches.
func detectFilter(header []byte) *inputFilter {
	for i := range inputFilters {
		if matchesMagicBytes(header, 0, inputFilters[i].MagicBytes) {
			return &inputFilters[i]
		}
	}
	return nil
}

// matchesMagicBytes checks if data contains one of magicBytes at offset.
func matchesMagicBytes(data []byte, offset int, magicBytes [][]byte) bool {
	// check all possible magic bytes until match is found
	for _, mb := range magicBytes {
		// check if header is long enough
		if offset+len(mb) > len(data) {
			continue
		}

		// check for byte match
		if bytes.Equal(mb, data[offset:offset+len(mb)]) {
			return true
		}
	}

	// no match found
	return false
}
