// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

// fileExtensionLZ4 is the file extension for lz4 files.
const fileExtensionLZ4 = "lz4"

// magicBytesLZ4 are the magic bytes of the lz4 frame format.
var magicBytesLZ4 = [][]byte{
	{0x04, 0x22, 0x4D, 0x18},
}

// decompressLZ4Stream returns an io.ReadCloser that decompresses src with lz4 algorithm.
func decompressLZ4Stream(src io.Reader) (io.ReadCloser, error) {
	return &noopReaderCloser{lz4.NewReader(src)}, nil
}
