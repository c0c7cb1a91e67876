// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"io"

	"github.com/klauspost/compress/snappy"
)

// fileExtensionSnappy is the file extension for snappy files.
const fileExtensionSnappy = "sz"

// magicBytesSnappy are the magic bytes of the snappy framing format.
var magicBytesSnappy = [][]byte{
	append([]byte{0xff, 0x06, 0x00, 0x00}, []byte("sNaPpY")...),
}

// decompressSnappyStream returns an io.ReadCloser that decompresses src with snappy algorithm.
func decompressSnappyStream(src io.Reader) (io.ReadCloser, error) {
	return &noopReaderCloser{snappy.NewReader(src)}, nil
}
