// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"io"

	"github.com/andybalholm/brotli"
)

// fileExtensionBrotli is the file extension for brotli files. Brotli streams
// have no magic bytes, so this filter is only used when configured explicitly.
const fileExtensionBrotli = "br"

// decompressBrotliStream returns an io.ReadCloser that decompresses src with brotli algorithm.
func decompressBrotliStream(src io.Reader) (io.ReadCloser, error) {
	return &noopReaderCloser{brotli.NewReader(src)}, nil
}
