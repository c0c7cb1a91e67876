// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import "io"

// noopReaderCloser is a struct that implements the io.ReadCloser interface with a no-op Close method.
// It wraps decompressors that hold no resources.
type noopReaderCloser struct {
	io.Reader
}

// Close is a no-op method that satisfies the io.Closer interface.
func (n *noopReaderCloser) Close() error {
	return nil
}
