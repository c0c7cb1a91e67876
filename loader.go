// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// LoadFile reads the file at path fully into memory. The file size is
// determined first and the buffer is allocated once. Files larger than
// maxSize are refused before allocating (negative to disable the check). A short
// read is fatal.
func LoadFile(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(OpLoadFile, path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, newError(OpLoadFile, path, errors.Wrap(err, "cannot determine size"))
	}
	if !stat.Mode().IsRegular() {
		return nil, newError(OpLoadFile, path, errors.Errorf("not a regular file (%s)", stat.Mode().Type()))
	}

	size := stat.Size()
	if maxSize >= 0 && size > maxSize {
		return nil, newError(OpLoadFile, path, errors.Wrapf(ErrMaxInputSizeExceeded, "file has %d bytes", size))
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil {
		return nil, newError(OpLoadFile, path, errors.Wrapf(err, "read %d of %d bytes", n, size))
	}
	return buf, nil
}
