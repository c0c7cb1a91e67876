// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"errors"
	"fmt"
)

// Errors identifying the operation that failed. An [*Error] matches exactly
// one of them with [errors.Is].
var (
	ErrOpen              = errors.New("cannot open archive")
	ErrFormatUnsupported = errors.New("archive format not supported")
	ErrHeader            = errors.New("error reading archive entry")
	ErrDataRead          = errors.New("error reading archive data block")
	ErrWriterInit        = errors.New("cannot initialize writer")
	ErrWriteHeader       = errors.New("error writing entry")
	ErrWriteData         = errors.New("error writing archive data block")
	ErrFinishEntry       = errors.New("error finishing entry")
	ErrFileLoad          = errors.New("cannot load file")
)

// Causes wrapped inside an [*Error].
var (
	// ErrInvalidState is returned when a handle is used out of order, e.g.
	// writing data before a header.
	ErrInvalidState = errors.New("invalid state")

	// ErrClosed is returned when a handle is used after Close.
	ErrClosed = errors.New("handle closed")

	// ErrUnsupportedFile is returned for entry types that cannot be extracted.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrMaxFilesExceeded indicates that the maximum number of entries is exceeded.
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded indicates that the maximum size of extracted data is exceeded.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrMaxInputSizeExceeded indicates that the input is larger than allowed.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")

	// ErrPathTraversal indicates an entry path or link target leaving the destination.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrSymlinkInPath indicates a symlink inside the path of an entry.
	ErrSymlinkInPath = errors.New("symlink in path")

	// ErrAlreadyExists indicates an existing object at the entry path while overwrite is disabled.
	ErrAlreadyExists = errors.New("file already exists")
)

// Op is the extraction step that produced an [*Error].
type Op int

const (
	OpOpen Op = iota
	OpFormat
	OpReadHeader
	OpReadData
	OpWriterInit
	OpWriteHeader
	OpWriteData
	OpFinishEntry
	OpLoadFile
)

// kind returns the sentinel error of the operation.
func (o Op) kind() error {
	switch o {
	case OpOpen:
		return ErrOpen
	case OpFormat:
		return ErrFormatUnsupported
	case OpReadHeader:
		return ErrHeader
	case OpReadData:
		return ErrDataRead
	case OpWriterInit:
		return ErrWriterInit
	case OpWriteHeader:
		return ErrWriteHeader
	case OpWriteData:
		return ErrWriteData
	case OpFinishEntry:
		return ErrFinishEntry
	case OpLoadFile:
		return ErrFileLoad
	}
	return errors.New("unknown operation")
}

// String returns the message of the operation.
func (o Op) String() string {
	return o.kind().Error()
}

// Error is returned by every extraction operation. Path is the entry path
// or the input path, if one applies to the failure.
type Error struct {
	Op   Op
	Path string
	Err  error
}

func newError(op Op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// Error renders the operation, path and cause in a single line.
func (e *Error) Error() string {
	var msg string
	switch {
	case e.Path == "":
		msg = e.Op.String()
	case e.Op == OpWriteHeader:
		msg = fmt.Sprintf("error writing %s entry", e.Path)
	case e.Op == OpFinishEntry:
		msg = fmt.Sprintf("error finishing %s entry", e.Path)
	default:
		msg = fmt.Sprintf("%s %s", e.Op, e.Path)
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of the failed operation.
func (e *Error) Is(target error) bool {
	return target == e.Op.kind()
}
