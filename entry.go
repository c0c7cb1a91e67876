// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"io/fs"
	"time"
)

// EntryType is the kind of filesystem object an [Entry] describes.
type EntryType int

const (
	TypeUnsupported EntryType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
	TypeHardlink
	TypeCharDevice
	TypeBlockDevice
	TypeFifo
)

// String returns a readable name of the type.
func (t EntryType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	case TypeHardlink:
		return "hardlink"
	case TypeCharDevice:
		return "char device"
	case TypeBlockDevice:
		return "block device"
	case TypeFifo:
		return "fifo"
	}
	return "unsupported"
}

// Entry is the metadata of one archive member. An Entry returned by
// [Archive.NextEntry] describes the current position of the archive only
// until the next call to NextEntry.
type Entry struct {
	Name       string      // slash separated path as stored in the archive
	Type       EntryType   // kind of object
	Size       int64       // logical size of the payload in bytes
	Mode       fs.FileMode // permission and special bits
	ModTime    time.Time   // modification time
	AccessTime time.Time   // access time, zero if not recorded
	Linkname   string      // target of symlinks and hard links
	Uid        int
	Gid        int
	Uname      string
	Gname      string
	Sparse     bool // payload has holes and may yield non-contiguous blocks
}

// DataBlock is a chunk of the payload of the current entry. Data must be
// written at Offset within the entry. Data aliases a buffer of the
// [Archive] and is only valid until the next call to NextDataBlock or
// NextEntry.
type DataBlock struct {
	Data   []byte
	Offset int64
}
