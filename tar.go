// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"archive/tar"
	"io/fs"
	"strconv"
	"strings"
)

// fileExtensionTar is the file extension for tar files
const fileExtensionTar = "tar"

// blockSize is the size of a tar header block
const blockSize = 512

// offsetTar is the offset where the magic bytes are located in the header
const offsetTar = 257

// magicBytesTar are the magic bytes for tar files
var magicBytesTar = [][]byte{
	[]byte("ustar\x00tar\x00"),
	[]byte("ustar\x00"),
	[]byte("ustar  \x00"),
}

// paxGNUSparse is the prefix of pax records describing sparse files
const paxGNUSparse = "GNU.sparse."

// isTar checks if the header is the first block of a tar archive. Besides
// the ustar and gnu magic bytes, pre-posix headers are accepted by their
// checksum, and an all-zero block is accepted as an empty archive.
func isTar(header []byte) bool {
	if len(header) < blockSize {
		return false
	}
	header = header[:blockSize]
	if matchesMagicBytes(header, offsetTar, magicBytesTar) {
		return true
	}
	if isZeroBlock(header) {
		return true
	}
	return validChecksum(header)
}

// isZeroBlock returns true if b contains only zero bytes
func isZeroBlock(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// validChecksum verifies the header checksum stored at bytes 148-155. Both
// the unsigned and the historic signed sum are accepted.
func validChecksum(header []byte) bool {
	field := strings.Trim(string(header[148:156]), " \x00")
	if field == "" {
		return false
	}
	want, err := strconv.ParseInt(field, 8, 64)
	if err != nil {
		return false
	}
	var unsigned, signed int64
	for i, c := range header {
		if i >= 148 && i < 156 {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return want == unsigned || want == signed
}

// entryType maps a tar type flag to an [EntryType]
func entryType(flag byte) EntryType {
	switch flag {
	case tar.TypeReg, tar.TypeRegA, tar.TypeCont, tar.TypeGNUSparse:
		return TypeRegular
	case tar.TypeDir:
		return TypeDirectory
	case tar.TypeSymlink:
		return TypeSymlink
	case tar.TypeLink:
		return TypeHardlink
	case tar.TypeChar:
		return TypeCharDevice
	case tar.TypeBlock:
		return TypeBlockDevice
	case tar.TypeFifo:
		return TypeFifo
	}
	return TypeUnsupported
}

// isSparse returns true if hdr describes a gnu sparse file, in the old gnu
// or in one of the pax formats.
func isSparse(hdr *tar.Header) bool {
	if hdr.Typeflag == tar.TypeGNUSparse {
		return true
	}
	for k := range hdr.PAXRecords {
		if strings.HasPrefix(k, paxGNUSparse) {
			return true
		}
	}
	return false
}

// newEntry converts a tar header into an [Entry]
func newEntry(hdr *tar.Header) Entry {
	return Entry{
		Name:       hdr.Name,
		Type:       entryType(hdr.Typeflag),
		Size:       hdr.Size,
		Mode:       hdr.FileInfo().Mode() &^ fs.ModeType,
		ModTime:    hdr.ModTime,
		AccessTime: hdr.AccessTime,
		Linkname:   hdr.Linkname,
		Uid:        hdr.Uid,
		Gid:        hdr.Gid,
		Uname:      hdr.Uname,
		Gname:      hdr.Gname,
		Sparse:     isSparse(hdr),
	}
}
