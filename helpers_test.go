// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar_test

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// testModTime is the modification time of all generated archive entries.
var testModTime = time.Unix(1600000000, 0)

// archiveContent is one entry of a generated tar archive.
type archiveContent struct {
	Content    []byte
	Name       string
	Mode       fs.FileMode
	Filetype   byte
	Linktarget string
	ModTime    time.Time
}

// packTar creates a tar archive in memory from the given entries.
func packTar(t testing.TB, entries []archiveContent) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		mode := e.Mode
		if mode == 0 {
			mode = 0644
			if e.Filetype == tar.TypeDir {
				mode = 0755
			}
		}
		modTime := e.ModTime
		if modTime.IsZero() {
			modTime = testModTime
		}
		if e.Filetype == tar.TypeXGlobalHeader {
			// archive/tar refuses global headers with any other field set
			hdr := &tar.Header{
				Typeflag:   tar.TypeXGlobalHeader,
				PAXRecords: map[string]string{"comment": "global"},
				Format:     tar.FormatPAX,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				t.Fatalf("cannot write global header: %s", err)
			}
			continue
		}
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     int64(mode.Perm()),
			Typeflag: e.Filetype,
			Linkname: e.Linktarget,
			ModTime:  modTime,
			Format:   tar.FormatPAX,
		}
		if e.Filetype == tar.TypeReg {
			hdr.Size = int64(len(e.Content))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("cannot write header of %s: %s", e.Name, err)
		}
		if e.Filetype == tar.TypeReg {
			if _, err := tw.Write(e.Content); err != nil {
				t.Fatalf("cannot write content of %s: %s", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("cannot close tar writer: %s", err)
	}
	return buf.Bytes()
}

// compress compresses data with the codec of ext.
func compress(t testing.TB, ext string, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch ext {
	case "gz":
		w = gzip.NewWriter(&buf)
	case "bz2":
		w, err = bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	case "xz":
		w, err = xz.NewWriter(&buf)
	case "zst":
		w, err = zstd.NewWriter(&buf)
	case "lz4":
		w = lz4.NewWriter(&buf)
	case "sz":
		w = snappy.NewBufferedWriter(&buf)
	case "zz":
		w = zlib.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	default:
		t.Fatalf("unknown codec %s", ext)
	}
	if err != nil {
		t.Fatalf("cannot create %s writer: %s", ext, err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("cannot compress with %s: %s", ext, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("cannot close %s writer: %s", ext, err)
	}
	return buf.Bytes()
}

// newTestFile writes data to path and returns path.
func newTestFile(t testing.TB, path string, data []byte) string {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("cannot create test file: %s", err)
	}
	return path
}

// tarBlock returns a ustar header block with a valid checksum.
func tarBlock(name string, typeflag byte, size int64) []byte {
	b := make([]byte, 512)
	copy(b[0:100], name)
	copy(b[100:108], "0000644\x00")
	copy(b[108:116], "0000000\x00")
	copy(b[116:124], "0000000\x00")
	copy(b[124:136], fmt.Sprintf("%011o\x00", size))
	copy(b[136:148], fmt.Sprintf("%011o\x00", testModTime.Unix()))
	b[156] = typeflag
	copy(b[257:263], "ustar\x00")
	copy(b[263:265], "00")

	copy(b[148:156], "        ")
	var sum int64
	for _, c := range b {
		sum += int64(c)
	}
	copy(b[148:156], fmt.Sprintf("%06o\x00 ", sum))
	return b
}

// pad fills data up to a multiple of 512 bytes.
func pad(data []byte) []byte {
	if n := len(data) % 512; n != 0 {
		data = append(data, make([]byte, 512-n)...)
	}
	return data
}

// paxRecord formats a pax record, the length prefix includes itself.
func paxRecord(key, value string) string {
	body := fmt.Sprintf(" %s=%s\n", key, value)
	size := len(body)
	for {
		record := fmt.Sprintf("%d%s", size, body)
		if len(record) == size {
			return record
		}
		size = len(record)
	}
}

// sparseTar returns an archive with the pax 1.0 sparse file "sparse.txt".
// It holds "hello" at offset 1024 and has a size of 1029 bytes.
func sparseTar() []byte {
	records := paxRecord("GNU.sparse.major", "1") +
		paxRecord("GNU.sparse.minor", "0") +
		paxRecord("GNU.sparse.name", "sparse.txt") +
		paxRecord("GNU.sparse.realsize", "1029")

	sparseMap := pad([]byte("1\n1024\n5\n"))
	data := append(sparseMap, []byte("hello")...)

	var archive []byte
	archive = append(archive, tarBlock("PaxHeaders/sparse.txt", tar.TypeXHeader, int64(len(records)))...)
	archive = append(archive, pad([]byte(records))...)
	archive = append(archive, tarBlock("GNUSparseFile.0/sparse.txt", tar.TypeReg, int64(len(data)))...)
	archive = append(archive, pad(data)...)
	archive = append(archive, make([]byte, 1024)...)
	return archive
}

// treeEntry is the observed state of one object below a directory.
type treeEntry struct {
	Mode    fs.FileMode
	Content string
	Link    string
}

// readTree walks root and returns all objects below it by relative path.
func readTree(t testing.TB, root string) map[string]treeEntry {
	t.Helper()
	tree := map[string]treeEntry{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		e := treeEntry{Mode: info.Mode()}
		switch {
		case info.Mode().IsRegular():
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			e.Content = string(b)
		case info.Mode()&fs.ModeSymlink != 0:
			if e.Link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		tree[filepath.ToSlash(rel)] = e
		return nil
	})
	if err != nil {
		t.Fatalf("cannot read tree %s: %s", root, err)
	}
	return tree
}
