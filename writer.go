// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// defaultFileMode is applied to files and directories created while
// DropFileAttributes is set.
const defaultFileMode = 0640

type writerState int

const (
	stateIdle writerState = iota
	stateHeader
	stateData
)

// dirMeta is the metadata of an extracted directory, applied on Close.
type dirMeta struct {
	path  string
	entry Entry
}

// Writer materializes archive entries below a destination directory of a
// [Target]. Every entry is written with WriteHeader, any number of
// WriteDataBlock calls, and FinishEntry. A Writer is not safe for
// concurrent use.
type Writer struct {
	t   Target
	dst string
	cfg *Config

	state  writerState
	closed bool

	// current entry
	entry Entry
	path  string
	file  File

	files   int64
	written int64
	dirs    []dirMeta
}

// NewDiskWriter returns a [Writer] that extracts into the directory dst of
// the local filesystem.
func NewDiskWriter(dst string, cfg *Config) (*Writer, error) {
	return NewWriter(NewTargetDisk(), dst, cfg)
}

// NewWriter returns a [Writer] that extracts into the directory dst of t.
// If dst does not exist, it is created when cfg.CreateDestination() is set.
func NewWriter(t Target, dst string, cfg *Config) (*Writer, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if t == nil {
		return nil, newError(OpWriterInit, dst, fmt.Errorf("no target"))
	}
	if dst == "" {
		dst = "."
	}
	dst = filepath.Clean(dst)

	stat, err := t.Stat(dst)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !cfg.CreateDestination() {
			return nil, newError(OpWriterInit, dst, fmt.Errorf("destination does not exist"))
		}
		if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
			return nil, newError(OpWriterInit, dst, fmt.Errorf("failed to create destination directory: %w", err))
		}
		cfg.Logger().Info("created destination directory", "path", dst)
	case err != nil:
		return nil, newError(OpWriterInit, dst, err)
	case !stat.IsDir():
		return nil, newError(OpWriterInit, dst, fmt.Errorf("destination is not a directory"))
	}

	return &Writer{t: t, dst: dst, cfg: cfg}, nil
}

// WriteHeader creates the object described by e. Regular files are opened
// for the following data blocks.
func (w *Writer) WriteHeader(e Entry) error {
	if w.closed {
		return newError(OpWriteHeader, e.Name, ErrClosed)
	}
	if w.state != stateIdle {
		return newError(OpWriteHeader, e.Name, ErrInvalidState)
	}

	w.files++
	if err := w.cfg.CheckMaxFiles(w.files); err != nil {
		return newError(OpWriteHeader, e.Name, err)
	}

	name := entryPath(e.Name)
	var (
		path string
		file File
		err  error
	)
	switch e.Type {
	case TypeDirectory:
		path, err = createDir(w.t, w.dst, name, w.dirMode(e), w.cfg)
	case TypeRegular:
		path, file, err = createFile(w.t, w.dst, name, w.fileMode(e), w.cfg)
	case TypeSymlink:
		path, err = createSymlink(w.t, w.dst, name, e.Linkname, w.cfg)
	case TypeHardlink:
		path, err = createHardlink(w.t, w.dst, name, e.Linkname, w.cfg)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFile, e.Type)
	}
	if err != nil {
		return newError(OpWriteHeader, e.Name, err)
	}

	w.cfg.Logger().Debug("entry created", "type", e.Type, "path", path)
	w.entry = e
	w.path = path
	w.file = file
	w.state = stateHeader
	return nil
}

// WriteDataBlock writes b at its offset into the current file. Blocks of
// entries other than regular files are discarded.
func (w *Writer) WriteDataBlock(b DataBlock) error {
	if w.closed {
		return newError(OpWriteData, "", ErrClosed)
	}
	if w.state == stateIdle {
		return newError(OpWriteData, "", ErrInvalidState)
	}
	w.state = stateData

	if w.file == nil {
		return nil
	}

	if err := w.cfg.CheckExtractionSize(w.written + int64(len(b.Data))); err != nil {
		return newError(OpWriteData, w.entry.Name, err)
	}
	if _, err := w.file.Seek(b.Offset, io.SeekStart); err != nil {
		return newError(OpWriteData, w.entry.Name, fmt.Errorf("cannot seek to %d: %w", b.Offset, err))
	}
	n, err := w.file.Write(b.Data)
	w.written += int64(n)
	if err != nil {
		return newError(OpWriteData, w.entry.Name, err)
	}
	return nil
}

// FinishEntry closes the current entry and applies its metadata. The
// metadata of directories is applied on Close, deepest first.
func (w *Writer) FinishEntry() error {
	if w.closed {
		return newError(OpFinishEntry, w.entry.Name, ErrClosed)
	}
	if w.state == stateIdle {
		return newError(OpFinishEntry, w.entry.Name, ErrInvalidState)
	}
	w.state = stateIdle

	if err := w.finishEntry(); err != nil {
		return newError(OpFinishEntry, w.entry.Name, err)
	}
	return nil
}

func (w *Writer) finishEntry() error {
	e := w.entry
	switch e.Type {
	case TypeRegular:
		f := w.file
		w.file = nil

		// holes at the end of sparse files
		if err := f.Truncate(e.Size); err != nil {
			f.Close()
			return fmt.Errorf("cannot truncate to %d bytes: %w", e.Size, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("cannot close file: %w", err)
		}
		return w.applyMetadata(w.path, e)

	case TypeDirectory:
		if w.path != w.dst {
			w.dirs = append(w.dirs, dirMeta{path: w.path, entry: e})
		}

	case TypeSymlink:
		if w.cfg.RestoreModTime() && !e.ModTime.IsZero() {
			if err := w.t.Lchtimes(w.path, accessTime(e), e.ModTime); err != nil {
				return fmt.Errorf("cannot restore times: %w", err)
			}
		}
		if w.cfg.PreserveOwner() {
			if err := w.t.Chown(w.path, e.Uid, e.Gid); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyMetadata restores mode, times and owner of a file or directory.
func (w *Writer) applyMetadata(path string, e Entry) error {
	if !w.cfg.DropFileAttributes() {
		if err := w.t.Chmod(path, e.Mode); err != nil {
			return fmt.Errorf("cannot restore mode: %w", err)
		}
	}
	if w.cfg.RestoreModTime() && !e.ModTime.IsZero() {
		if err := w.t.Chtimes(path, accessTime(e), e.ModTime); err != nil {
			return fmt.Errorf("cannot restore times: %w", err)
		}
	}
	if w.cfg.PreserveOwner() {
		if err := w.t.Chown(path, e.Uid, e.Gid); err != nil {
			return err
		}
	}
	return nil
}

// fileMode returns the mode a regular file is created with. The owner can
// always write, the recorded mode is applied by FinishEntry.
func (w *Writer) fileMode(e Entry) fs.FileMode {
	if w.cfg.DropFileAttributes() {
		return defaultFileMode
	}
	return e.Mode.Perm() | 0600
}

// dirMode returns the mode a directory is created with. The owner can
// always add entries, the recorded mode is applied by Close.
func (w *Writer) dirMode(e Entry) fs.FileMode {
	if w.cfg.DropFileAttributes() {
		return w.cfg.CustomCreateDirMode()
	}
	return e.Mode.Perm() | 0700
}

// accessTime returns the recorded access time of e, or its modification
// time if none was recorded.
func accessTime(e Entry) time.Time {
	if e.AccessTime.IsZero() {
		return e.ModTime
	}
	return e.AccessTime
}

// BytesWritten returns the number of payload bytes written so far.
func (w *Writer) BytesWritten() int64 {
	return w.written
}

// Close closes an open file and applies the deferred metadata of all
// extracted directories. Calling Close more than once has no effect.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var result error
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			result = multierror.Append(result, newError(OpFinishEntry, w.entry.Name, err))
		}
		w.file = nil
	}

	// children before parents
	sort.SliceStable(w.dirs, func(i, j int) bool {
		return depth(w.dirs[i].path) > depth(w.dirs[j].path)
	})
	for _, d := range w.dirs {
		// a later entry may have replaced the directory
		if info, err := w.t.Lstat(d.path); err != nil || !info.IsDir() {
			w.cfg.Logger().Debug("skip metadata of replaced directory", "path", d.path)
			continue
		}
		if err := w.applyMetadata(d.path, d.entry); err != nil {
			result = multierror.Append(result, newError(OpFinishEntry, d.entry.Name, err))
		}
	}
	w.dirs = nil

	return result
}

func depth(path string) int {
	return strings.Count(filepath.Clean(path), string(os.PathSeparator))
}
