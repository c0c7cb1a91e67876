// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

// TargetMemory extracts into a [billy.Filesystem]. By default this is an
// in-memory filesystem, which makes it suitable for dry runs and tests.
// Permissions are not enforced, hard links are stored as copies and the
// timestamps of symlinks are not maintained.
type TargetMemory struct {
	fs billy.Filesystem
}

// NewTargetMemory creates a new target backed by an empty in-memory filesystem.
func NewTargetMemory() *TargetMemory {
	return NewTargetBilly(memfs.New())
}

// NewTargetBilly creates a new target that writes into fs.
func NewTargetBilly(fs billy.Filesystem) *TargetMemory {
	return &TargetMemory{fs: fs}
}

// Filesystem returns the underlying filesystem, e.g. to inspect the result
// of an extraction.
func (m *TargetMemory) Filesystem() billy.Filesystem {
	return m.fs
}

// CreateFile creates a file in the filesystem and opens it for writing.
func (m *TargetMemory) CreateFile(path string, mode fs.FileMode, overwrite bool) (File, error) {
	if err := m.prepareOverwrite(path, overwrite, false); err != nil {
		return nil, err
	}
	f, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}

// CreateDir creates a directory and all missing parents. If the directory
// already exists, nothing is done.
func (m *TargetMemory) CreateDir(path string, mode fs.FileMode) error {
	if err := m.fs.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("failed to create directory (%w)", err)
	}
	return nil
}

// CreateSymlink creates newname as a symbolic link to oldname.
func (m *TargetMemory) CreateSymlink(oldname string, newname string, overwrite bool) error {
	if err := m.prepareOverwrite(newname, overwrite, true); err != nil {
		return err
	}
	if err := m.fs.Symlink(oldname, newname); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	return nil
}

// CreateHardlink stores a copy of oldname at newname.
func (m *TargetMemory) CreateHardlink(oldname string, newname string, overwrite bool) error {
	stat, err := m.fs.Lstat(oldname)
	if err != nil {
		return fmt.Errorf("failed to stat link target: %w", err)
	}
	if !stat.Mode().IsRegular() {
		return fmt.Errorf("link target is not a regular file")
	}
	if err := m.prepareOverwrite(newname, overwrite, true); err != nil {
		return err
	}

	src, err := m.fs.Open(oldname)
	if err != nil {
		return fmt.Errorf("failed to open link target: %w", err)
	}
	defer src.Close()

	dst, err := m.fs.OpenFile(newname, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, stat.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create hard link: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy link target: %w", err)
	}
	return dst.Close()
}

// prepareOverwrite works like [TargetDisk.prepareOverwrite].
func (m *TargetMemory) prepareOverwrite(path string, overwrite bool, always bool) error {
	stat, err := m.fs.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if !overwrite {
		return ErrAlreadyExists
	}
	if stat.Mode().IsRegular() && !always {
		return nil
	}
	if err := m.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to overwrite file: %w", err)
	}
	return nil
}

// Lstat returns the FileInfo of path without following a symlink.
func (m *TargetMemory) Lstat(path string) (fs.FileInfo, error) {
	return m.fs.Lstat(path)
}

// Stat returns the FileInfo of path.
func (m *TargetMemory) Stat(path string) (fs.FileInfo, error) {
	return m.fs.Stat(path)
}

// Readlink returns the destination of the symlink path.
func (m *TargetMemory) Readlink(path string) (string, error) {
	return m.fs.Readlink(path)
}

// Chmod changes the mode of name, if the filesystem supports it.
func (m *TargetMemory) Chmod(name string, mode fs.FileMode) error {
	if c, ok := m.fs.(billy.Change); ok {
		return c.Chmod(name, mode.Perm())
	}
	return nil
}

// Chtimes changes the times of name, if the filesystem supports it.
func (m *TargetMemory) Chtimes(name string, atime, mtime time.Time) error {
	if c, ok := m.fs.(billy.Change); ok {
		return c.Chtimes(name, atime, mtime)
	}
	return nil
}

// Lchtimes is a no-op, billy does not offer timestamps on symlinks.
func (m *TargetMemory) Lchtimes(name string, atime, mtime time.Time) error {
	return nil
}

// Chown changes the owner of name without following a symlink, if the
// filesystem supports it.
func (m *TargetMemory) Chown(name string, uid, gid int) error {
	if c, ok := m.fs.(billy.Change); ok {
		return c.Lchown(name, uid, gid)
	}
	return nil
}
