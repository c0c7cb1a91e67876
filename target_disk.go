// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"fmt"
	"io/fs"
	"os"
	"time"
)

// TargetDisk is the struct type that holds all information for interacting with the filesystem
type TargetDisk struct{}

// NewTargetDisk creates a new Os and applies provided options from opts
func NewTargetDisk() *TargetDisk {
	// create object
	td := &TargetDisk{}
	return td
}

// CreateDir creates a directory at the specified path with the specified mode. If the directory already
// exists, nothing is done.
func (d *TargetDisk) CreateDir(path string, mode fs.FileMode) error {

	// create dirs
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("failed to create directory (%w)", err)
	}

	return nil
}

// CreateFile creates a file at the specified path and opens it for writing.
// If an object already exists at path and overwrite is false, [ErrAlreadyExists]
// is returned. Existing regular files are truncated, other objects are removed
// before the file is created.
func (d *TargetDisk) CreateFile(path string, mode fs.FileMode, overwrite bool) (File, error) {
	// Check for path validity and if file existence+overwrite
	if err := d.prepareOverwrite(path, overwrite, false); err != nil {
		return nil, err
	}

	// create dst file
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}

// CreateSymlink creates a symbolic link from newname to oldname. If
// newname already exists and overwrite is false, an error should be returned.
func (d *TargetDisk) CreateSymlink(oldname string, newname string, overwrite bool) error {
	if err := d.prepareOverwrite(newname, overwrite, true); err != nil {
		return err
	}

	// create link
	if err := os.Symlink(oldname, newname); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}

	return nil
}

// CreateHardlink creates newname as a hard link to oldname. If newname
// already exists and overwrite is false, an error should be returned.
func (d *TargetDisk) CreateHardlink(oldname string, newname string, overwrite bool) error {
	if err := d.prepareOverwrite(newname, overwrite, true); err != nil {
		return err
	}

	if err := os.Link(oldname, newname); err != nil {
		return fmt.Errorf("failed to create hard link: %w", err)
	}

	return nil
}

// prepareOverwrite checks if an object exists at path. Without overwrite
// this is an error, otherwise the object is removed. Regular files are kept
// unless always is set, they are truncated on open.
func (d *TargetDisk) prepareOverwrite(path string, overwrite bool, always bool) error {
	stat, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}

	// something wrong with path
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	// check for overwrite
	if !overwrite {
		return ErrAlreadyExists
	}

	if stat.Mode().IsRegular() && !always {
		return nil
	}

	// delete existing object
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to overwrite file: %w", err)
	}
	return nil
}

// Lstat returns the FileInfo structure describing the named file.
// If there is an error, it will be of type *PathError.
func (d *TargetDisk) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

// Stat returns the FileInfo structure describing the named file.
// If there is an error, it will be of type *PathError.
func (d *TargetDisk) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// Readlink returns the destination of the named symbolic link.
func (d *TargetDisk) Readlink(name string) (string, error) {
	return os.Readlink(name)
}

// Chmod changes the mode of the named file to mode.
func (d *TargetDisk) Chmod(name string, mode fs.FileMode) error {
	return os.Chmod(name, mode&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky))
}

// Chtimes changes the access and modification times of the named file.
func (d *TargetDisk) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// Lchtimes changes the access and modification times of the named file.
func (d *TargetDisk) Lchtimes(name string, atime, mtime time.Time) error {
	if canMaintainSymlinkTimestamps {
		return lchtimes(name, atime, mtime)
	}
	return nil
}
