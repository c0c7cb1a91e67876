// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// File is a regular file opened for writing by a [Target]. Data blocks are
// written at arbitrary offsets, so the file must be seekable.
type File interface {
	io.Writer
	io.Seeker
	io.Closer

	// Truncate changes the size of the file.
	Truncate(size int64) error
}

// Target specifies all function that are needed to be implemented to extract contents from an archive
type Target interface {
	// CreateFile creates a file at the specified path and opens it for writing. The mode parameter is the file
	// mode that should be set on the file. If an object already exists at path and overwrite is false,
	// [ErrAlreadyExists] should be returned.
	CreateFile(path string, mode fs.FileMode, overwrite bool) (File, error)

	// CreateDir creates at the specified path with the specified mode. If the directory already exists, nothing is done.
	// The function returns an error if there's a problem creating the directory. If the function completes successfully,
	// it returns nil.
	CreateDir(path string, mode fs.FileMode) error

	// CreateSymlink creates a symbolic link from newname to oldname. If newname already exists and overwrite is false,
	// the function returns an error. If newname already exists and overwrite is true, the function may overwrite the
	// existing symlink.
	CreateSymlink(oldname string, newname string, overwrite bool) error

	// CreateHardlink creates newname as a hard link to the file oldname. The overwrite semantics are the same as
	// for CreateSymlink.
	CreateHardlink(oldname string, newname string, overwrite bool) error

	// Lstat see docs for os.Lstat. Main purpose is to check for symlinks in the extraction path
	// and for path traversal attacks.
	Lstat(path string) (fs.FileInfo, error)

	// Stat see docs for os.Stat. Main purpose is to check if a symlink is pointing to a file or directory.
	Stat(path string) (fs.FileInfo, error)

	// Readlink see docs for os.Readlink. It is used to resolve symlinks inside the destination.
	Readlink(path string) (string, error)

	// Chmod see docs for os.Chmod. Main purpose is to set the file mode of a file or directory.
	Chmod(name string, mode fs.FileMode) error

	// Chtimes see docs for os.Chtimes. Main purpose is to set the file times of a file or directory.
	Chtimes(name string, atime, mtime time.Time) error

	// Lchtimes changes the file times of name without following a symlink.
	Lchtimes(name string, atime, mtime time.Time) error

	// Chown see docs for os.Chown. Main purpose is to set the file owner and group of a file or directory.
	Chown(name string, uid, gid int) error
}

// entryPath converts the slash separated path of an entry into a cleaned,
// os specific path relative to the destination. Leading slashes are dropped,
// parent references are kept and rejected by the path checks.
func entryPath(name string) string {
	name = path.Clean(strings.TrimLeft(name, "/"))
	return filepath.FromSlash(name)
}

// resolvePath returns the location of name below dst. The path is checked
// for traversal. Symlinks in the parent directories are rejected, unless
// config.TraverseSymlinks() returns true, then the parent directory is
// resolved without leaving dst. An existing object at name itself is left
// to the overwrite handling of the [Target].
func resolvePath(t Target, dst string, name string, cfg *Config) (string, error) {
	if name == "" || name == "." {
		return dst, nil
	}
	if err := traversalCheck(dst, name); err != nil {
		return "", err
	}

	if !cfg.TraverseSymlinks() {
		if err := securityCheck(t, dst, filepath.Dir(name), cfg); err != nil {
			return "", err
		}
		return filepath.Join(dst, name), nil
	}

	parent, err := securejoin.SecureJoinVFS(dst, filepath.Dir(name), t)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}
	resolved := filepath.Join(parent, filepath.Base(name))
	if lexical := filepath.Join(dst, name); resolved != lexical {
		cfg.Logger().Warn("traverse symlink", "path", lexical, "resolved", resolved)
	}
	return resolved, nil
}

// resolveLeaf works like resolvePath, but refuses names that resolve to dst
// itself.
func resolveLeaf(t Target, dst string, name string, cfg *Config) (string, error) {
	path, err := resolvePath(t, dst, name, cfg)
	if err != nil {
		return "", err
	}
	if path == dst {
		return "", fmt.Errorf("%w: entry resolves to the destination", ErrPathTraversal)
	}
	return path, nil
}

// resolveDir returns the location of the directory name below dst. Unlike
// resolvePath a symlink at name itself is rejected, or followed with
// config.TraverseSymlinks().
func resolveDir(t Target, dst string, name string, cfg *Config) (string, error) {
	if name == "" || name == "." {
		return dst, nil
	}
	if !cfg.TraverseSymlinks() {
		if err := securityCheck(t, dst, name, cfg); err != nil {
			return "", err
		}
		return filepath.Join(dst, name), nil
	}
	if err := traversalCheck(dst, name); err != nil {
		return "", err
	}
	path, err := securejoin.SecureJoinVFS(dst, name, t)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}
	return path, nil
}

// createDir ensures that the directory name exists below dst. Missing
// parents are created with mode as well.
func createDir(t Target, dst string, name string, mode fs.FileMode, cfg *Config) (string, error) {
	path, err := resolveDir(t, dst, name, cfg)
	if err != nil {
		return "", err
	}
	if path == dst {
		return path, nil
	}
	if err := t.CreateDir(path, mode); err != nil {
		return "", err
	}
	return path, nil
}

// createParent ensures that the directory holding name exists below dst.
// Created directories get config.CustomCreateDirMode().
func createParent(t Target, dst string, name string, cfg *Config) error {
	if _, err := createDir(t, dst, filepath.Dir(name), cfg.CustomCreateDirMode(), cfg); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	return nil
}

// createFile creates the parent directories and opens the file name below
// dst for writing.
func createFile(t Target, dst string, name string, mode fs.FileMode, cfg *Config) (string, File, error) {
	if err := createParent(t, dst, name, cfg); err != nil {
		return "", nil, err
	}
	path, err := resolveLeaf(t, dst, name, cfg)
	if err != nil {
		return "", nil, err
	}
	f, err := t.CreateFile(path, mode, cfg.Overwrite())
	if err != nil {
		return "", nil, err
	}
	return path, f, nil
}

// createSymlink is a wrapper around the CreateSymlink function
//
// It checks if the symlink extraction is allowed. The link target is written
// as recorded. With config.StrictSymlinkTargets() absolute targets, targets
// leaving dst and targets through an existing symlink are refused.
func createSymlink(t Target, dst string, name string, linkTarget string, cfg *Config) (string, error) {
	// check if symlink extraction is denied
	if cfg.DenySymlinkExtraction() {
		return "", fmt.Errorf("%w: symlink extraction denied", ErrUnsupportedFile)
	}

	if len(linkTarget) == 0 {
		return "", fmt.Errorf("symlink without target")
	}

	if err := createParent(t, dst, name, cfg); err != nil {
		return "", err
	}

	if cfg.StrictSymlinkTargets() {
		if err := symlinkTargetCheck(t, dst, name, linkTarget, cfg); err != nil {
			return "", err
		}
	}

	path, err := resolveLeaf(t, dst, name, cfg)
	if err != nil {
		return "", err
	}
	if err := t.CreateSymlink(filepath.FromSlash(linkTarget), path, cfg.Overwrite()); err != nil {
		return "", err
	}
	return path, nil
}

// symlinkTargetCheck refuses absolute link targets and targets that leave
// dst relative to the directory of the link. Without
// config.TraverseSymlinks() a target through an existing symlink is refused
// as well.
func symlinkTargetCheck(t Target, dst string, name string, linkTarget string, cfg *Config) error {
	if filepath.IsAbs(linkTarget) || strings.HasPrefix(linkTarget, "/") {
		return fmt.Errorf("%w: symlink with absolute path as target: %s", ErrPathTraversal, linkTarget)
	}

	targetCleaned := filepath.Join(filepath.Dir(name), filepath.FromSlash(linkTarget))
	if err := traversalCheck(dst, targetCleaned); err != nil {
		return fmt.Errorf("symlink target: %w", err)
	}
	if !cfg.TraverseSymlinks() {
		if err := securityCheck(t, dst, targetCleaned, cfg); err != nil {
			return fmt.Errorf("symlink target: %w", err)
		}
	}
	return nil
}

// createHardlink links name to the previously extracted entry linkTarget.
// Both paths are relative to dst.
func createHardlink(t Target, dst string, name string, linkTarget string, cfg *Config) (string, error) {
	oldname := entryPath(linkTarget)
	if oldname == "." {
		return "", fmt.Errorf("hard link without target")
	}
	oldpath, err := resolvePath(t, dst, oldname, cfg)
	if err != nil {
		return "", fmt.Errorf("link target: %w", err)
	}

	if err := createParent(t, dst, name, cfg); err != nil {
		return "", err
	}
	path, err := resolveLeaf(t, dst, name, cfg)
	if err != nil {
		return "", err
	}
	if err := t.CreateHardlink(oldpath, path, cfg.Overwrite()); err != nil {
		return "", err
	}
	return path, nil
}

// traversalCheck returns [ErrPathTraversal] if path leaves dst.
func traversalCheck(dst string, path string) error {
	if len(dst) == 0 && filepath.IsAbs(path) {
		return fmt.Errorf("%w: absolute path", ErrPathTraversal)
	}

	// get relative path from base to new directory target
	rel, err := filepath.Rel(dst, filepath.Join(dst, path))
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}
	// check if the relative path is local
	if !filepath.IsLocal(rel) && rel != "." {
		return ErrPathTraversal
	}
	return nil
}

// securityCheck checks if the path contains path traversal
// and if the path contains a symlink.
//
// The function returns [ErrPathTraversal] if the path leaves dst and
// [ErrSymlinkInPath] if any existing element of the path below dst is a
// symlink.
func securityCheck(t Target, dst string, path string, config *Config) error {
	if err := traversalCheck(dst, path); err != nil {
		return err
	}
	path = filepath.Clean(path)

	// check each dir in path
	targetPathElements := strings.Split(path, string(os.PathSeparator))
	for i := 0; i < len(targetPathElements); i++ {

		// assemble path
		subDirs := filepath.Join(targetPathElements[0 : i+1]...)
		checkDir := filepath.Join(dst, subDirs)

		// check if its a proper path
		if len(checkDir) == 0 || checkDir == "." || subDirs == "." {
			continue
		}

		// check for symlink
		isSymlink, err := isSymlink(t, checkDir)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		if isSymlink {
			config.Logger().Debug("symlink in path", "sub-dir", subDirs)
			return fmt.Errorf("%w: %s", ErrSymlinkInPath, subDirs)
		}
	}

	return nil
}

// isSymlink checks if path is a symlink
//
// The function returns true if the path is a symlink, otherwise false. A
// missing path is not a symlink.
func isSymlink(t Target, path string) (bool, error) {
	// ignore empty checks
	if len(path) == 0 {
		return false, fmt.Errorf("empty path")
	}

	stat, err := t.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}

	// check if we got stats
	if stat == nil {
		return false, fmt.Errorf("failed to get stats")
	}

	return stat.Mode()&fs.ModeSymlink == fs.ModeSymlink, nil
}
