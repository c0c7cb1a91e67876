// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The configuration struct holds all configuration options for reading an archive
// and writing its entries. The configuration options can be adjusted using the
// option pattern style.
//
// The default configuration restores modification times, and is designed to
// prevent exhaustion, path traversal and symlink attacks.
type Config struct {
	// chunkSize is the size of the read buffer of file sources and of data blocks
	chunkSize int

	// compression names the input filter, "" detects it from magic bytes
	compression string

	// continueOnUnsupportedFiles offers the option to enable/disable skipping unsupported files
	continueOnUnsupportedFiles bool

	// create destination directory if it does not exist
	createDestination bool

	// customCreateDirMode is the file mode for created directories, that are not defined in the archive (respecting umask)
	customCreateDirMode fs.FileMode

	// denySymlinkExtraction offers the option to enable/disable the extraction of symlinks
	denySymlinkExtraction bool

	// dropFileAttributes is a flag drop the file attributes of the extracted files
	dropFileAttributes bool

	// traverseSymlinks traverses symlinks to directories during extraction
	traverseSymlinks bool

	// logger stream for extraction
	logger logger

	// maxExtractionSize is the maximum size over all written data blocks.
	// Set a negative value to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum of files (including folder and symlinks) in an archive.
	// Set a negative value to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of the input, before decompression.
	// Set a negative value to disable the check.
	maxInputSize int64

	// overwrite defines if existing files in the destination are replaced
	overwrite bool

	// patterns is a list of file patterns to match files to extract
	patterns []string

	// preserveOwner is a flag to preserve the owner of the extracted files
	preserveOwner bool

	// restoreModTime applies the recorded modification time to extracted entries
	restoreModTime bool

	// strictSymlinkTargets rejects symlinks with an absolute target, a target
	// outside the destination or a target through another symlink
	strictSymlinkTargets bool

	// telemetryHook is a function to consume telemetry data after finished extraction
	// Important: do not adjust this value after extraction started
	telemetryHook TelemetryHook
}

// ChunkSize returns the size of read chunks and data blocks in bytes.
func (c *Config) ChunkSize() int {
	return c.chunkSize
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxFilesExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {

	// check if disabled
	if c.MaxFiles() < 0 {
		return nil
	}

	// check value
	if counter > c.MaxFiles() {
		return ErrMaxFilesExceeded
	}
	return nil
}

// CheckExtractionSize checks if size exceeds configured maximum. If the maximum is exceeded,
// a [ErrMaxExtractionSizeExceeded] error is returned.
func (c *Config) CheckExtractionSize(size int64) error {

	// check if disabled
	if c.MaxExtractionSize() < 0 {
		return nil
	}

	// check value
	if size > c.MaxExtractionSize() {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// Compression returns the name of the configured input filter. An empty string
// means the filter is detected from the magic bytes of the input.
func (c *Config) Compression() string {
	return c.compression
}

// ContinueOnUnsupportedFiles returns true if unsupported files, e.g., FIFO, block or
// character devices, should be skipped.
//
// If symlinks are not allowed and a symlink is found, it is considered an unsupported
// file.
func (c *Config) ContinueOnUnsupportedFiles() bool {
	return c.continueOnUnsupportedFiles
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories,
// that are not defined in the archive. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// DenySymlinkExtraction returns true if symlinks are NOT allowed.
func (c *Config) DenySymlinkExtraction() bool {
	return c.denySymlinkExtraction
}

// DropFileAttributes returns true if the file attributes should be dropped.
func (c *Config) DropFileAttributes() bool {
	return c.dropFileAttributes
}

// TraverseSymlinks returns true if symlinks should be traversed during extraction.
func (c *Config) TraverseSymlinks() bool {
	return c.traverseSymlinks
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxExtractionSize returns the maximum size over all extracted files.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum of files (including folder and symlinks) in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of the input.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// Patterns returns a list of unix-filepath patterns to match files to extract
// Patterns are matched using [filepath.Match](https://golang.org/pkg/path/filepath/#Match).
func (c *Config) Patterns() []string {
	return c.patterns
}

// PreserveOwner returns true if the owner of the extracted files should
// be preserved. This option is only available on Unix systems requiring
// root privileges.
func (c *Config) PreserveOwner() bool {
	return c.preserveOwner
}

// RestoreModTime returns true if the modification time recorded in the archive
// is applied to extracted files, directories and symlinks.
func (c *Config) RestoreModTime() bool {
	return c.restoreModTime
}

// StrictSymlinkTargets returns true if symlinks are refused when their target
// is absolute, points outside the destination or passes through another
// symlink. By default the target is written as recorded in the archive.
func (c *Config) StrictSymlinkTargets() bool {
	return c.strictSymlinkTargets
}

// TelemetryHook returns the  telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// matchesPatterns checks if the given path matches any of the configured patterns.
// If no patterns are given, the function returns true.
func (c *Config) matchesPatterns(path string) (bool, error) {

	// no patterns given
	if len(c.patterns) == 0 {
		return true, nil
	}

	// check if path matches any pattern
	for _, pattern := range c.patterns {
		if match, err := filepath.Match(pattern, path); err != nil {
			return false, err
		} else if match {
			return true, nil
		}
	}
	return false, nil
}

const (
	defaultChunkSize                  = DefaultChunkSize // amortize read syscalls
	defaultCompression                = ""               // detect from magic bytes
	defaultContinueOnUnsupportedFiles = false            // stop on unsupported files and return error
	defaultCreateDestination          = false            // don't create destination directory
	defaultCustomCreateDirMode        = 0750             // default directory permissions rwxr-x---
	defaultDenySymlinkExtraction      = false            // allow symlink extraction
	defaultDropFileAttributes         = false            // apply file attributes from archive
	defaultMaxFiles                   = 100000           // 100k files
	defaultMaxExtractionSize          = 1 << (10 * 3)    // 1 Gb
	defaultMaxInputSize               = 1 << (10 * 3)    // 1 Gb
	defaultOverwrite                  = true             // replace existing files
	defaultPreserveOwner              = false            // don't preserve owner
	defaultRestoreModTime             = true             // restore modification times
	defaultStrictSymlinkTargets       = false            // write symlink targets as recorded
	defaultTraverseSymlinks           = false            // don't traverse symlinks
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		chunkSize:                  defaultChunkSize,
		compression:                defaultCompression,
		continueOnUnsupportedFiles: defaultContinueOnUnsupportedFiles,
		createDestination:          defaultCreateDestination,
		customCreateDirMode:        defaultCustomCreateDirMode,
		denySymlinkExtraction:      defaultDenySymlinkExtraction,
		dropFileAttributes:         defaultDropFileAttributes,
		logger:                     defaultLogger,
		maxFiles:                   defaultMaxFiles,
		maxExtractionSize:          defaultMaxExtractionSize,
		maxInputSize:               defaultMaxInputSize,
		overwrite:                  defaultOverwrite,
		preserveOwner:              defaultPreserveOwner,
		restoreModTime:             defaultRestoreModTime,
		strictSymlinkTargets:       defaultStrictSymlinkTargets,
		telemetryHook:              defaultTelemetryHook,
		traverseSymlinks:           defaultTraverseSymlinks,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithChunkSize options pattern function to set the size of read chunks and data
// blocks. Values below one tar block (512 bytes) are raised to 512.
func WithChunkSize(size int) ConfigOption {
	return func(c *Config) {
		if size < blockSize {
			size = blockSize
		}
		c.chunkSize = size
	}
}

// WithCompression options pattern function to set the input filter by name
// ("gz", "bz2", "xz", "zst", "lz4", "sz", "zz", "br" or "none"). An empty
// name detects the filter from the magic bytes of the input.
func WithCompression(name string) ConfigOption {
	return func(c *Config) {
		c.compression = name
	}
}

// WithContinueOnUnsupportedFiles options pattern function to
// enable/disable skipping unsupported files. An unsupported file is a file
// that cannot be created on the target. If symlinks are not allowed
// and a symlink is found, it is considered an unsupported file.
func WithContinueOnUnsupportedFiles(ctd bool) ConfigOption {
	return func(c *Config) {
		c.continueOnUnsupportedFiles = ctd
	}
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories, that are not defined in the archive. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithDenySymlinkExtraction options pattern function to deny symlink extraction.
func WithDenySymlinkExtraction(deny bool) ConfigOption {
	return func(c *Config) {
		c.denySymlinkExtraction = deny
	}
}

// WithDropFileAttributes options pattern function to drop the
// file attributes of the extracted files.
func WithDropFileAttributes(drop bool) ConfigOption {
	return func(c *Config) {
		c.dropFileAttributes = drop
	}
}

// WithInsecureTraverseSymlinks options pattern function to traverse symlinks during extraction.
// Symlinks are resolved, but never outside of the destination.
func WithInsecureTraverseSymlinks(traverse bool) ConfigOption {
	return func(c *Config) {
		c.traverseSymlinks = traverse
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxExtractionSize options pattern function to set maximum size over all
// extracted files. (negative to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set maximum number of extracted, files, directories
// and symlinks during the extraction. (negative to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set MaxInputSize for extraction input file. (negative to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
// Overwriting is enabled by default.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithPatterns options pattern function to set filepath pattern, that files need to match to be extracted.
// Patterns are matched using [pkg/path/filepath.Match].
func WithPatterns(pattern ...string) ConfigOption {
	return func(c *Config) {
		c.patterns = append(c.patterns, pattern...)
	}
}

// WithPreserveOwner options pattern function to preserve the owner of
// the extracted files. This option is only available on Unix systems
// requiring root privileges.
func WithPreserveOwner(preserve bool) ConfigOption {
	return func(c *Config) {
		c.preserveOwner = preserve
	}
}

// WithRestoreModTime options pattern function to enable/disable restoring the
// modification time recorded in the archive.
func WithRestoreModTime(restore bool) ConfigOption {
	return func(c *Config) {
		c.restoreModTime = restore
	}
}

// WithStrictSymlinkTargets options pattern function to refuse symlinks with an
// absolute target, a target outside the destination or a target through
// another symlink.
func WithStrictSymlinkTargets(strict bool) ConfigOption {
	return func(c *Config) {
		c.strictSymlinkTargets = strict
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after extraction.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
