// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// Extract replays all entries of a onto w. The first failure ends the
// extraction and is returned. Entries written before the failure are left in
// place, and neither handle is closed; see [Cleanup].
//
// ctx is checked between entries, an entry that has been started is always
// finished or fails the extraction. After the extraction the telemetry hook
// of the writer's configuration receives the collected [TelemetryData].
func Extract(ctx context.Context, a *Archive, w *Writer) error {
	cfg := w.cfg

	// prepare telemetry data collection and emit
	td := &TelemetryData{ExtractedType: a.Type()}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureExtractionDuration(td, now())
	defer captureSizes(td, a, w)

	cfg.Logger().Info("extracting", "type", a.Type())
	for {
		// check if context is canceled
		if err := ctx.Err(); err != nil {
			return handleError(cfg, td, fmt.Errorf("context error: %w", err))
		}

		e, err := a.NextEntry()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return handleError(cfg, td, err)
		}

		// check if file name matches the patterns
		match, err := cfg.matchesPatterns(e.Name)
		if err != nil {
			return handleError(cfg, td, newError(OpWriteHeader, e.Name, fmt.Errorf("invalid pattern: %w", err)))
		}
		if !match {
			cfg.Logger().Debug("skipped, does not match patterns", "name", e.Name)
			td.PatternMismatches++
			a.Skip()
			continue
		}

		if err := extractEntry(a, w, e); err != nil {
			if errors.Is(err, ErrUnsupportedFile) && cfg.ContinueOnUnsupportedFiles() {
				cfg.Logger().Info("skipped unsupported file", "name", e.Name, "type", e.Type)
				td.UnsupportedFiles++
				td.LastUnsupportedFile = e.Name
				a.Skip()
				continue
			}
			return handleError(cfg, td, err)
		}

		switch e.Type {
		case TypeDirectory:
			td.ExtractedDirs++
		case TypeRegular:
			td.ExtractedFiles++
		case TypeSymlink:
			td.ExtractedSymlinks++
		case TypeHardlink:
			td.ExtractedLinks++
		}
	}
}

// extractEntry writes the header, all data blocks and finishes e.
func extractEntry(a *Archive, w *Writer, e Entry) error {
	if err := w.WriteHeader(e); err != nil {
		return err
	}
	for {
		b, err := a.NextDataBlock()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := w.WriteDataBlock(b); err != nil {
			return err
		}
	}
	return w.FinishEntry()
}

// handleError records err in td and returns it.
func handleError(c *Config, td *TelemetryData, err error) error {

	// increase error counter and set error
	td.ExtractionErrors++
	td.LastExtractionError = err
	c.Logger().Error("extraction failed", "error", err)

	// end extraction on error
	return err
}

// captureSizes stores input and output sizes in td.
func captureSizes(td *TelemetryData, a *Archive, w *Writer) {
	td.InputSize = a.InputSize()
	td.ExtractionSize = w.BytesWritten()
}

// Cleanup closes a and w. It is safe to call after a successful or a failed
// [Extract]. Nil handles are ignored, failures of both handles are combined.
func Cleanup(a *Archive, w *Writer) error {
	var result error
	if a != nil {
		if err := a.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if w != nil {
		if err := w.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// UnpackFile extracts the archive at path into dst of t. The archive is read
// incrementally from disk.
func UnpackFile(ctx context.Context, path string, dst string, t Target, cfg *Config) error {
	a, err := OpenFile(path, cfg)
	if err != nil {
		return err
	}
	return unpack(ctx, a, dst, t, cfg)
}

// UnpackBuffer extracts the archive held in buf into dst of t.
func UnpackBuffer(ctx context.Context, buf []byte, dst string, t Target, cfg *Config) error {
	a, err := OpenMemory(buf, cfg)
	if err != nil {
		return err
	}
	return unpack(ctx, a, dst, t, cfg)
}

func unpack(ctx context.Context, a *Archive, dst string, t Target, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}
	w, err := NewWriter(t, dst, cfg)
	if err != nil {
		a.Close()
		return err
	}

	err = Extract(ctx, a, w)
	if cerr := Cleanup(a, w); cerr != nil {
		if err != nil {
			cfg.Logger().Warn("cleanup failed", "error", cerr)
			return err
		}
		return cerr
	}
	return err
}
