// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/hashicorp/go-untar"
	"github.com/hashicorp/go-untar/telemetry/eventbridge"
)

// CLI are the cli parameters for untar binary
type CLI struct {
	Archive               string           `arg:"" name:"archive" help:"Path to the tar archive." type:"path"`
	Destination           string           `arg:"" name:"destination" default:"." help:"Output directory."`
	ChunkSize             int              `optional:"" default:"10240" help:"Size of read chunks and data blocks (in bytes)."`
	Compression           string           `optional:"" help:"Input compression (gz, bz2, xz, zst, lz4, sz, zz, br or none). Detected if empty."`
	ContinueOnUnsupported bool             `optional:"" help:"Skip unsupported entries instead of failing."`
	CreateDestination     bool             `short:"c" help:"Create destination directory if it does not exist."`
	CustomCreateDirMode   int              `optional:"" default:"488" help:"File mode for created directories that are not part of the archive (decimal, default 0750)."`
	DenySymlinks          bool             `short:"D" help:"Deny symlink extraction."`
	DropAttributes        bool             `optional:"" help:"Do not restore file modes from the archive."`
	EventBus              string           `optional:"" help:"Publish telemetry data to this EventBridge event bus."`
	FollowSymlinks        bool             `short:"F" help:"[Dangerous!] Follow symlinks to directories during extraction."`
	InMemory              bool             `short:"m" help:"Load the archive into memory before extraction."`
	MaxFiles              int64            `optional:"" default:"100000" help:"Maximum files that are extracted before stop. (disable check: -1)"`
	MaxExtractionSize     int64            `optional:"" default:"1073741824" help:"Maximum extraction size that allowed is (in bytes). (disable check: -1)"`
	MaxExtractionTime     int64            `optional:"" default:"60" help:"Maximum time that an extraction should take (in seconds). (disable check: -1)"`
	MaxInputSize          int64            `optional:"" default:"1073741824" help:"Maximum input size that allowed is (in bytes). (disable check: -1)"`
	Metrics               bool             `short:"M" optional:"" default:"false" help:"Print metrics to stderr after extraction."`
	NoOverwrite           bool             `optional:"" help:"Do not replace existing files."`
	NoRestoreMtime        bool             `optional:"" help:"Do not restore modification times."`
	Pattern               []string         `short:"P" optional:"" name:"pattern" help:"Extracted objects need to match shell file name pattern."`
	PreserveOwner         bool             `optional:"" help:"Restore owner and group (requires root)."`
	StrictSymlinks        bool             `optional:"" help:"Reject symlinks with an absolute target, a target outside the destination or through another symlink."`
	Verbose               bool             `short:"v" optional:"" help:"Verbose logging."`
	Version               kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`
}

// Run the entrypoint into untar as a cli tool
func Run(version, commit, date string) {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, version, commit, date))
}

// run parses args, performs the extraction and returns the exit code.
func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer, version, commit, date string) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("untar"),
		kong.Description("A secure tar extraction utility"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)
	if err != nil {
		fmt.Fprintln(stdout, errors.Wrap(err, "cannot initialize cli"))
		return -1
	}
	if _, err := parser.Parse(args); err != nil {
		fmt.Fprintln(stdout, errors.Wrap(err, "invalid arguments"))
		return -1
	}

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if cli.MaxExtractionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second*time.Duration(cli.MaxExtractionTime))
		defer cancel()
	}

	// setup telemetry hooks
	hooks, err := telemetryHooks(ctx, &cli, stderr, logger)
	if err != nil {
		fmt.Fprintln(stdout, errors.Wrap(err, "cannot setup telemetry"))
		return -1
	}

	// process cli params
	cfg := untar.NewConfig(
		untar.WithChunkSize(cli.ChunkSize),
		untar.WithCompression(cli.Compression),
		untar.WithContinueOnUnsupportedFiles(cli.ContinueOnUnsupported),
		untar.WithCreateDestination(cli.CreateDestination),
		untar.WithCustomCreateDirMode(fs.FileMode(cli.CustomCreateDirMode)),
		untar.WithDenySymlinkExtraction(cli.DenySymlinks),
		untar.WithDropFileAttributes(cli.DropAttributes),
		untar.WithInsecureTraverseSymlinks(cli.FollowSymlinks),
		untar.WithLogger(logger),
		untar.WithMaxExtractionSize(cli.MaxExtractionSize),
		untar.WithMaxFiles(cli.MaxFiles),
		untar.WithMaxInputSize(cli.MaxInputSize),
		untar.WithOverwrite(!cli.NoOverwrite),
		untar.WithPatterns(cli.Pattern...),
		untar.WithPreserveOwner(cli.PreserveOwner),
		untar.WithRestoreModTime(!cli.NoRestoreMtime),
		untar.WithStrictSymlinkTargets(cli.StrictSymlinks),
		untar.WithTelemetryHook(hooks),
	)

	// extract archive
	if err := unpack(ctx, &cli, cfg); err != nil {
		fmt.Fprintln(stdout, fmt.Errorf("error during extraction: %w", err))
		return -1
	}
	return 0
}

// unpack opens the archive from disk, or from memory if requested, and
// extracts it into the destination.
func unpack(ctx context.Context, cli *CLI, cfg *untar.Config) error {
	t := untar.NewTargetDisk()
	if !cli.InMemory {
		return untar.UnpackFile(ctx, cli.Archive, cli.Destination, t, cfg)
	}

	buf, err := untar.LoadFile(cli.Archive, cfg.MaxInputSize())
	if err != nil {
		return err
	}
	return untar.UnpackBuffer(ctx, buf, cli.Destination, t, cfg)
}

// telemetryHooks combines the requested telemetry consumers into one hook.
func telemetryHooks(ctx context.Context, cli *CLI, stderr io.Writer, logger *slog.Logger) (untar.TelemetryHook, error) {
	var hooks []untar.TelemetryHook

	if cli.Metrics {
		hooks = append(hooks, func(ctx context.Context, td *untar.TelemetryData) {
			fmt.Fprintln(stderr, metricsLine(td))
		})
	}

	if cli.EventBus != "" {
		client, err := eventbridge.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, eventbridge.NewHook(client,
			eventbridge.WithEventBusName(cli.EventBus),
			eventbridge.WithLogger(logger),
		))
	}

	return func(ctx context.Context, td *untar.TelemetryData) {
		for _, hook := range hooks {
			hook(ctx, td)
		}
	}, nil
}

// metricsLine renders td in a human readable summary.
func metricsLine(td *untar.TelemetryData) string {
	line := fmt.Sprintf("extracted %d files, %d dirs, %d symlinks, %d links (%s) from %s %s input in %s",
		td.ExtractedFiles,
		td.ExtractedDirs,
		td.ExtractedSymlinks,
		td.ExtractedLinks,
		humanize.Bytes(uint64(td.ExtractionSize)),
		humanize.Bytes(uint64(td.InputSize)),
		td.ExtractedType,
		td.ExtractionDuration.Round(time.Millisecond),
	)
	if td.PatternMismatches > 0 || td.UnsupportedFiles > 0 {
		line += fmt.Sprintf(", skipped %s pattern mismatches and %s unsupported files",
			humanize.Comma(td.PatternMismatches),
			humanize.Comma(td.UnsupportedFiles),
		)
	}
	if td.LastExtractionError != nil {
		line += fmt.Sprintf(", failed: %s", td.LastExtractionError)
	}
	return line
}
