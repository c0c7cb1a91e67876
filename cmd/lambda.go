// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/pkg/errors"

	"github.com/hashicorp/go-untar"
)

// LambdaRequest describes an extraction of an archive that is reachable from
// a function, e.g. on an attached file system.
type LambdaRequest struct {
	Archive           string   `json:"archive"`
	Destination       string   `json:"destination"`
	InMemory          bool     `json:"in_memory"`
	NoOverwrite       bool     `json:"no_overwrite"`
	Patterns          []string `json:"patterns"`
	MaxFiles          int64    `json:"max_files"`
	MaxExtractionSize int64    `json:"max_extraction_size"`
}

// LambdaHandler extracts the archive of a [LambdaRequest] and responds with
// the telemetry data of the extraction.
type LambdaHandler func(ctx context.Context, req LambdaRequest) (*untar.TelemetryData, error)

// NewLambdaHandler returns a handler that extracts onto t. Additional hooks
// receive the telemetry data of every extraction.
func NewLambdaHandler(t untar.Target, logger *slog.Logger, hooks ...untar.TelemetryHook) LambdaHandler {
	return func(ctx context.Context, req LambdaRequest) (*untar.TelemetryData, error) {
		if req.Archive == "" || req.Destination == "" {
			return nil, errors.New("archive and destination are required")
		}

		log := logger
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			log = logger.With("request_id", lc.AwsRequestID)
		}

		td := &untar.TelemetryData{}
		opts := []untar.ConfigOption{
			untar.WithCreateDestination(true),
			untar.WithLogger(log),
			untar.WithOverwrite(!req.NoOverwrite),
			untar.WithPatterns(req.Patterns...),
			untar.WithTelemetryHook(func(ctx context.Context, data *untar.TelemetryData) {
				*td = *data
				for _, hook := range hooks {
					hook(ctx, data)
				}
			}),
		}
		if req.MaxFiles != 0 {
			opts = append(opts, untar.WithMaxFiles(req.MaxFiles))
		}
		if req.MaxExtractionSize != 0 {
			opts = append(opts, untar.WithMaxExtractionSize(req.MaxExtractionSize))
		}
		cfg := untar.NewConfig(opts...)

		var err error
		if req.InMemory {
			var buf []byte
			if buf, err = untar.LoadFile(req.Archive, cfg.MaxInputSize()); err == nil {
				err = untar.UnpackBuffer(ctx, buf, req.Destination, t, cfg)
			}
		} else {
			err = untar.UnpackFile(ctx, req.Archive, req.Destination, t, cfg)
		}
		if err != nil {
			log.Error("extraction failed", "archive", req.Archive, "error", err)
			return td, errors.Wrapf(err, "cannot extract %s", req.Archive)
		}

		log.Info("extraction finished", "archive", req.Archive, "telemetry", td)
		return td, nil
	}
}
