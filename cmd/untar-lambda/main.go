// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/hashicorp/go-untar"
	"github.com/hashicorp/go-untar/cmd"
	"github.com/hashicorp/go-untar/telemetry/eventbridge"
)

// main starts the untar function handler
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var hooks []untar.TelemetryHook
	if bus := os.Getenv("UNTAR_EVENT_BUS"); bus != "" {
		client, err := eventbridge.NewClient(context.Background())
		if err != nil {
			logger.Error("cannot create eventbridge client", "error", err)
			os.Exit(1)
		}
		hooks = append(hooks, eventbridge.NewHook(client,
			eventbridge.WithEventBusName(bus),
			eventbridge.WithLogger(logger),
		))
	}

	lambda.Start(cmd.NewLambdaHandler(untar.NewTargetDisk(), logger, hooks...))
}
