// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package eventbridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents/types"

	"github.com/hashicorp/go-untar"
)

//go:generate mockgen -destination=mock_put_events_api_test.go -package=eventbridge . PutEventsAPI

// PutEventsAPI is the part of the EventBridge client used to publish events.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *cloudwatchevents.PutEventsInput, optFns ...func(*cloudwatchevents.Options)) (*cloudwatchevents.PutEventsOutput, error)
}

const (
	defaultEventBusName = "default"
	defaultSource       = "hashicorp.untar"
	defaultDetailType   = "Extraction Finished"
)

// Option adjusts the events published by a hook.
type Option func(*hook)

// WithEventBusName sets the name or ARN of the event bus.
func WithEventBusName(name string) Option {
	return func(h *hook) {
		h.eventBusName = name
	}
}

// WithSource sets the source of the events.
func WithSource(source string) Option {
	return func(h *hook) {
		h.source = source
	}
}

// WithDetailType sets the detail type of the events.
func WithDetailType(detailType string) Option {
	return func(h *hook) {
		h.detailType = detailType
	}
}

// WithLogger sets the logger that receives publishing failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *hook) {
		h.logger = logger
	}
}

type hook struct {
	client       PutEventsAPI
	eventBusName string
	source       string
	detailType   string
	logger       *slog.Logger
}

// NewClient creates an EventBridge client from the default AWS configuration
// of the environment.
func NewClient(ctx context.Context) (*cloudwatchevents.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot load aws configuration: %w", err)
	}
	return cloudwatchevents.NewFromConfig(cfg), nil
}

// NewHook returns a telemetry hook that publishes the telemetry data of
// every extraction as the JSON detail of one event. Publishing failures are
// logged, they never affect the extraction.
func NewHook(client PutEventsAPI, opts ...Option) untar.TelemetryHook {
	h := &hook{
		client:       client,
		eventBusName: defaultEventBusName,
		source:       defaultSource,
		detailType:   defaultDetailType,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h.publish
}

// publish sends td to the event bus.
func (h *hook) publish(ctx context.Context, td *untar.TelemetryData) {
	if err := h.put(ctx, td); err != nil {
		h.logger.Error("cannot publish telemetry data", "event_bus", h.eventBusName, "error", err)
	}
}

func (h *hook) put(ctx context.Context, td *untar.TelemetryData) error {
	detail, err := td.MarshalJSON()
	if err != nil {
		return fmt.Errorf("cannot encode telemetry data: %w", err)
	}

	out, err := h.client.PutEvents(ctx, &cloudwatchevents.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				Detail:       aws.String(string(detail)),
				DetailType:   aws.String(h.detailType),
				EventBusName: aws.String(h.eventBusName),
				Source:       aws.String(h.source),
			},
		},
	})
	if err != nil {
		return err
	}
	if out.FailedEntryCount > 0 {
		for _, e := range out.Entries {
			if e.ErrorCode != nil {
				return fmt.Errorf("event rejected: %s: %s", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("event rejected")
	}
	return nil
}
