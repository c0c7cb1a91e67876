// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package eventbridge publishes the telemetry data of an extraction as an
// Amazon EventBridge event.
//
// The hook returned by [NewHook] can be passed to untar.WithTelemetryHook:
//
//	client, err := eventbridge.NewClient(ctx)
//	if err != nil {
//		// handle error
//	}
//	cfg := untar.NewConfig(untar.WithTelemetryHook(
//		eventbridge.NewHook(client, eventbridge.WithEventBusName("extractions")),
//	))
package eventbridge
