// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package untar_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-untar"
)

// TestDataString tests the String method of the data struct
func TestDataString(t *testing.T) {
	m := untar.TelemetryData{
		ExtractedType:       "tar",
		ExtractionDuration:  time.Duration(5 * time.Millisecond),
		ExtractionSize:      1024,
		ExtractedFiles:      5,
		ExtractedSymlinks:   2,
		ExtractedDirs:       1,
		ExtractionErrors:    1,
		LastExtractionError: fmt.Errorf("example error"),
		InputSize:           2048,
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(m.String()), &decoded); err != nil {
		t.Fatalf("String() is not valid json: %v", err)
	}

	expected := map[string]interface{}{
		"extracted_type":        "tar",
		"extraction_duration":   float64(5 * time.Millisecond),
		"extraction_size":       float64(1024),
		"extracted_files":       float64(5),
		"extracted_symlinks":    float64(2),
		"extracted_dirs":        float64(1),
		"extraction_errors":     float64(1),
		"last_extraction_error": "example error",
		"input_size":            float64(2048),
		"unsupported_files":     float64(0),
	}
	for k, want := range expected {
		if got := decoded[k]; got != want {
			t.Errorf("key %s: expected %v, got %v", k, want, got)
		}
	}
}

// TestDataStringNoError tests that a nil error is rendered as an empty string
func TestDataStringNoError(t *testing.T) {
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(untar.TelemetryData{}.String()), &decoded); err != nil {
		t.Fatalf("String() is not valid json: %v", err)
	}
	if decoded["last_extraction_error"] != "" {
		t.Errorf("expected empty last_extraction_error, got %v", decoded["last_extraction_error"])
	}
}
