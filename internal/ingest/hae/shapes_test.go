package hae

import (
	"encoding/json"
	"testing"
)

// TestDetectMetricKind verifies the metric names that feed daily fields.
func TestDetectMetricKind(t *testing.T) {
	tests := []struct {
		name string
		want MetricKind
	}{
		{"heart_rate_variability", KindHRV},
		{"resting_heart_rate", KindRestingHR},
		{"sleep_analysis", KindSleep},
		{"heart_rate", KindUnsupported},
		{"weight_body_mass", KindUnsupported},
		{"", KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMetricKind(tt.name); got != tt.want {
				t.Errorf("DetectMetricKind(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

// TestDetectSleepFormatAggregated verifies detection of aggregated sleep data.
// Aggregated sleep has "totalSleep" which distinguishes it from per-stage data.
func TestDetectSleepFormatAggregated(t *testing.T) {
	raw := json.RawMessage(`{"date":"2024-02-06","totalSleep":7.5,"core":3.5,"deep":1.5,"rem":2.0}`)
	if got := DetectSleepFormat(raw); got != SleepFormatAggregated {
		t.Errorf("got %d, want SleepFormatAggregated", got)
	}
}

// TestDetectSleepFormatUnaggregated verifies detection of per-stage sleep data.
// Per-stage data has "startDate" which is absent in aggregated data.
func TestDetectSleepFormatUnaggregated(t *testing.T) {
	raw := json.RawMessage(`{"startDate":"2024-02-05 23:00:00 -0800","endDate":"2024-02-05 23:30:00 -0800","value":"Core","qty":0.5}`)
	if got := DetectSleepFormat(raw); got != SleepFormatUnaggregated {
		t.Errorf("got %d, want SleepFormatUnaggregated", got)
	}
}

// TestDetectSleepFormatGarbage verifies malformed points fall back to the
// aggregated decoder, which then reports the error.
func TestDetectSleepFormatGarbage(t *testing.T) {
	if got := DetectSleepFormat(json.RawMessage(`[1,2]`)); got != SleepFormatAggregated {
		t.Errorf("got %d, want SleepFormatAggregated", got)
	}
}
