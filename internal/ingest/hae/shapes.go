package hae

import "encoding/json"

// MetricKind identifies which daily field an HAE metric feeds.
type MetricKind int

const (
	KindUnsupported MetricKind = iota
	KindHRV                    // heart_rate_variability, {"qty": ms}
	KindRestingHR              // resting_heart_rate, {"qty": bpm}
	KindSleep                  // sleep_analysis, aggregated or per-stage
)

// DetectMetricKind returns the daily field a metric name maps to.
func DetectMetricKind(name string) MetricKind {
	switch name {
	case "heart_rate_variability", "heart_rate_variability_sdnn":
		return KindHRV
	case "resting_heart_rate":
		return KindRestingHR
	case "sleep_analysis":
		return KindSleep
	default:
		return KindUnsupported
	}
}

// SleepFormat describes whether sleep data is aggregated or per-stage.
type SleepFormat int

const (
	SleepFormatAggregated   SleepFormat = iota // Has "totalSleep" field
	SleepFormatUnaggregated                    // Has "startDate" field
)

// DetectSleepFormat examines a raw JSON data point to determine if it's aggregated or unaggregated.
func DetectSleepFormat(raw json.RawMessage) SleepFormat {
	// Quick probe: unmarshal into a map and check for distinguishing keys
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return SleepFormatAggregated // fallback
	}
	if _, ok := probe["totalSleep"]; ok {
		return SleepFormatAggregated
	}
	if _, ok := probe["startDate"]; ok {
		return SleepFormatUnaggregated
	}
	return SleepFormatAggregated // fallback
}
