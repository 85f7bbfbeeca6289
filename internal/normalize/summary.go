package normalize

import (
	"fmt"
	"time"

	"github.com/claude/injuryrisk/internal/models"
)

// maxErrors caps the error list returned to clients.
const maxErrors = 50

// Summary assembles an ImportSummary. The import succeeds when at least one
// record was usable, or when there was nothing to import and nothing failed.
func Summary(imported, skipped, metrics int, errs []string) models.ImportSummary {
	usable := imported + skipped + metrics
	s := models.ImportSummary{
		Success:          usable > 0 || len(errs) == 0,
		WorkoutsImported: imported,
		WorkoutsSkipped:  skipped,
		MetricsImported:  metrics,
		Errors:           []string{},
	}
	if len(errs) > maxErrors {
		s.Errors = append(s.Errors, errs[:maxErrors]...)
		s.Errors = append(s.Errors, fmt.Sprintf("... and %d more", len(errs)-maxErrors))
	} else {
		s.Errors = append(s.Errors, errs...)
	}

	switch {
	case !s.Success:
		s.Message = fmt.Sprintf("Import failed: no usable records (%d errors)", len(errs))
	case usable == 0:
		s.Message = "Nothing to import"
	default:
		s.Message = fmt.Sprintf("Imported %d workouts (%d skipped) and %d daily metrics", imported, skipped, metrics)
	}
	return s
}

// Stats summarizes canonical records into counts and the covered date range.
func Stats(workouts []models.Workout, metrics []models.DailyMetric) models.ImportStats {
	var earliest, latest time.Time
	see := func(t time.Time) {
		d := models.Day(t)
		if earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
		if latest.IsZero() || d.After(latest) {
			latest = d
		}
	}
	for _, w := range workouts {
		see(w.StartTime)
	}
	for _, m := range metrics {
		see(m.Date)
	}
	return models.ImportStats{
		TotalWorkouts: len(workouts),
		TotalMetrics:  len(metrics),
		DateRange:     DateRange(earliest, latest),
	}
}

// DateRange formats a span as calendar dates. Zero times stay empty.
func DateRange(earliest, latest time.Time) models.DateRange {
	var r models.DateRange
	if !earliest.IsZero() {
		r.Earliest = earliest.Format(time.DateOnly)
	}
	if !latest.IsZero() {
		r.Latest = latest.Format(time.DateOnly)
	}
	return r
}
