package normalize

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/claude/injuryrisk/internal/models"
)

// RawDaily is one day's health snapshot as read from a device export.
// SleepMinutes may instead be provided in hours via SleepHours.
type RawDaily struct {
	Source       string
	Date         time.Time
	HRVRMSSD     *float64
	HRVScore     *float64
	RestingHR    *float64
	SleepMinutes *float64
	SleepHours   *float64
	SleepScore   *float64
	Readiness    *float64
	StressScore  *float64
}

type fieldRange struct {
	name     string
	min, max float64
}

var (
	rangeHRV     = fieldRange{"hrv_rmssd", 1, 300}
	rangeRHR     = fieldRange{"resting_hr", 25, 150}
	rangeSleep   = fieldRange{"sleep_minutes", 0, 1440}
	rangePercent = fieldRange{"score", 0, 100}
)

// checked returns v when it is finite and within r, otherwise nil and a note.
func checked(v *float64, r fieldRange, name string) (*float64, string) {
	if v == nil {
		return nil, ""
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < r.min || *v > r.max {
		return nil, fmt.Sprintf("%s %.1f outside [%g, %g]", name, *v, r.min, r.max)
	}
	x := *v
	return &x, ""
}

// Daily validates one snapshot field by field. Out-of-range fields are
// dropped with a note; a snapshot left without any field is rejected.
func Daily(r RawDaily) (models.DailyMetric, []string, error) {
	if r.Date.IsZero() {
		return models.DailyMetric{}, nil, fmt.Errorf("missing date")
	}
	sleep := r.SleepMinutes
	if sleep == nil && r.SleepHours != nil {
		m := *r.SleepHours * 60
		sleep = &m
	}

	var notes []string
	d := models.DailyMetric{Date: models.Day(r.Date), Source: r.Source}
	assign := func(dst **float64, v *float64, rg fieldRange, name string) {
		got, note := checked(v, rg, name)
		*dst = got
		if note != "" {
			notes = append(notes, note)
		}
	}
	assign(&d.HRVRMSSD, r.HRVRMSSD, rangeHRV, rangeHRV.name)
	assign(&d.HRVScore, r.HRVScore, rangePercent, "hrv_score")
	assign(&d.RestingHR, r.RestingHR, rangeRHR, rangeRHR.name)
	assign(&d.SleepMinutes, sleep, rangeSleep, rangeSleep.name)
	assign(&d.SleepScore, r.SleepScore, rangePercent, "sleep_score")
	assign(&d.Readiness, r.Readiness, rangePercent, "readiness")
	assign(&d.StressScore, r.StressScore, rangePercent, "stress_score")

	if d.Empty() {
		return models.DailyMetric{}, notes, fmt.Errorf("no usable measurement")
	}
	return d, notes, nil
}

// Merge folds b into a for the same date. The lowest resting HR wins since
// device readings taken later in the day run high; every other field keeps
// the first non-empty value.
func Merge(a, b models.DailyMetric) models.DailyMetric {
	first := func(x, y *float64) *float64 {
		if x != nil {
			return x
		}
		return y
	}
	if b.RestingHR != nil && (a.RestingHR == nil || *b.RestingHR < *a.RestingHR) {
		a.RestingHR = b.RestingHR
	}
	a.HRVRMSSD = first(a.HRVRMSSD, b.HRVRMSSD)
	a.HRVScore = first(a.HRVScore, b.HRVScore)
	a.SleepMinutes = first(a.SleepMinutes, b.SleepMinutes)
	a.SleepScore = first(a.SleepScore, b.SleepScore)
	a.Readiness = first(a.Readiness, b.Readiness)
	a.StressScore = first(a.StressScore, b.StressScore)
	if a.Source == "" {
		a.Source = b.Source
	}
	return a
}

// DailyMetrics converts a batch into at most one snapshot per date, sorted
// by date.
func DailyMetrics(raw []RawDaily) ([]models.DailyMetric, []string) {
	var errs []string
	byDate := make(map[time.Time]models.DailyMetric)
	for _, r := range raw {
		d, notes, err := Daily(r)
		for _, n := range notes {
			errs = append(errs, fmt.Sprintf("metrics %s: %s", r.Date.Format(time.DateOnly), n))
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("metrics %s: %v", r.Date.Format(time.DateOnly), err))
			continue
		}
		if prev, ok := byDate[d.Date]; ok {
			d = Merge(prev, d)
		}
		byDate[d.Date] = d
	}

	out := make([]models.DailyMetric, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, errs
}

// Symptom clamps every score field into [0, 10] and truncates the date.
func Symptom(s models.SymptomEntry) models.SymptomEntry {
	clamp := func(v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return math.Max(0, math.Min(10, v))
	}
	s.Date = models.Day(s.Date)
	s.PainScore = clamp(s.PainScore)
	s.MuscleSoreness = clamp(s.MuscleSoreness)
	s.Fatigue = clamp(s.Fatigue)
	s.SleepQuality = clamp(s.SleepQuality)
	if s.PerceivedReadiness != nil {
		r := clamp(*s.PerceivedReadiness)
		s.PerceivedReadiness = &r
	}
	return s
}

// PlannedSession validates a proposed session.
func PlannedSession(p models.PlannedSession) (models.PlannedSession, error) {
	st, ok := models.ParseSportType(string(p.SportType))
	if !ok {
		return p, fmt.Errorf("unknown sport_type %q", p.SportType)
	}
	p.SportType = st
	if !(p.DurationMinutes > 0) || math.IsInf(p.DurationMinutes, 0) {
		return p, fmt.Errorf("duration_minutes must be > 0")
	}
	zone, ok := models.ParseIntensityZone(string(p.IntensityZone))
	if !ok {
		return p, fmt.Errorf("intensity must be Z1..Z5, got %q", p.IntensityZone)
	}
	p.IntensityZone = zone
	if p.ScheduledDate.IsZero() {
		return p, fmt.Errorf("scheduled_date is required")
	}
	p.ScheduledDate = models.Day(p.ScheduledDate)
	return p, nil
}
