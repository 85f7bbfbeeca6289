// Package normalize converts heterogeneous device records into canonical,
// unit-consistent measurements.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/claude/injuryrisk/internal/models"
	"github.com/google/uuid"
)

// Athlete carries the personal constants used to derive zones and TRIMP.
type Athlete struct {
	MaxHR     float64
	RestingHR float64
}

// DefaultAthlete is used when no athlete profile is configured.
func DefaultAthlete() Athlete {
	return Athlete{MaxHR: 190, RestingHR: 60}
}

// RawWorkout is a workout as read from a device export, before unit and
// category normalization.
type RawWorkout struct {
	Source        string
	ExternalID    string
	Sport         string
	StartTime     time.Time
	DurationSec   float64
	Distance      *float64
	DistanceUnits string
	AvgHR         *float64
	MaxHR         *float64
	Energy        *float64
	EnergyUnits   string
	TRIMP         *float64
	Zone          string
}

const (
	minValidHR = 25
	maxValidHR = 250
)

// sportKeywords is checked in order; the first keyword contained in the
// lowercased source name wins.
var sportKeywords = []struct {
	keyword string
	sport   models.SportType
}{
	{"hiit", models.SportHIIT},
	{"high intensity", models.SportHIIT},
	{"crossfit", models.SportHIIT},
	{"interval", models.SportHIIT},
	{"run", models.SportRunning},
	{"jog", models.SportRunning},
	{"cycl", models.SportCycling},
	{"bik", models.SportCycling},
	{"ride", models.SportCycling},
	{"spin", models.SportCycling},
	{"swim", models.SportSwimming},
	{"strength", models.SportStrength},
	{"weight", models.SportStrength},
	{"gym", models.SportStrength},
	{"yoga", models.SportYoga},
	{"pilates", models.SportYoga},
	{"mobility", models.SportYoga},
	{"stretch", models.SportYoga},
}

// Sport maps a free-form activity name onto the canonical sport enum.
func Sport(name string) models.SportType {
	if st, ok := models.ParseSportType(name); ok {
		return st
	}
	lower := strings.ToLower(name)
	for _, k := range sportKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.sport
		}
	}
	return models.SportOther
}

// Meters converts a distance in the given units to meters.
func Meters(v float64, units string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "", "m", "meter", "meters":
		return v, nil
	case "km", "kilometer", "kilometers":
		return v * 1000, nil
	case "mi", "mile", "miles":
		return v * 1609.344, nil
	case "yd", "yard", "yards":
		return v * 0.9144, nil
	}
	return 0, fmt.Errorf("unknown distance unit %q", units)
}

// Kilocalories converts energy in the given units to kcal.
func Kilocalories(v float64, units string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "", "kcal", "cal", "calories":
		return v, nil
	case "kj", "kilojoule", "kilojoules":
		return v / 4.184, nil
	}
	return 0, fmt.Errorf("unknown energy unit %q", units)
}

// ZoneFromHR derives an intensity zone from average heart rate as a
// percentage of max HR.
func ZoneFromHR(avgHR, maxHR float64) models.IntensityZone {
	if avgHR <= 0 || maxHR <= 0 {
		return models.ZoneUnknown
	}
	pct := avgHR / maxHR * 100
	switch {
	case pct < 60:
		return models.Z1
	case pct < 70:
		return models.Z2
	case pct < 80:
		return models.Z3
	case pct < 90:
		return models.Z4
	}
	return models.Z5
}

// TRIMP computes Banister's training impulse from duration and average HR.
func TRIMP(minutes, avgHR float64, a Athlete) float64 {
	if a.MaxHR <= a.RestingHR || minutes <= 0 {
		return 0
	}
	hrr := (avgHR - a.RestingHR) / (a.MaxHR - a.RestingHR)
	hrr = math.Max(0, math.Min(1, hrr))
	return minutes * hrr * 0.64 * math.Exp(1.92*hrr)
}

// DedupKey identifies a workout by source and start time at second precision.
func DedupKey(source string, start time.Time) string {
	return source + "|" + start.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// WorkoutID derives a stable id from the dedup key so re-imports map onto
// the same row.
func WorkoutID(source string, start time.Time) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("workout:"+DedupKey(source, start)))
}

func validHR(v *float64) *float64 {
	if v == nil || *v < minValidHR || *v > maxValidHR {
		return nil
	}
	return v
}

// Workout converts one raw workout. The returned error describes why the
// record was rejected.
func Workout(r RawWorkout, a Athlete) (models.Workout, error) {
	if r.StartTime.IsZero() {
		return models.Workout{}, fmt.Errorf("missing start time")
	}
	if r.Source == "" {
		return models.Workout{}, fmt.Errorf("missing source")
	}
	minutes := r.DurationSec / 60
	if !(minutes > 0) || math.IsInf(minutes, 0) {
		return models.Workout{}, fmt.Errorf("non-positive duration %.0fs", r.DurationSec)
	}

	start := r.StartTime.UTC().Truncate(time.Second)
	w := models.Workout{
		ID:              WorkoutID(r.Source, start),
		Source:          r.Source,
		ExternalID:      r.ExternalID,
		SportType:       Sport(r.Sport),
		StartTime:       start,
		DurationMinutes: minutes,
		AvgHR:           validHR(r.AvgHR),
		MaxHR:           validHR(r.MaxHR),
	}

	if r.Distance != nil && *r.Distance >= 0 {
		m, err := Meters(*r.Distance, r.DistanceUnits)
		if err != nil {
			return models.Workout{}, err
		}
		w.DistanceMeters = &m
	}
	if r.Energy != nil && *r.Energy >= 0 {
		kcal, err := Kilocalories(*r.Energy, r.EnergyUnits)
		if err != nil {
			return models.Workout{}, err
		}
		w.Calories = &kcal
	}

	switch {
	case w.AvgHR != nil:
		w.IntensityZone = ZoneFromHR(*w.AvgHR, a.MaxHR)
	case r.Zone != "":
		w.IntensityZone, _ = models.ParseIntensityZone(r.Zone)
	}

	switch {
	case r.TRIMP != nil && *r.TRIMP >= 0:
		v := *r.TRIMP
		w.TRIMP = &v
	case w.AvgHR != nil:
		v := TRIMP(minutes, *w.AvgHR, a)
		w.TRIMP = &v
	}
	return w, nil
}

// Workouts converts a batch, dropping malformed records and duplicates of
// an earlier record in the same batch. Duplicates are returned as the count
// of skipped records; malformed records add an error message.
func Workouts(raw []RawWorkout, a Athlete) (out []models.Workout, skipped int, errs []string) {
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		w, err := Workout(r, a)
		if err != nil {
			errs = append(errs, fmt.Sprintf("workout %d (%s %s): %v", i+1, r.Source, r.Sport, err))
			continue
		}
		key := DedupKey(w.Source, w.StartTime)
		if seen[key] {
			skipped++
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, skipped, errs
}
