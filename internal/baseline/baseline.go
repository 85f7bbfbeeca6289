// Package baseline derives rolling per-user statistics from record history:
// HRV, resting HR and sleep baselines, and the acute:chronic load ratio.
// Every output is a pure function of the supplied history and reference date.
package baseline

import (
	"math"
	"sort"
	"time"

	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/thresholds"
	"gonum.org/v1/gonum/stat"
)

// Field is the rolling statistic for one daily measurement.
type Field struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
	// LowConfidence is set when Count is below the configured minimum.
	LowConfidence bool `json:"low_confidence"`
}

// Usable reports whether the field may feed z-score based scoring.
func (f Field) Usable() bool {
	return f.Count > 0 && !f.LowConfidence
}

// Z returns the z-score of v against the baseline, with σ floored at floor.
// The second return is false when the baseline is not usable.
func (f Field) Z(v, floor float64) (float64, bool) {
	if !f.Usable() {
		return 0, false
	}
	sigma := math.Max(f.StdDev, floor)
	return (v - f.Mean) / sigma, true
}

// UserBaseline is the rolling reference over the trailing window.
type UserBaseline struct {
	HRV        Field `json:"hrv"`
	RHR        Field `json:"rhr"`
	Sleep      Field `json:"sleep"`
	WindowDays int   `json:"window_days"`
	// SampleCount is the number of days with at least one measurement.
	SampleCount int `json:"sample_count"`
}

// LowConfidenceFields counts baseline fields that cannot be used.
func (b UserBaseline) LowConfidenceFields() int {
	n := 0
	for _, f := range []Field{b.HRV, b.RHR, b.Sleep} {
		if !f.Usable() {
			n++
		}
	}
	return n
}

// LoadState is the training-load snapshot.
type LoadState struct {
	AcuteLoad   float64 `json:"acute_load"`
	ChronicLoad float64 `json:"chronic_load"`
	// ChronicWeekly is ChronicLoad normalized to a 7-day rate.
	ChronicWeekly float64 `json:"chronic_weekly"`
	// ACWR is 1.0 (neutral) when Defined is false.
	ACWR    float64 `json:"acwr"`
	Defined bool    `json:"defined"`
}

// Ratio computes ACWR from raw window sums. chronicWeeks converts the chronic
// sum into a weekly rate. The ratio is neutral (1.0, false) when chronic load
// is zero.
func Ratio(acuteSum, chronicSum, chronicWeeks float64) (float64, bool) {
	if chronicWeeks <= 0 {
		return 1.0, false
	}
	weekly := chronicSum / chronicWeeks
	if weekly <= 0 {
		return 1.0, false
	}
	return acuteSum / weekly, true
}

// Today is the reference day's measurements, or nil where absent.
type Today struct {
	HRV          *float64 `json:"hrv,omitempty"`
	RHR          *float64 `json:"rhr,omitempty"`
	SleepMinutes *float64 `json:"sleep_minutes,omitempty"`
	SleepScore   *float64 `json:"sleep_score,omitempty"`
}

// TypicalSession summarizes the user's recent sessions.
type TypicalSession struct {
	Load            float64              `json:"load"`
	SportType       models.SportType     `json:"sport_type"`
	DurationMinutes float64              `json:"duration_minutes"`
	Zone            models.IntensityZone `json:"zone"`
	Count           int                  `json:"count"`
}

// TrainingContext holds the workout-history facts the rules and scorer need.
type TrainingContext struct {
	// DaysSinceLastWorkout is nil when the user has never trained before
	// the reference date.
	DaysSinceLastWorkout    *int           `json:"days_since_last_workout,omitempty"`
	ConsecutiveTrainingDays int            `json:"consecutive_training_days"`
	HardSessionToday        bool           `json:"hard_session_today"`
	Typical                 TypicalSession `json:"typical"`
}

// ConsecutiveRestDays returns the number of full rest days immediately
// before the reference date. The second return is false without history.
func (c TrainingContext) ConsecutiveRestDays() (int, bool) {
	if c.DaysSinceLastWorkout == nil {
		return 0, false
	}
	return max(*c.DaysSinceLastWorkout-1, 0), true
}

// Snapshot is everything derived for one user at one reference date.
type Snapshot struct {
	Date     time.Time       `json:"date"`
	Baseline UserBaseline    `json:"baseline"`
	Load     LoadState       `json:"load"`
	Today    Today           `json:"today"`
	Training TrainingContext `json:"training"`
}

// History is the already-fetched record history for one user.
type History struct {
	UserID   int
	Workouts []models.Workout
	Metrics  []models.DailyMetric
	// LastWorkout is the start of the newest workout before the reference
	// day, looked up over all history rather than the loaded window.
	LastWorkout *time.Time
	// LatestIngest is the newest ingestion timestamp, used as cache key.
	LatestIngest time.Time
}

// WorkoutLoad returns TRIMP when present, otherwise duration × zone weight.
// A stored TRIMP of zero (average HR at or below resting) is a real zero.
func WorkoutLoad(w models.Workout, cfg thresholds.Baseline) float64 {
	if w.TRIMP != nil && *w.TRIMP >= 0 {
		return *w.TRIMP
	}
	weight := cfg.UnknownZoneWeight
	if lvl := w.IntensityZone.Level(); lvl > 0 {
		weight = cfg.ZoneWeights[lvl-1]
	}
	return w.DurationMinutes * weight
}

// Compute derives the snapshot for ref. It never fails; missing data yields
// low-confidence fields and an undefined load ratio.
func Compute(h History, ref time.Time, cfg thresholds.Baseline) Snapshot {
	day := models.Day(ref)
	return Snapshot{
		Date:     day,
		Baseline: computeBaseline(h.Metrics, day, cfg),
		Load:     computeLoad(h.Workouts, day, cfg),
		Today:    today(h.Metrics, day),
		Training: training(h, day, cfg),
	}
}

func field(values []float64, minSamples int) Field {
	f := Field{Count: len(values), LowConfidence: len(values) < minSamples}
	if len(values) == 0 {
		return f
	}
	f.Mean, f.StdDev = stat.MeanStdDev(values, nil)
	if len(values) < 2 || math.IsNaN(f.StdDev) {
		f.StdDev = 0
	}
	return f
}

// computeBaseline uses the window strictly before day so today's value is
// compared against history rather than itself.
func computeBaseline(metrics []models.DailyMetric, day time.Time, cfg thresholds.Baseline) UserBaseline {
	from := day.AddDate(0, 0, -cfg.WindowDays)
	var hrv, rhr, sleep []float64
	days := 0
	for _, m := range metrics {
		d := models.Day(m.Date)
		if d.Before(from) || !d.Before(day) {
			continue
		}
		if m.HRVRMSSD != nil {
			hrv = append(hrv, *m.HRVRMSSD)
		}
		if m.RestingHR != nil {
			rhr = append(rhr, *m.RestingHR)
		}
		if m.SleepMinutes != nil {
			sleep = append(sleep, *m.SleepMinutes)
		}
		if m.HRVRMSSD != nil || m.RestingHR != nil || m.SleepMinutes != nil {
			days++
		}
	}
	return UserBaseline{
		HRV:         field(hrv, cfg.MinSamples),
		RHR:         field(rhr, cfg.MinSamples),
		Sleep:       field(sleep, cfg.MinSamples),
		WindowDays:  cfg.WindowDays,
		SampleCount: days,
	}
}

// inWindow reports whether t falls within the n calendar days ending on day.
func inWindow(t, day time.Time, n int) bool {
	d := models.Day(t)
	return !d.After(day) && d.After(day.AddDate(0, 0, -n))
}

func computeLoad(workouts []models.Workout, day time.Time, cfg thresholds.Baseline) LoadState {
	var acute, chronic float64
	for _, w := range workouts {
		load := WorkoutLoad(w, cfg)
		if inWindow(w.StartTime, day, cfg.AcuteDays) {
			acute += load
		}
		if inWindow(w.StartTime, day, cfg.ChronicDays) {
			chronic += load
		}
	}
	weeks := float64(cfg.ChronicDays) / float64(cfg.AcuteDays)
	ratio, ok := Ratio(acute, chronic, weeks)
	return LoadState{
		AcuteLoad:     acute,
		ChronicLoad:   chronic,
		ChronicWeekly: chronic / weeks,
		ACWR:          ratio,
		Defined:       ok,
	}
}

func today(metrics []models.DailyMetric, day time.Time) Today {
	var t Today
	for _, m := range metrics {
		if !models.Day(m.Date).Equal(day) {
			continue
		}
		if m.HRVRMSSD != nil {
			t.HRV = m.HRVRMSSD
		}
		if m.RestingHR != nil {
			t.RHR = m.RestingHR
		}
		if m.SleepMinutes != nil {
			t.SleepMinutes = m.SleepMinutes
		}
		if m.SleepScore != nil {
			t.SleepScore = m.SleepScore
		}
	}
	return t
}

func training(h History, day time.Time, cfg thresholds.Baseline) TrainingContext {
	var tc TrainingContext
	trained := make(map[time.Time]bool)
	var recent []models.Workout
	var last time.Time

	for _, w := range h.Workouts {
		d := models.Day(w.StartTime)
		if !inWindow(d, day, cfg.ChronicDays) {
			continue
		}
		trained[d] = true
		recent = append(recent, w)
		if d.Equal(day) && w.IntensityZone.Hard() {
			tc.HardSessionToday = true
		}
		if d.Before(day) && d.After(last) {
			last = d
		}
	}

	if h.LastWorkout != nil {
		if d := models.Day(*h.LastWorkout); d.Before(day) && d.After(last) {
			last = d
		}
	}
	if !last.IsZero() {
		n := int(day.Sub(last).Hours() / 24)
		tc.DaysSinceLastWorkout = &n
	}
	for d := day.AddDate(0, 0, -1); trained[d]; d = d.AddDate(0, 0, -1) {
		tc.ConsecutiveTrainingDays++
	}
	tc.Typical = typical(recent, cfg)
	return tc
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return stat.Quantile(0.5, stat.Empirical, s, nil)
}

func typical(ws []models.Workout, cfg thresholds.Baseline) TypicalSession {
	if len(ws) == 0 {
		return TypicalSession{}
	}
	loads := make([]float64, 0, len(ws))
	durations := make([]float64, 0, len(ws))
	sports := make(map[models.SportType]int)
	zones := make(map[models.IntensityZone]int)
	for _, w := range ws {
		loads = append(loads, WorkoutLoad(w, cfg))
		durations = append(durations, w.DurationMinutes)
		sports[w.SportType]++
		if w.IntensityZone != models.ZoneUnknown {
			zones[w.IntensityZone]++
		}
	}
	return TypicalSession{
		Load:            median(loads),
		SportType:       mode(sports, models.SportOther),
		DurationMinutes: median(durations),
		Zone:            mode(zones, models.Z2),
		Count:           len(ws),
	}
}

// mode returns the most frequent key, breaking ties by key order so the
// result is deterministic.
func mode[K ~string](counts map[K]int, fallback K) K {
	best, bestN := fallback, 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
