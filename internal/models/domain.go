package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SportType is the canonical activity category.
type SportType string

const (
	SportRunning  SportType = "running"
	SportCycling  SportType = "cycling"
	SportSwimming SportType = "swimming"
	SportStrength SportType = "strength"
	SportHIIT     SportType = "hiit"
	SportYoga     SportType = "yoga"
	SportOther    SportType = "other"

	// SportRest is only produced by the recommender for a full rest day.
	SportRest SportType = "rest"
)

// ParseSportType returns the canonical sport for an exact enum value.
func ParseSportType(s string) (SportType, bool) {
	switch st := SportType(strings.ToLower(strings.TrimSpace(s))); st {
	case SportRunning, SportCycling, SportSwimming, SportStrength, SportHIIT, SportYoga, SportOther:
		return st, true
	}
	return "", false
}

// IntensityZone is a heart-rate based effort band, Z1 (recovery) to Z5 (VO2max).
type IntensityZone string

const (
	ZoneUnknown IntensityZone = ""
	Z1          IntensityZone = "Z1"
	Z2          IntensityZone = "Z2"
	Z3          IntensityZone = "Z3"
	Z4          IntensityZone = "Z4"
	Z5          IntensityZone = "Z5"
)

// Level returns 1..5 for a known zone and 0 otherwise.
func (z IntensityZone) Level() int {
	switch z {
	case Z1:
		return 1
	case Z2:
		return 2
	case Z3:
		return 3
	case Z4:
		return 4
	case Z5:
		return 5
	}
	return 0
}

// Hard reports whether the zone is threshold work or above.
func (z IntensityZone) Hard() bool {
	return z.Level() >= 4
}

// ZoneFromLevel clamps n into 1..5 and returns the matching zone.
func ZoneFromLevel(n int) IntensityZone {
	switch {
	case n <= 1:
		return Z1
	case n == 2:
		return Z2
	case n == 3:
		return Z3
	case n == 4:
		return Z4
	}
	return Z5
}

// ParseIntensityZone accepts "Z3", "z3" or "3".
func ParseIntensityZone(s string) (IntensityZone, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 1 {
		s = "Z" + s
	}
	z := IntensityZone(s)
	if z.Level() == 0 {
		return ZoneUnknown, false
	}
	return z, true
}

// RiskLevel is the traffic-light classification.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "GREEN"
	RiskYellow RiskLevel = "YELLOW"
	RiskRed    RiskLevel = "RED"
)

// Severity orders levels GREEN < YELLOW < RED. Unknown levels are 0.
func (l RiskLevel) Severity() int {
	switch l {
	case RiskYellow:
		return 1
	case RiskRed:
		return 2
	}
	return 0
}

// MaxRisk returns the more severe of two levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Workout is a completed training session.
type Workout struct {
	ID              uuid.UUID     `json:"id"`
	UserID          int           `json:"-"`
	Source          string        `json:"source"`
	ExternalID      string        `json:"external_id,omitempty"`
	SportType       SportType     `json:"sport_type"`
	StartTime       time.Time     `json:"start_time"`
	DurationMinutes float64       `json:"duration_minutes"`
	DistanceMeters  *float64      `json:"distance_meters,omitempty"`
	AvgHR           *float64      `json:"avg_hr,omitempty"`
	MaxHR           *float64      `json:"max_hr,omitempty"`
	Calories        *float64      `json:"calories,omitempty"`
	TRIMP           *float64      `json:"trimp,omitempty"`
	IntensityZone   IntensityZone `json:"intensity_zone,omitempty"`
	IngestedAt      time.Time     `json:"ingested_at"`
}

// DailyMetric is one calendar day's physiological snapshot.
type DailyMetric struct {
	UserID       int       `json:"-"`
	Date         time.Time `json:"date"`
	Source       string    `json:"source,omitempty"`
	HRVRMSSD     *float64  `json:"hrv_rmssd,omitempty"`
	HRVScore     *float64  `json:"hrv_score,omitempty"`
	RestingHR    *float64  `json:"resting_hr,omitempty"`
	SleepMinutes *float64  `json:"sleep_minutes,omitempty"`
	SleepScore   *float64  `json:"sleep_score,omitempty"`
	Readiness    *float64  `json:"readiness,omitempty"`
	StressScore  *float64  `json:"stress_score,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Empty reports whether no measurement is present.
func (m DailyMetric) Empty() bool {
	return m.HRVRMSSD == nil && m.HRVScore == nil && m.RestingHR == nil &&
		m.SleepMinutes == nil && m.SleepScore == nil && m.Readiness == nil && m.StressScore == nil
}

// SymptomEntry is the self-reported state for one date.
type SymptomEntry struct {
	UserID             int       `json:"-"`
	Date               time.Time `json:"date"`
	PainScore          float64   `json:"pain_score"`
	PainLocation       string    `json:"pain_location,omitempty"`
	Swelling           bool      `json:"swelling"`
	MuscleSoreness     float64   `json:"muscle_soreness"`
	Fatigue            float64   `json:"fatigue"`
	SleepQuality       float64   `json:"sleep_quality"`
	PerceivedReadiness *float64  `json:"perceived_readiness,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PlannedSession is a proposed or hypothetical workout.
type PlannedSession struct {
	ID              uuid.UUID     `json:"id"`
	UserID          int           `json:"-"`
	SportType       SportType     `json:"sport_type"`
	DurationMinutes float64       `json:"duration_minutes"`
	IntensityZone   IntensityZone `json:"intensity"`
	ScheduledDate   time.Time     `json:"scheduled_date"`
	Notes           string        `json:"notes,omitempty"`
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
