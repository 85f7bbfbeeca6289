// Package thresholds holds every tunable number used by the scoring pipeline.
// A Config value is passed explicitly into the baseline engine, rule evaluator,
// scorer and recommender; nothing reads thresholds from global state.
package thresholds

import (
	"fmt"
	"math"
	"os"

	"github.com/claude/injuryrisk/internal/models"
	"gopkg.in/yaml.v3"
)

// Band maps a measured value to a point addition. Bands are checked in order
// and the first match wins.
type Band struct {
	Below  *float64 `yaml:"below,omitempty"`
	Above  *float64 `yaml:"above,omitempty"`
	Points float64  `yaml:"points"`
}

// Matches reports whether v falls inside the band.
func (b Band) Matches(v float64) bool {
	if b.Below != nil && !(v < *b.Below) {
		return false
	}
	if b.Above != nil && !(v > *b.Above) {
		return false
	}
	return b.Below != nil || b.Above != nil
}

// Bands is an ordered band table.
type Bands []Band

// Points returns the points of the first matching band, or 0.
func (bs Bands) Points(v float64) float64 {
	for _, b := range bs {
		if b.Matches(v) {
			return b.Points
		}
	}
	return 0
}

// Limits clamps a single contribution.
type Limits struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Clamp bounds v to [Min, Max].
func (l Limits) Clamp(v float64) float64 {
	return math.Max(l.Min, math.Min(l.Max, v))
}

// Baseline configures the rolling statistics.
type Baseline struct {
	WindowDays  int     `yaml:"window_days"`
	MinSamples  int     `yaml:"min_samples"`
	SigmaFloor  float64 `yaml:"sigma_floor"`
	AcuteDays   int     `yaml:"acute_days"`
	ChronicDays int     `yaml:"chronic_days"`
	// ZoneWeights[i] is the load per minute for zone i+1 when TRIMP is absent,
	// on the same scale as Banister TRIMP per minute.
	ZoneWeights       [5]float64 `yaml:"zone_weights"`
	UnknownZoneWeight float64    `yaml:"unknown_zone_weight"`
}

// Rules configures the safety rule table.
type Rules struct {
	PainRedAt           float64 `yaml:"pain_red_at"`
	PainModerateAt      float64 `yaml:"pain_moderate_at"`
	ModeratePainMaxZone int     `yaml:"moderate_pain_max_zone"`
	MaxRestDays         int     `yaml:"max_rest_days"`
	HRVSevereZ          float64 `yaml:"hrv_severe_z"`
	RHRElevatedZ        float64 `yaml:"rhr_elevated_z"`
	HRVCriticalZ        float64 `yaml:"hrv_critical_z"`
	RHRCriticalZ        float64 `yaml:"rhr_critical_z"`
	ACWRCritical        float64 `yaml:"acwr_critical"`
	SevereSorenessAt    float64 `yaml:"severe_soreness_at"`
	StackingEnabled     bool    `yaml:"stacking_enabled"`
}

// Scoring configures the heuristic scorer.
type Scoring struct {
	BaseScore float64 `yaml:"base_score"`

	HRVBands        Bands  `yaml:"hrv_z_bands"`
	HRVLimits       Limits `yaml:"hrv_limits"`
	RHRBands        Bands  `yaml:"rhr_z_bands"`
	RHRLimits       Limits `yaml:"rhr_limits"`
	SleepDeltaBands Bands  `yaml:"sleep_delta_bands"`
	SleepScoreBands Bands  `yaml:"sleep_score_bands"`
	SleepLimits     Limits `yaml:"sleep_limits"`
	ACWRBands       Bands  `yaml:"acwr_bands"`
	ACWRLimits      Limits `yaml:"acwr_limits"`

	PainWeight     float64 `yaml:"pain_weight"`
	SorenessWeight float64 `yaml:"soreness_weight"`
	FatigueWeight  float64 `yaml:"fatigue_weight"`
	// ReadinessBands apply only when the user reported readiness.
	ReadinessBands Bands   `yaml:"readiness_bands"`
	SymptomLimits  Limits  `yaml:"symptom_limits"`

	SessionRatioBands Bands   `yaml:"session_ratio_bands"`
	SessionZoneBands  Bands   `yaml:"session_zone_bands"`
	StackingPoints    float64 `yaml:"stacking_points"`
	// StreakBands score the consecutive training days before a planned session.
	StreakBands       Bands   `yaml:"streak_bands"`
	SessionLimits     Limits  `yaml:"session_limits"`

	GreenMax  float64 `yaml:"green_max"`
	YellowMax float64 `yaml:"yellow_max"`

	MaxConfidence float64 `yaml:"max_confidence"`
	MinConfidence float64 `yaml:"min_confidence"`
	TopFactors    int     `yaml:"top_factors"`
}

// Recommend configures alternative session generation.
type Recommend struct {
	LoadDurationCut     float64  `yaml:"load_duration_cut"`
	RecoveryDurationCut float64  `yaml:"recovery_duration_cut"`
	RecoveryMaxZone     int      `yaml:"recovery_max_zone"`
	ImpactSports        []string `yaml:"impact_sports"`
	LowImpactSports     []string `yaml:"low_impact_sports"`
	ActiveRecoveryMin   float64  `yaml:"active_recovery_minutes"`
	DefaultSport        string   `yaml:"default_sport"`
	DefaultDurationMin  float64  `yaml:"default_duration_minutes"`
	DefaultZone         int      `yaml:"default_zone"`
	MaxAlternatives     int      `yaml:"max_alternatives"`
}

// Config is the complete threshold set.
type Config struct {
	Profile   string    `yaml:"profile"`
	Baseline  Baseline  `yaml:"baseline"`
	Rules     Rules     `yaml:"rules"`
	Scoring   Scoring   `yaml:"scoring"`
	Recommend Recommend `yaml:"recommend"`
}

// Profile names.
const (
	ProfileStandard  = "standard"
	ProfileSensitive = "sensitive"
)

func below(v, points float64) Band { return Band{Below: &v, Points: points} }
func above(v, points float64) Band { return Band{Above: &v, Points: points} }

// Default returns the standard threshold set.
func Default() Config {
	return Config{
		Profile: ProfileStandard,
		Baseline: Baseline{
			WindowDays:        28,
			MinSamples:        5,
			SigmaFloor:        1.0,
			AcuteDays:         7,
			ChronicDays:       28,
			ZoneWeights:       [5]float64{0.3, 0.6, 1.0, 1.6, 2.4},
			UnknownZoneWeight: 0.6,
		},
		Rules: Rules{
			PainRedAt:           7,
			PainModerateAt:      5,
			MaxRestDays:         3,
			HRVSevereZ:          -2.0,
			RHRElevatedZ:        1.0,
			HRVCriticalZ:        -3.0,
			RHRCriticalZ:        2.0,
			ACWRCritical:        1.5,
			SevereSorenessAt:    7,
			StackingEnabled:     true,
			ModeratePainMaxZone: 2,
		},
		Scoring: Scoring{
			BaseScore:       35,
			HRVBands:        Bands{below(-1.5, 25), below(-1.0, 15), below(-0.5, 8), above(1.0, -5)},
			HRVLimits:       Limits{Min: -5, Max: 25},
			RHRBands:        Bands{above(1.5, 25), above(1.0, 15), above(0.5, 8), below(-1.0, -3)},
			RHRLimits:       Limits{Min: -5, Max: 25},
			SleepDeltaBands: Bands{below(-90, 20), below(-60, 12), below(-30, 5)},
			SleepScoreBands: Bands{below(50, 12), below(65, 5)},
			SleepLimits:     Limits{Min: 0, Max: 20},
			ACWRBands:       Bands{above(1.5, 25), above(1.3, 15), above(1.2, 8), below(0.8, 3)},
			ACWRLimits:      Limits{Min: 0, Max: 25},

			PainWeight:     3,
			SorenessWeight: 1.5,
			FatigueWeight:  1,
			ReadinessBands: Bands{below(4, 15), below(6, 8)},
			SymptomLimits:  Limits{Min: 0, Max: 40},

			SessionRatioBands: Bands{above(1.5, 10), above(1.2, 5), below(0.7, -3)},
			SessionZoneBands:  Bands{above(4.5, 8), above(3.5, 5)},
			StackingPoints:    10,
			StreakBands:       Bands{above(4.5, 15), above(3.5, 8), above(2.5, 4)},
			SessionLimits:     Limits{Min: -5, Max: 20},

			GreenMax:  35,
			YellowMax: 60,

			MaxConfidence: 0.85,
			MinConfidence: 0.25,
			TopFactors:    5,
		},
		Recommend: Recommend{
			LoadDurationCut:     0.3,
			RecoveryDurationCut: 0.2,
			RecoveryMaxZone:     2,
			ImpactSports:        []string{"running", "hiit"},
			LowImpactSports:     []string{"cycling", "swimming", "yoga"},
			ActiveRecoveryMin:   20,
			DefaultSport:        "other",
			DefaultDurationMin:  45,
			DefaultZone:         2,
			MaxAlternatives:     3,
		},
	}
}

// ForProfile returns the defaults adjusted for a named profile.
func ForProfile(name string) (Config, error) {
	cfg := Default()
	switch name {
	case "", ProfileStandard:
	case ProfileSensitive:
		cfg.Profile = ProfileSensitive
		cfg.Rules.HRVSevereZ = -1.5
	default:
		return Config{}, fmt.Errorf("unknown threshold profile %q", name)
	}
	return cfg, nil
}

// LoadFile reads a YAML threshold file on top of the profile it names.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading thresholds: %w", err)
	}

	var head struct {
		Profile string `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Config{}, fmt.Errorf("parsing thresholds: %w", err)
	}
	cfg, err := ForProfile(head.Profile)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing thresholds: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating thresholds: %w", err)
	}
	return cfg, nil
}

// Validate checks the internal consistency of the threshold set.
func (c Config) Validate() error {
	b := c.Baseline
	if b.WindowDays < 1 || b.MinSamples < 1 {
		return fmt.Errorf("baseline window_days and min_samples must be positive")
	}
	if b.SigmaFloor <= 0 {
		return fmt.Errorf("baseline sigma_floor must be > 0")
	}
	if b.AcuteDays < 1 || b.ChronicDays < b.AcuteDays {
		return fmt.Errorf("load windows must satisfy 1 <= acute_days <= chronic_days")
	}
	for i, w := range b.ZoneWeights {
		if w < 0 || (i > 0 && w < b.ZoneWeights[i-1]) {
			return fmt.Errorf("baseline zone_weights must be non-negative and non-decreasing")
		}
	}
	if b.UnknownZoneWeight < 0 {
		return fmt.Errorf("baseline unknown_zone_weight must be >= 0")
	}
	if c.Rules.PainModerateAt > c.Rules.PainRedAt {
		return fmt.Errorf("rules pain_moderate_at must not exceed pain_red_at")
	}
	if c.Rules.ACWRCritical <= 0 {
		return fmt.Errorf("rules acwr_critical must be > 0")
	}
	s := c.Scoring
	if s.GreenMax <= 0 || s.YellowMax <= s.GreenMax || s.YellowMax >= 100 {
		return fmt.Errorf("scoring thresholds must satisfy 0 < green_max < yellow_max < 100")
	}
	if s.MaxConfidence <= 0 || s.MaxConfidence > 1 || s.MinConfidence < 0 || s.MinConfidence > s.MaxConfidence {
		return fmt.Errorf("confidence bounds must satisfy 0 <= min <= max <= 1")
	}
	for name, l := range map[string]Limits{
		"hrv": s.HRVLimits, "rhr": s.RHRLimits, "sleep": s.SleepLimits,
		"acwr": s.ACWRLimits, "symptom": s.SymptomLimits, "session": s.SessionLimits,
	} {
		if l.Min > l.Max {
			return fmt.Errorf("scoring %s_limits min > max", name)
		}
	}
	r := c.Recommend
	if r.LoadDurationCut < 0 || r.LoadDurationCut >= 1 || r.RecoveryDurationCut < 0 || r.RecoveryDurationCut >= 1 {
		return fmt.Errorf("recommend duration cuts must be in [0, 1)")
	}
	if r.MaxAlternatives < 1 {
		return fmt.Errorf("recommend max_alternatives must be >= 1")
	}
	return nil
}

// Level maps a heuristic score onto its threshold band.
func (s Scoring) Level(score float64) models.RiskLevel {
	switch {
	case score <= s.GreenMax:
		return models.RiskGreen
	case score <= s.YellowMax:
		return models.RiskYellow
	}
	return models.RiskRed
}
