// Package recommend proposes safer alternatives to a session once the
// merged risk level is elevated.
package recommend

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/rules"
	"github.com/claude/injuryrisk/internal/scoring"
	"github.com/claude/injuryrisk/internal/thresholds"
)

// Input carries the merged pipeline state.
type Input struct {
	Level   models.RiskLevel
	Rules   rules.Outcome
	Score   scoring.Result
	Planned *models.PlannedSession
	Typical baseline.TypicalSession
}

// Recommender builds alternatives for a fixed threshold set.
type Recommender struct {
	cfg thresholds.Recommend
}

// New creates a recommender.
func New(cfg thresholds.Recommend) *Recommender {
	return &Recommender{cfg: cfg}
}

// IsActiveRecovery reports whether an alternative is exempt from the
// not-harder-than-planned constraint.
func IsActiveRecovery(a models.AlternativeSession) bool {
	return strings.HasPrefix(a.Rationale, models.RationaleActiveRecovery)
}

// reference is the session alternatives are measured against.
type reference struct {
	sport    models.SportType
	duration float64
	zone     models.IntensityZone
}

func (r *Recommender) reference(in Input) reference {
	if p := in.Planned; p != nil {
		return reference{p.SportType, p.DurationMinutes, p.IntensityZone}
	}
	if t := in.Typical; t.Count > 0 && t.DurationMinutes > 0 {
		zone := t.Zone
		if zone == models.ZoneUnknown {
			zone = models.ZoneFromLevel(r.cfg.DefaultZone)
		}
		return reference{t.SportType, t.DurationMinutes, zone}
	}
	sport, ok := models.ParseSportType(r.cfg.DefaultSport)
	if !ok {
		sport = models.SportOther
	}
	return reference{sport, r.cfg.DefaultDurationMin, models.ZoneFromLevel(r.cfg.DefaultZone)}
}

type driver struct {
	kind      string
	magnitude float64
	order     int
}

const (
	driverSymptom  = "symptom"
	driverLoad     = "load"
	driverRecovery = "recovery"
)

// drivers lists the active causes ordered by contribution magnitude.
func drivers(in Input) []driver {
	b := in.Score.Breakdown
	var out []driver
	if in.Rules.Has("R1") || in.Rules.Has("R5") || in.Rules.RestrictImpact || b.Symptom > 0 {
		out = append(out, driver{driverSymptom, b.Symptom, 0})
	}
	if in.Rules.Has("R2") || in.Rules.Has("R4") || in.Rules.Has("R6") || b.ACWR > 0 || b.Session > 0 {
		out = append(out, driver{driverLoad, math.Max(b.ACWR, 0) + math.Max(b.Session, 0), 1})
	}
	if in.Rules.Has("R3") || b.HRV > 0 || b.RHR > 0 || b.Sleep > 0 {
		out = append(out, driver{driverRecovery, math.Max(b.HRV, 0) + math.Max(b.RHR, 0) + math.Max(b.Sleep, 0), 2})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].magnitude != out[j].magnitude {
			return out[i].magnitude > out[j].magnitude
		}
		return out[i].order < out[j].order
	})
	return out
}

// Recommend returns ranked, deduplicated alternatives. GREEN yields none.
func (r *Recommender) Recommend(in Input) []models.AlternativeSession {
	out := []models.AlternativeSession{}
	if in.Level.Severity() == 0 {
		return out
	}
	ref := r.reference(in)
	sore := in.Score.Breakdown.Symptom > 0

	if in.Rules.Has("R0") {
		return append(out, restDay("pain or swelling needs rest and assessment before any training"))
	}

	var cands []models.AlternativeSession
	if in.Level == models.RiskRed {
		cands = append(cands,
			restDay("multiple risk signals are elevated"),
			r.activeRecovery(),
		)
	}
	for _, d := range drivers(in) {
		switch d.kind {
		case driverSymptom:
			cands = append(cands, r.symptomAlternative(ref, in.Rules))
		case driverLoad:
			cands = append(cands, r.loadAlternative(ref, in.Rules, sore))
		case driverRecovery:
			cands = append(cands, r.recoveryAlternative(ref, in.Rules, sore))
		}
	}
	if len(cands) == 0 {
		cands = append(cands, r.generic(ref, in.Rules, sore))
	}

	seen := make(map[string]bool)
	for _, c := range cands {
		key := fmt.Sprintf("%s|%.0f|%s", c.SportType, c.DurationMinutes, c.Intensity)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == r.cfg.MaxAlternatives {
			break
		}
	}
	return out
}

func restDay(reason string) models.AlternativeSession {
	return models.AlternativeSession{
		SportType:       models.SportRest,
		DurationMinutes: 0,
		Intensity:       models.Z1,
		Rationale:       "Rest day: " + reason,
	}
}

func (r *Recommender) activeRecovery() models.AlternativeSession {
	sport := models.SportYoga
	if r.isImpact(sport) {
		sport = models.SportOther
	}
	return models.AlternativeSession{
		SportType:       sport,
		DurationMinutes: r.cfg.ActiveRecoveryMin,
		Intensity:       models.Z1,
		Rationale:       models.RationaleActiveRecovery + ": easy mobility to promote blood flow without adding load",
	}
}

func (r *Recommender) isImpact(s models.SportType) bool {
	return slices.Contains(r.cfg.ImpactSports, string(s))
}

// lowImpact returns the first configured low-impact sport.
func (r *Recommender) lowImpact() models.SportType {
	for _, s := range r.cfg.LowImpactSports {
		if st, ok := models.ParseSportType(s); ok && !r.isImpact(st) {
			return st
		}
	}
	return models.SportOther
}

// capZone lowers z to the rule-imposed maximum.
func capZone(z models.IntensityZone, out rules.Outcome) models.IntensityZone {
	if out.MaxZone > 0 && z.Level() > out.MaxZone {
		return models.ZoneFromLevel(out.MaxZone)
	}
	return z
}

func stepDown(z models.IntensityZone) models.IntensityZone {
	return models.ZoneFromLevel(z.Level() - 1)
}

// sportFor keeps the reference sport unless impact is restricted or any
// symptom was reported.
func (r *Recommender) sportFor(ref reference, out rules.Outcome, sore bool) models.SportType {
	if (sore || out.RestrictImpact) && r.isImpact(ref.sport) {
		return r.lowImpact()
	}
	return ref.sport
}

func (r *Recommender) symptomAlternative(ref reference, out rules.Outcome) models.AlternativeSession {
	sport := r.sportFor(ref, out, true)
	zone := capZone(stepDown(ref.zone), out)
	rationale := fmt.Sprintf("Symptoms reported: keep the %.0f min but ease to %s", ref.duration, zone)
	if sport != ref.sport {
		rationale = fmt.Sprintf("Symptoms reported: swap %s for low-impact %s at %s to unload sore tissue", ref.sport, sport, zone)
	}
	return models.AlternativeSession{SportType: sport, DurationMinutes: ref.duration, Intensity: zone, Rationale: rationale}
}

func (r *Recommender) loadAlternative(ref reference, out rules.Outcome, sore bool) models.AlternativeSession {
	duration := math.Round(ref.duration * (1 - r.cfg.LoadDurationCut))
	zone := capZone(stepDown(ref.zone), out)
	return models.AlternativeSession{
		SportType:       r.sportFor(ref, out, sore),
		DurationMinutes: math.Min(duration, ref.duration),
		Intensity:       zone,
		Rationale:       fmt.Sprintf("Load is climbing fast: cut to %.0f min and step down to %s", duration, zone),
	}
}

func (r *Recommender) recoveryAlternative(ref reference, out rules.Outcome, sore bool) models.AlternativeSession {
	duration := math.Round(ref.duration * (1 - r.cfg.RecoveryDurationCut))
	zone := ref.zone
	if zone.Level() > r.cfg.RecoveryMaxZone {
		zone = models.ZoneFromLevel(r.cfg.RecoveryMaxZone)
	}
	zone = capZone(zone, out)
	return models.AlternativeSession{
		SportType:       r.sportFor(ref, out, sore),
		DurationMinutes: math.Min(duration, ref.duration),
		Intensity:       zone,
		Rationale:       fmt.Sprintf("Recovery markers are off: keep it aerobic at %s for %.0f min", zone, duration),
	}
}

func (r *Recommender) generic(ref reference, out rules.Outcome, sore bool) models.AlternativeSession {
	duration := math.Round(ref.duration * (1 - r.cfg.RecoveryDurationCut))
	zone := capZone(stepDown(ref.zone), out)
	return models.AlternativeSession{
		SportType:       r.sportFor(ref, out, sore),
		DurationMinutes: math.Min(duration, ref.duration),
		Intensity:       zone,
		Rationale:       fmt.Sprintf("Elevated risk: a shorter, easier session at %s", zone),
	}
}
