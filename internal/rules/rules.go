// Package rules implements the deterministic safety gate. Rules are an
// ordered table of predicates; any triggered rule may force a risk level
// regardless of the heuristic score.
package rules

import (
	"fmt"
	"math"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/thresholds"
)

// Input is everything a rule may inspect.
type Input struct {
	Symptom  *models.SymptomEntry
	Snapshot baseline.Snapshot
	Planned  *models.PlannedSession
}

// Effect is the outcome of one rule check.
type Effect struct {
	Triggered bool
	Override  models.RiskLevel
	Message   string
	// RestrictImpact removes impact sports from recommendations.
	RestrictImpact bool
	// MaxZone caps recommended intensity (0 means no cap).
	MaxZone int
}

// Rule is one entry of the rule table.
type Rule struct {
	ID    string
	Name  string
	Check func(in Input, cfg thresholds.Config) Effect
}

// Table is the rule set in reporting order.
var Table = []Rule{
	{ID: "R0", Name: "acute pain or swelling", Check: acutePain},
	{ID: "R1", Name: "moderate pain", Check: moderatePain},
	{ID: "R2", Name: "extended rest", Check: extendedRest},
	{ID: "R3", Name: "suppressed recovery", Check: suppressedRecovery},
	{ID: "R4", Name: "load spike", Check: loadSpike},
	{ID: "R5", Name: "severe soreness", Check: severeSoreness},
	{ID: "R6", Name: "same-day stacking", Check: sameDayStacking},
}

// Outcome aggregates every rule in table order.
type Outcome struct {
	Results []models.SafetyRuleResult
	// Override is the most severe override among triggered rules, or "".
	Override       models.RiskLevel
	RestrictImpact bool
	MaxZone        int
}

// Triggered returns only the triggered results, in table order.
func (o Outcome) Triggered() []models.SafetyRuleResult {
	out := []models.SafetyRuleResult{}
	for _, r := range o.Results {
		if r.Triggered {
			out = append(out, r)
		}
	}
	return out
}

// Has reports whether the rule with the given id triggered.
func (o Outcome) Has(id string) bool {
	for _, r := range o.Results {
		if r.RuleID == id && r.Triggered {
			return true
		}
	}
	return false
}

// Evaluate runs the full table. An error means an internal invariant was
// violated and the result must not be used.
func Evaluate(in Input, cfg thresholds.Config) (Outcome, error) {
	return EvaluateTable(Table, in, cfg)
}

// EvaluateTable runs an explicit rule table.
func EvaluateTable(table []Rule, in Input, cfg thresholds.Config) (Outcome, error) {
	if err := checkInput(in); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	for _, r := range table {
		eff := r.Check(in, cfg)
		if !eff.Triggered && (eff.Override != "" || eff.RestrictImpact || eff.MaxZone != 0) {
			return Outcome{}, fmt.Errorf("rule %s: effect on non-triggered rule", r.ID)
		}
		if eff.Override != "" && eff.Override.Severity() == 0 && eff.Override != models.RiskGreen {
			return Outcome{}, fmt.Errorf("rule %s: invalid override level %q", r.ID, eff.Override)
		}

		out.Results = append(out.Results, models.SafetyRuleResult{
			RuleID:            r.ID,
			Triggered:         eff.Triggered,
			Message:           eff.Message,
			OverrideRiskLevel: eff.Override,
		})
		if !eff.Triggered {
			continue
		}
		if eff.Override != "" {
			out.Override = models.MaxRisk(out.Override, eff.Override)
			if out.Override == "" {
				out.Override = eff.Override
			}
		}
		out.RestrictImpact = out.RestrictImpact || eff.RestrictImpact
		if eff.MaxZone > 0 && (out.MaxZone == 0 || eff.MaxZone < out.MaxZone) {
			out.MaxZone = eff.MaxZone
		}
	}
	return out, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkInput(in Input) error {
	if s := in.Symptom; s != nil {
		for name, v := range map[string]float64{
			"pain_score":      s.PainScore,
			"muscle_soreness": s.MuscleSoreness,
			"fatigue":         s.Fatigue,
		} {
			if !finite(v) || v < 0 || v > 10 {
				return fmt.Errorf("symptom %s=%v outside [0, 10]", name, v)
			}
		}
	}
	snap := in.Snapshot
	for name, v := range map[string]*float64{"hrv": snap.Today.HRV, "rhr": snap.Today.RHR} {
		if v != nil && !finite(*v) {
			return fmt.Errorf("today's %s is not finite", name)
		}
	}
	if !finite(snap.Load.ACWR) {
		return fmt.Errorf("acwr is not finite")
	}
	return nil
}

func acutePain(in Input, cfg thresholds.Config) Effect {
	s := in.Symptom
	if s == nil {
		return Effect{}
	}
	switch {
	case s.Swelling:
		return Effect{Triggered: true, Override: models.RiskRed,
			Message: "Swelling reported: rest and have it assessed before training"}
	case s.PainScore >= cfg.Rules.PainRedAt:
		return Effect{Triggered: true, Override: models.RiskRed,
			Message: fmt.Sprintf("Acute pain %.0f/10: rest and have it assessed before training", s.PainScore)}
	}
	return Effect{}
}

func moderatePain(in Input, cfg thresholds.Config) Effect {
	s := in.Symptom
	if s == nil || s.Swelling || s.PainScore < cfg.Rules.PainModerateAt || s.PainScore >= cfg.Rules.PainRedAt {
		return Effect{}
	}
	msg := fmt.Sprintf("Moderate pain %.0f/10: avoid impact sports and keep intensity easy", s.PainScore)
	if s.PainLocation != "" {
		msg = fmt.Sprintf("Moderate pain %.0f/10 (%s): avoid impact sports and keep intensity easy", s.PainScore, s.PainLocation)
	}
	return Effect{Triggered: true, Message: msg, RestrictImpact: true, MaxZone: cfg.Rules.ModeratePainMaxZone}
}

func extendedRest(in Input, cfg thresholds.Config) Effect {
	days, ok := in.Snapshot.Training.ConsecutiveRestDays()
	if !ok || days <= cfg.Rules.MaxRestDays {
		return Effect{}
	}
	return Effect{Triggered: true, Override: models.RiskYellow,
		Message: fmt.Sprintf("%d consecutive rest days: fitness has started to decline, ease back in before returning to full load", days)}
}

func suppressedRecovery(in Input, cfg thresholds.Config) Effect {
	snap := in.Snapshot
	if snap.Today.HRV == nil || snap.Today.RHR == nil {
		return Effect{}
	}
	floor := cfg.Baseline.SigmaFloor
	hrvZ, ok1 := snap.Baseline.HRV.Z(*snap.Today.HRV, floor)
	rhrZ, ok2 := snap.Baseline.RHR.Z(*snap.Today.RHR, floor)
	if !ok1 || !ok2 {
		return Effect{}
	}
	r := cfg.Rules
	switch {
	case hrvZ < r.HRVCriticalZ && rhrZ > r.RHRCriticalZ:
		return Effect{Triggered: true, Override: models.RiskRed,
			Message: fmt.Sprintf("HRV far below baseline (z=%.1f) with elevated resting HR (z=%.1f): possible illness or overreaching", hrvZ, rhrZ)}
	case hrvZ < r.HRVSevereZ && rhrZ > r.RHRElevatedZ:
		return Effect{Triggered: true, Override: models.RiskYellow,
			Message: fmt.Sprintf("HRV below baseline (z=%.1f) with elevated resting HR (z=%.1f): recovery is incomplete", hrvZ, rhrZ)}
	}
	return Effect{}
}

func loadSpike(in Input, cfg thresholds.Config) Effect {
	load := in.Snapshot.Load
	if !load.Defined || load.ACWR <= cfg.Rules.ACWRCritical {
		return Effect{}
	}
	return Effect{Triggered: true, Override: models.RiskYellow,
		Message: fmt.Sprintf("Acute:chronic load ratio %.2f exceeds %.2f: recent load rose faster than fitness", load.ACWR, cfg.Rules.ACWRCritical)}
}

func severeSoreness(in Input, cfg thresholds.Config) Effect {
	s := in.Symptom
	if s == nil || s.MuscleSoreness < cfg.Rules.SevereSorenessAt {
		return Effect{}
	}
	return Effect{Triggered: true, Override: models.RiskYellow, RestrictImpact: true,
		Message: fmt.Sprintf("Severe muscle soreness %.0f/10: choose low-impact work until it settles", s.MuscleSoreness)}
}

func sameDayStacking(in Input, cfg thresholds.Config) Effect {
	p := in.Planned
	if !cfg.Rules.StackingEnabled || p == nil || !p.IntensityZone.Hard() || !in.Snapshot.Training.HardSessionToday {
		return Effect{}
	}
	if !models.Day(p.ScheduledDate).Equal(in.Snapshot.Date) {
		return Effect{}
	}
	return Effect{Triggered: true, Override: models.RiskYellow,
		Message: "A hard session is already logged today: stacking a second hard session raises injury risk"}
}
