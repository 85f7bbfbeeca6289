// Package scoring computes the heuristic 0-100 risk score as a base value
// plus independently clamped, explainable factor contributions.
package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/thresholds"
)

// Factor names as reported in FactorContribution.Factor.
const (
	FactorBase     = "base_score"
	FactorHRV      = "hrv"
	FactorRHR      = "resting_hr"
	FactorSleep    = "sleep"
	FactorACWR     = "acwr"
	FactorSymptoms = "symptoms"
	FactorSession  = "session"
)

// Input is everything the scorer consumes.
type Input struct {
	Snapshot baseline.Snapshot
	Symptom  *models.SymptomEntry
	Planned  *models.PlannedSession
}

// Result is the heuristic output.
type Result struct {
	Score      float64
	Level      models.RiskLevel
	Confidence float64
	// Factors holds every contribution in fixed order, zeros included.
	Factors   []models.FactorContribution
	Top       []models.FactorContribution
	Breakdown models.Breakdown
	Notes     []string
}

// Dominant returns the non-base factor with the largest positive
// contribution, or "" when none is positive.
func (r Result) Dominant() string {
	best, bestV := "", 0.0
	for _, f := range r.Factors {
		if f.Factor != FactorBase && f.Contribution > bestV {
			best, bestV = f.Factor, f.Contribution
		}
	}
	return best
}

// Scorer computes risk scores for a fixed threshold set.
type Scorer struct {
	cfg thresholds.Config
	log *slog.Logger
}

// New creates a scorer.
func New(cfg thresholds.Config, log *slog.Logger) *Scorer {
	if log == nil {
		log = slog.Default()
	}
	return &Scorer{cfg: cfg, log: log}
}

type factorFunc func(in Input) (float64, string, error)

// Score computes the heuristic result. A factor that fails or produces a
// non-finite value degrades to zero with a note.
func (s *Scorer) Score(in Input) Result {
	sc := s.cfg.Scoring
	steps := []struct {
		name   string
		fn     factorFunc
		limits thresholds.Limits
	}{
		{FactorHRV, s.hrv, sc.HRVLimits},
		{FactorRHR, s.rhr, sc.RHRLimits},
		{FactorSleep, s.sleep, sc.SleepLimits},
		{FactorACWR, s.acwr, sc.ACWRLimits},
		{FactorSymptoms, s.symptoms, sc.SymptomLimits},
		{FactorSession, s.session, sc.SessionLimits},
	}

	res := Result{Breakdown: models.Breakdown{BaseScore: sc.BaseScore}}
	dst := map[string]*float64{
		FactorHRV:      &res.Breakdown.HRV,
		FactorRHR:      &res.Breakdown.RHR,
		FactorSleep:    &res.Breakdown.Sleep,
		FactorACWR:     &res.Breakdown.ACWR,
		FactorSymptoms: &res.Breakdown.Symptom,
		FactorSession:  &res.Breakdown.Session,
	}

	res.Factors = append(res.Factors, models.FactorContribution{
		Factor:       FactorBase,
		Contribution: sc.BaseScore,
		Description:  "Baseline risk before individual signals",
	})
	total := sc.BaseScore
	for _, st := range steps {
		pts, desc, err := st.fn(in)
		if err == nil && (math.IsNaN(pts) || math.IsInf(pts, 0)) {
			err = fmt.Errorf("non-finite contribution %v", pts)
		}
		if err != nil {
			s.log.Warn("factor degraded to neutral", "factor", st.name, "error", err)
			res.Notes = append(res.Notes, fmt.Sprintf("%s: %v", st.name, err))
			pts, desc = 0, "Could not be computed, treated as neutral"
		}
		pts = st.limits.Clamp(pts)
		*dst[st.name] = pts
		total += pts
		res.Factors = append(res.Factors, models.FactorContribution{Factor: st.name, Contribution: pts, Description: desc})
	}

	res.Score = math.Max(0, math.Min(100, total))
	res.Level = sc.Level(res.Score)
	res.Confidence = s.confidence(in.Snapshot.Baseline)
	res.Top = top(res.Factors, sc.TopFactors)
	return res
}

func (s *Scorer) confidence(b baseline.UserBaseline) float64 {
	sc := s.cfg.Scoring
	usable := float64(3 - b.LowConfidenceFields())
	c := sc.MaxConfidence * usable / 3
	c = math.Max(sc.MinConfidence, c)
	return math.Max(0, math.Min(1, c))
}

// top returns the non-zero factors ordered by magnitude, largest first.
func top(factors []models.FactorContribution, n int) []models.FactorContribution {
	out := []models.FactorContribution{}
	for _, f := range factors {
		if f.Contribution != 0 {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Contribution) > math.Abs(out[j].Contribution)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Scorer) hrv(in Input) (float64, string, error) {
	snap := in.Snapshot
	if snap.Today.HRV == nil {
		return 0, "No HRV reading today", nil
	}
	z, ok := snap.Baseline.HRV.Z(*snap.Today.HRV, s.cfg.Baseline.SigmaFloor)
	if !ok {
		return 0, "HRV baseline still building", nil
	}
	pts := s.cfg.Scoring.HRVBands.Points(z)
	return pts, fmt.Sprintf("HRV %.0f ms vs baseline %.0f ms (z=%.1f)", *snap.Today.HRV, snap.Baseline.HRV.Mean, z), nil
}

func (s *Scorer) rhr(in Input) (float64, string, error) {
	snap := in.Snapshot
	if snap.Today.RHR == nil {
		return 0, "No resting HR reading today", nil
	}
	z, ok := snap.Baseline.RHR.Z(*snap.Today.RHR, s.cfg.Baseline.SigmaFloor)
	if !ok {
		return 0, "Resting HR baseline still building", nil
	}
	pts := s.cfg.Scoring.RHRBands.Points(z)
	return pts, fmt.Sprintf("Resting HR %.0f bpm vs baseline %.0f bpm (z=%.1f)", *snap.Today.RHR, snap.Baseline.RHR.Mean, z), nil
}

func (s *Scorer) sleep(in Input) (float64, string, error) {
	snap := in.Snapshot
	if snap.Today.SleepMinutes != nil && snap.Baseline.Sleep.Usable() {
		delta := *snap.Today.SleepMinutes - snap.Baseline.Sleep.Mean
		pts := s.cfg.Scoring.SleepDeltaBands.Points(delta)
		return pts, fmt.Sprintf("Slept %.0f min, %+.0f min vs baseline", *snap.Today.SleepMinutes, delta), nil
	}
	if snap.Today.SleepScore != nil {
		pts := s.cfg.Scoring.SleepScoreBands.Points(*snap.Today.SleepScore)
		return pts, fmt.Sprintf("Sleep score %.0f", *snap.Today.SleepScore), nil
	}
	return 0, "No sleep data for last night", nil
}

func (s *Scorer) acwr(in Input) (float64, string, error) {
	load := in.Snapshot.Load
	if !load.Defined {
		return 0, "Not enough training history for a load ratio", nil
	}
	pts := s.cfg.Scoring.ACWRBands.Points(load.ACWR)
	var desc string
	switch {
	case load.ACWR > s.cfg.Rules.ACWRCritical:
		desc = fmt.Sprintf("Load ratio %.2f: sharp spike over your usual load", load.ACWR)
	case pts > 0 && load.ACWR < 1:
		desc = fmt.Sprintf("Load ratio %.2f: training well below your usual load", load.ACWR)
	case pts > 0:
		desc = fmt.Sprintf("Load ratio %.2f: load rising", load.ACWR)
	default:
		desc = fmt.Sprintf("Load ratio %.2f: within the usual range", load.ACWR)
	}
	return pts, desc, nil
}

func (s *Scorer) symptoms(in Input) (float64, string, error) {
	sym := in.Symptom
	if sym == nil {
		return 0, "No symptoms logged", nil
	}
	sc := s.cfg.Scoring
	pts := sym.PainScore*sc.PainWeight + sym.MuscleSoreness*sc.SorenessWeight + sym.Fatigue*sc.FatigueWeight
	desc := fmt.Sprintf("Pain %.0f, soreness %.0f, fatigue %.0f (of 10)", sym.PainScore, sym.MuscleSoreness, sym.Fatigue)
	if r := sym.PerceivedReadiness; r != nil {
		pts += sc.ReadinessBands.Points(*r)
		desc += fmt.Sprintf(", readiness %.0f", *r)
	}
	return pts, desc, nil
}

func (s *Scorer) zoneWeight(z models.IntensityZone) float64 {
	if lvl := z.Level(); lvl > 0 {
		return s.cfg.Baseline.ZoneWeights[lvl-1]
	}
	return s.cfg.Baseline.UnknownZoneWeight
}

func (s *Scorer) session(in Input) (float64, string, error) {
	p := in.Planned
	if p == nil {
		return 0, "No planned session", nil
	}
	sc := s.cfg.Scoring
	planned := p.DurationMinutes * s.zoneWeight(p.IntensityZone)
	typ := in.Snapshot.Training.Typical

	var pts float64
	var desc string
	if typical := typ.DurationMinutes * s.zoneWeight(typ.Zone); typ.Count > 0 && typical > 0 {
		ratio := planned / typical
		pts = sc.SessionRatioBands.Points(ratio)
		desc = fmt.Sprintf("Planned %s %.0f min %s is %.1fx your typical session", p.SportType, p.DurationMinutes, p.IntensityZone, ratio)
	} else {
		pts = sc.SessionZoneBands.Points(float64(p.IntensityZone.Level()))
		desc = fmt.Sprintf("Planned %s %.0f min %s (no typical session yet)", p.SportType, p.DurationMinutes, p.IntensityZone)
	}

	if streak := in.Snapshot.Training.ConsecutiveTrainingDays; streak > 0 {
		if extra := sc.StreakBands.Points(float64(streak)); extra != 0 {
			pts += extra
			desc += fmt.Sprintf(", day %d of a training streak", streak+1)
		}
	}

	if p.IntensityZone.Hard() && in.Snapshot.Training.HardSessionToday &&
		models.Day(p.ScheduledDate).Equal(in.Snapshot.Date) {
		pts += sc.StackingPoints
		desc += ", stacked on a hard session already done today"
	}
	return pts, desc, nil
}
