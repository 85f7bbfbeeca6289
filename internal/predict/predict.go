// Package predict runs the evaluation pipeline: baseline snapshot, safety
// rules and heuristic scoring in parallel, merge, then recommendations.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/recommend"
	"github.com/claude/injuryrisk/internal/rules"
	"github.com/claude/injuryrisk/internal/scoring"
	"github.com/claude/injuryrisk/internal/thresholds"
)

var (
	// ErrNoData means the user has nothing to evaluate yet.
	ErrNoData = errors.New("no data yet")
	// ErrComputation means a safety-critical step failed. Retrying is safe.
	ErrComputation = errors.New("computation error")
)

// Request is one evaluation. Date defaults to today (UTC).
type Request struct {
	History baseline.History
	Date    time.Time
	Symptom *models.SymptomEntry
	Planned *models.PlannedSession
}

// Evaluator wires the pipeline stages for one threshold configuration.
type Evaluator struct {
	cfg    thresholds.Config
	engine *baseline.Engine
	scorer *scoring.Scorer
	rec    *recommend.Recommender
	log    *slog.Logger
	now    func() time.Time
}

// New creates an evaluator. engine may be nil, in which case an uncached
// engine is used.
func New(cfg thresholds.Config, engine *baseline.Engine, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	if engine == nil {
		engine = baseline.NewEngine(cfg.Baseline, nil, log)
	}
	return &Evaluator{
		cfg:    cfg,
		engine: engine,
		scorer: scoring.New(cfg, log),
		rec:    recommend.New(cfg.Recommend),
		log:    log,
		now:    time.Now,
	}
}

// Engine returns the baseline engine used by the evaluator.
func (e *Evaluator) Engine() *baseline.Engine { return e.engine }

// Config returns the threshold configuration.
func (e *Evaluator) Config() thresholds.Config { return e.cfg }

// Evaluate produces a prediction. It returns ErrNoData when the user has no
// workouts, metrics or symptoms, and wraps ErrComputation when the safety
// rules cannot be evaluated.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*models.PredictionResult, error) {
	start := time.Now()
	defer func() { evaluationDuration.Observe(time.Since(start).Seconds()) }()

	day := models.Day(req.Date)
	if req.Date.IsZero() {
		day = models.Day(e.now().UTC())
	}
	symptom := req.Symptom
	if symptom != nil && !models.Day(symptom.Date).Equal(day) {
		symptom = nil
	}
	h := req.History
	if len(h.Workouts) == 0 && len(h.Metrics) == 0 && h.LastWorkout == nil && symptom == nil {
		evaluationsFailed.WithLabelValues("no_data").Inc()
		return nil, ErrNoData
	}

	snap := e.engine.Snapshot(ctx, h, day)

	var (
		outcome rules.Outcome
		score   scoring.Result
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outcome, err = rules.Evaluate(rules.Input{Symptom: symptom, Snapshot: snap, Planned: req.Planned}, e.cfg)
		return err
	})
	g.Go(func() error {
		score = e.scorer.Score(scoring.Input{Snapshot: snap, Symptom: symptom, Planned: req.Planned})
		return nil
	})
	if err := g.Wait(); err != nil {
		evaluationsFailed.WithLabelValues("rules").Inc()
		e.log.Error("safety rule evaluation failed", "user_id", h.UserID, "date", day.Format(time.DateOnly), "error", err)
		return nil, fmt.Errorf("%w: safety rules: %v", ErrComputation, err)
	}

	level := score.Level
	if outcome.Override != "" {
		level = outcome.Override
	}

	alts := e.rec.Recommend(recommend.Input{
		Level:   level,
		Rules:   outcome,
		Score:   score,
		Planned: req.Planned,
		Typical: snap.Training.Typical,
	})

	triggered := outcome.Triggered()
	breakdown := score.Breakdown
	res := &models.PredictionResult{
		Date:                 day.Format(time.DateOnly),
		RiskScore:            score.Score,
		RiskLevel:            level,
		HeuristicLevel:       score.Level,
		Confidence:           score.Confidence,
		TopFactors:           score.Top,
		SafetyRulesTriggered: triggered,
		Alternatives:         alts,
		Breakdown:            &breakdown,
		Notes:                score.Notes,
		CreatedAt:            e.now().UTC(),
	}
	res.Explanation = explain(res, score, triggered)

	evaluationsTotal.WithLabelValues(string(level)).Inc()
	for _, r := range triggered {
		ruleTriggers.WithLabelValues(r.RuleID).Inc()
	}
	if level != score.Level {
		levelOverrides.Inc()
	}
	e.log.Debug("evaluation complete",
		"user_id", h.UserID,
		"date", res.Date,
		"score", res.RiskScore,
		"level", level,
		"heuristic_level", score.Level,
		"rules", len(triggered),
	)
	return res, nil
}

// explain renders the human-readable summary of a prediction.
func explain(res *models.PredictionResult, score scoring.Result, triggered []models.SafetyRuleResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk is %s (score %.0f/100).", res.RiskLevel, res.RiskScore)

	var forcing []string
	for _, r := range triggered {
		if r.OverrideRiskLevel != "" {
			forcing = append(forcing, r.RuleID)
		}
	}
	if len(forcing) > 0 && res.RiskLevel != res.HeuristicLevel {
		fmt.Fprintf(&b, " Safety rule %s set the level to %s; the score alone would be %s.",
			strings.Join(forcing, ", "), res.RiskLevel, res.HeuristicLevel)
	}
	for _, r := range triggered {
		b.WriteString(" ")
		b.WriteString(r.Message)
		if !strings.HasSuffix(r.Message, ".") {
			b.WriteString(".")
		}
	}

	if name := score.Dominant(); name != "" {
		for _, f := range score.Factors {
			if f.Factor == name {
				fmt.Fprintf(&b, " Biggest contributor: %s.", f.Description)
				break
			}
		}
	} else if len(triggered) == 0 {
		b.WriteString(" All signals are in your normal range.")
	}

	if res.Confidence < 0.5 {
		b.WriteString(" Confidence is low while your baselines are still building.")
	}
	switch {
	case len(res.Alternatives) == 0:
		if res.RiskLevel == models.RiskGreen {
			b.WriteString(" Train as planned.")
		}
	case res.Alternatives[0].SportType == models.SportRest:
		b.WriteString(" Take a rest day.")
	default:
		a := res.Alternatives[0]
		fmt.Fprintf(&b, " Consider %s for %.0f min at %s instead.", a.SportType, a.DurationMinutes, a.Intensity)
	}
	return b.String()
}
