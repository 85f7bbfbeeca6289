package models

import (
	"time"

	"github.com/google/uuid"
)

// FactorContribution is one explainable addition to the risk score.
type FactorContribution struct {
	Factor       string  `json:"factor"`
	Contribution float64 `json:"contribution"`
	Description  string  `json:"description"`
}

// SafetyRuleResult is the outcome of evaluating one safety rule.
type SafetyRuleResult struct {
	RuleID            string    `json:"rule_id"`
	Triggered         bool      `json:"triggered"`
	Message           string    `json:"message,omitempty"`
	OverrideRiskLevel RiskLevel `json:"override_risk_level,omitempty"`
}

// AlternativeSession is a suggested substitute session.
type AlternativeSession struct {
	SportType       SportType     `json:"sport_type"`
	DurationMinutes float64       `json:"duration_minutes"`
	Intensity       IntensityZone `json:"intensity"`
	Rationale       string        `json:"rationale"`
}

// RationaleActiveRecovery marks alternatives allowed to exceed the triggering session.
const RationaleActiveRecovery = "active recovery"

// Breakdown is the raw per-category score composition.
type Breakdown struct {
	HRV       float64 `json:"hrv_contribution"`
	RHR       float64 `json:"rhr_contribution"`
	Sleep     float64 `json:"sleep_contribution"`
	ACWR      float64 `json:"acwr_contribution"`
	Symptom   float64 `json:"symptom_contribution"`
	Session   float64 `json:"session_contribution"`
	BaseScore float64 `json:"base_score"`
}

// PredictionResult is the output of one scoring pass.
type PredictionResult struct {
	ID                   uuid.UUID            `json:"id,omitempty"`
	Date                 string               `json:"date,omitempty"`
	RiskScore            float64              `json:"risk_score"`
	RiskLevel            RiskLevel            `json:"risk_level"`
	HeuristicLevel       RiskLevel            `json:"heuristic_risk_level,omitempty"`
	Confidence           float64              `json:"confidence"`
	TopFactors           []FactorContribution `json:"top_factors"`
	SafetyRulesTriggered []SafetyRuleResult   `json:"safety_rules_triggered"`
	Alternatives         []AlternativeSession `json:"alternatives"`
	Explanation          string               `json:"explanation"`
	Breakdown            *Breakdown           `json:"breakdown,omitempty"`
	Notes                []string             `json:"notes,omitempty"`
	CreatedAt            time.Time            `json:"created_at,omitempty"`
}

// ImportSummary reports the outcome of one ingestion batch.
type ImportSummary struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	WorkoutsImported int      `json:"workouts_imported"`
	WorkoutsSkipped  int      `json:"workouts_skipped"`
	MetricsImported  int      `json:"metrics_imported"`
	Errors           []string `json:"errors"`
}

// DateRange is an inclusive span of calendar dates (YYYY-MM-DD).
type DateRange struct {
	Earliest string `json:"earliest,omitempty"`
	Latest   string `json:"latest,omitempty"`
}

// ImportStats summarizes everything stored for a user.
type ImportStats struct {
	TotalWorkouts int       `json:"total_workouts"`
	TotalMetrics  int       `json:"total_metrics"`
	DateRange     DateRange `json:"date_range"`
}

// ImportLog is one row of the import audit trail.
type ImportLog struct {
	ID               int64      `json:"id"`
	UserID           int        `json:"user_id"`
	Source           string     `json:"source"`
	Status           string     `json:"status"`
	WorkoutsImported int        `json:"workouts_imported"`
	WorkoutsSkipped  int        `json:"workouts_skipped"`
	MetricsImported  int        `json:"metrics_imported"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}
