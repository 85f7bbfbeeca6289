// Package service assembles stored history for a user and runs evaluations
// against it. It is shared by the HTTP handlers and the MCP tools.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/normalize"
	"github.com/claude/injuryrisk/internal/predict"
	"github.com/claude/injuryrisk/internal/storage"
)

// ErrInvalidInput marks a request the caller must fix before retrying.
var ErrInvalidInput = errors.New("invalid input")

// Store is the read and write surface the service needs. *storage.DB
// satisfies it.
type Store interface {
	QueryWorkouts(ctx context.Context, userID int, start, end time.Time) ([]models.Workout, error)
	QueryDailyMetrics(ctx context.Context, userID int, start, end time.Time) ([]models.DailyMetric, error)
	GetSymptom(ctx context.Context, userID int, date time.Time) (*models.SymptomEntry, error)
	LatestIngest(ctx context.Context, userID int) (time.Time, error)
	LastWorkoutBefore(ctx context.Context, userID int, t time.Time) (*time.Time, error)

	InsertPlannedSession(ctx context.Context, p models.PlannedSession) (uuid.UUID, error)
	GetPlannedSession(ctx context.Context, userID int, id uuid.UUID) (*models.PlannedSession, error)
	ListPlannedSessions(ctx context.Context, userID int, from time.Time, limit int) ([]models.PlannedSession, error)

	InsertPrediction(ctx context.Context, userID int, plannedID *uuid.UUID, p *models.PredictionResult) error
	QueryPredictions(ctx context.Context, userID, limit int) ([]models.PredictionResult, error)

	GetImportStats(ctx context.Context, userID int) (*models.ImportStats, error)
	QueryImportLogs(ctx context.Context, userID, limit int) ([]models.ImportLog, error)
	GetLoadSummary(ctx context.Context, userID int, start, end time.Time, bucket string) ([]storage.LoadSummaryPeriod, error)
}

var _ Store = (*storage.DB)(nil)

// Service evaluates users from stored history.
type Service struct {
	store Store
	eval  *predict.Evaluator
	log   *slog.Logger
	now   func() time.Time
}

// New creates a service.
func New(store Store, eval *predict.Evaluator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, eval: eval, log: log, now: time.Now}
}

// today returns date truncated to a calendar day, or today in UTC when zero.
func (s *Service) today(date time.Time) time.Time {
	if date.IsZero() {
		return models.Day(s.now().UTC())
	}
	return models.Day(date)
}

// History loads everything the baseline engine looks at for day: the
// longest trailing window plus the day itself.
func (s *Service) History(ctx context.Context, userID int, day time.Time) (baseline.History, error) {
	cfg := s.eval.Config().Baseline
	lookback := max(cfg.WindowDays, cfg.ChronicDays) + 1
	start := day.AddDate(0, 0, -lookback)
	end := day.AddDate(0, 0, 1)

	h := baseline.History{UserID: userID}
	var err error
	if h.Workouts, err = s.store.QueryWorkouts(ctx, userID, start, end); err != nil {
		return h, fmt.Errorf("loading workouts: %w", err)
	}
	if h.Metrics, err = s.store.QueryDailyMetrics(ctx, userID, start, end); err != nil {
		return h, fmt.Errorf("loading daily metrics: %w", err)
	}
	if h.LastWorkout, err = s.store.LastWorkoutBefore(ctx, userID, day); err != nil {
		return h, fmt.Errorf("loading last workout: %w", err)
	}
	if h.LatestIngest, err = s.store.LatestIngest(ctx, userID); err != nil {
		return h, fmt.Errorf("loading latest ingest: %w", err)
	}
	return h, nil
}

// Evaluate scores day (today when zero) for a user. planned, when set, is
// evaluated as a what-if session and is not stored.
func (s *Service) Evaluate(ctx context.Context, userID int, date time.Time, planned *models.PlannedSession) (*models.PredictionResult, error) {
	day := s.today(date)
	if planned != nil {
		p := *planned
		if p.ScheduledDate.IsZero() {
			p.ScheduledDate = day
		}
		p, err := normalize.PlannedSession(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		p.UserID = userID
		planned = &p
	}
	return s.evaluate(ctx, userID, day, planned, nil)
}

// EvaluatePlanned scores a stored planned session on its scheduled date.
func (s *Service) EvaluatePlanned(ctx context.Context, userID int, id uuid.UUID) (*models.PredictionResult, error) {
	p, err := s.store.GetPlannedSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, userID, s.today(p.ScheduledDate), p, &p.ID)
}

func (s *Service) evaluate(ctx context.Context, userID int, day time.Time, planned *models.PlannedSession, plannedID *uuid.UUID) (*models.PredictionResult, error) {
	h, err := s.History(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	symptom, err := s.store.GetSymptom(ctx, userID, day)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading symptom: %w", err)
	}

	res, err := s.eval.Evaluate(ctx, predict.Request{
		History: h,
		Date:    day,
		Symptom: symptom,
		Planned: planned,
	})
	if err != nil {
		return nil, err
	}

	// A prediction that could not be recorded is still returned.
	if err := s.store.InsertPrediction(ctx, userID, plannedID, res); err != nil {
		s.log.Error("failed to store prediction", "user_id", userID, "date", res.Date, "error", err)
	}
	return res, nil
}

// Snapshot returns the baseline and load state for day (today when zero).
func (s *Service) Snapshot(ctx context.Context, userID int, date time.Time) (*baseline.Snapshot, error) {
	day := s.today(date)
	h, err := s.History(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if len(h.Workouts) == 0 && len(h.Metrics) == 0 && h.LastWorkout == nil {
		return nil, predict.ErrNoData
	}
	snap := s.eval.Engine().Snapshot(ctx, h, day)
	return &snap, nil
}

// CreatePlannedSession validates and stores a planned session.
func (s *Service) CreatePlannedSession(ctx context.Context, userID int, p models.PlannedSession) (*models.PlannedSession, error) {
	if p.ScheduledDate.IsZero() {
		p.ScheduledDate = s.today(time.Time{})
	}
	p, err := normalize.PlannedSession(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p.UserID = userID
	id, err := s.store.InsertPlannedSession(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id
	return &p, nil
}

// UpcomingSessions lists planned sessions from today onwards.
func (s *Service) UpcomingSessions(ctx context.Context, userID, limit int) ([]models.PlannedSession, error) {
	return s.store.ListPlannedSessions(ctx, userID, s.today(time.Time{}), limit)
}

// Predictions returns the most recent stored predictions.
func (s *Service) Predictions(ctx context.Context, userID, limit int) ([]models.PredictionResult, error) {
	return s.store.QueryPredictions(ctx, userID, limit)
}

// ImportStats returns record counts and the covered date range.
func (s *Service) ImportStats(ctx context.Context, userID int) (*models.ImportStats, error) {
	return s.store.GetImportStats(ctx, userID)
}

// ImportLogs returns the most recent import log rows.
func (s *Service) ImportLogs(ctx context.Context, userID, limit int) ([]models.ImportLog, error) {
	return s.store.QueryImportLogs(ctx, userID, limit)
}

// LoadSummary returns training volume per bucket ("day", "week" or "month").
func (s *Service) LoadSummary(ctx context.Context, userID int, start, end time.Time, bucket string) ([]storage.LoadSummaryPeriod, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	return s.store.GetLoadSummary(ctx, userID, start, end, bucket)
}
