// Package ingest turns device exports into stored workouts and daily
// metrics. Source-specific decoders live in subpackages and hand a Batch to
// Service.Ingest.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/normalize"
	"github.com/claude/injuryrisk/internal/storage"
)

// Batch is one upload from a single source, already decoded into raw records.
// Errors carries per-record decode failures from the source parser.
type Batch struct {
	Source   string
	Workouts []normalize.RawWorkout
	Daily    []normalize.RawDaily
	Errors   []string
}

// Empty reports whether the batch holds no records and no decode errors.
func (b Batch) Empty() bool {
	return len(b.Workouts) == 0 && len(b.Daily) == 0 && len(b.Errors) == 0
}

// Store persists canonical records. *storage.DB satisfies it.
type Store interface {
	InsertWorkouts(ctx context.Context, userID int, rows []models.Workout) (int64, error)
	UpsertDailyMetrics(ctx context.Context, userID int, rows []models.DailyMetric) (int64, error)
	UpsertSymptom(ctx context.Context, s models.SymptomEntry) error
	InsertImportLog(ctx context.Context, log models.ImportLog) (int64, error)
	FinishImportLog(ctx context.Context, id int64, log models.ImportLog) error
}

// Invalidator drops cached baselines for a user. *baseline.Engine satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int)
}

// lockStripes is the number of mutexes user writes are spread across.
const lockStripes = 64

// Service normalizes and stores batches. Writes for the same user are
// serialized; users on different stripes proceed in parallel.
type Service struct {
	store   Store
	cache   Invalidator
	athlete normalize.Athlete
	log     *slog.Logger

	locks [lockStripes]sync.Mutex
}

// NewService creates an ingest service. cache may be nil.
func NewService(store Store, cache Invalidator, athlete normalize.Athlete, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, cache: cache, athlete: athlete, log: log}
}

func (s *Service) lock(userID int) func() {
	mu := &s.locks[stripe(userID)]
	mu.Lock()
	return mu.Unlock
}

func stripe(userID int) int {
	return int(uint(userID) % lockStripes)
}

// Ingest normalizes and stores a batch. Malformed records are reported in
// the summary; only storage failures return an error. A workout already
// stored for the same source and start time counts as skipped.
func (s *Service) Ingest(ctx context.Context, userID int, b Batch) (*models.ImportSummary, error) {
	workouts, skipped, errs := normalize.Workouts(b.Workouts, s.athlete)
	metrics, metricErrs := normalize.DailyMetrics(b.Daily)
	errs = append(append(append([]string{}, b.Errors...), errs...), metricErrs...)

	unlock := s.lock(userID)
	defer unlock()

	logID, err := s.store.InsertImportLog(ctx, models.ImportLog{
		UserID: userID,
		Source: b.Source,
		Status: storage.ImportRunning,
	})
	if err != nil {
		return nil, fmt.Errorf("creating import log: %w", err)
	}

	entry := models.ImportLog{UserID: userID, Source: b.Source}
	fail := func(err error) (*models.ImportSummary, error) {
		ingestFailures.WithLabelValues(b.Source).Inc()
		msg := err.Error()
		entry.Status = storage.ImportError
		entry.ErrorMessage = &msg
		if ferr := s.store.FinishImportLog(context.WithoutCancel(ctx), logID, entry); ferr != nil {
			s.log.Error("failed to finish import log", "id", logID, "error", ferr)
		}
		return nil, err
	}

	var imported int64
	if len(workouts) > 0 {
		imported, err = s.store.InsertWorkouts(ctx, userID, workouts)
		if err != nil {
			return fail(fmt.Errorf("storing workouts: %w", err))
		}
		skipped += len(workouts) - int(imported)
	}

	var changed int64
	if len(metrics) > 0 {
		changed, err = s.store.UpsertDailyMetrics(ctx, userID, metrics)
		if err != nil {
			return fail(fmt.Errorf("storing daily metrics: %w", err))
		}
	}

	if imported > 0 || changed > 0 {
		s.invalidate(ctx, userID)
	}

	summary := normalize.Summary(int(imported), skipped, int(changed), errs)
	entry.Status = storage.ImportSuccess
	entry.WorkoutsImported = summary.WorkoutsImported
	entry.WorkoutsSkipped = summary.WorkoutsSkipped
	entry.MetricsImported = summary.MetricsImported
	if !summary.Success {
		entry.Status = storage.ImportError
		entry.ErrorMessage = &summary.Message
	}
	if err := s.store.FinishImportLog(ctx, logID, entry); err != nil {
		s.log.Error("failed to finish import log", "id", logID, "error", err)
	}

	workoutsIngested.WithLabelValues(b.Source, "imported").Add(float64(summary.WorkoutsImported))
	workoutsIngested.WithLabelValues(b.Source, "skipped").Add(float64(summary.WorkoutsSkipped))
	metricsIngested.WithLabelValues(b.Source).Add(float64(summary.MetricsImported))
	recordsRejected.WithLabelValues(b.Source).Add(float64(len(errs)))

	s.log.Info("ingest complete",
		"user_id", userID,
		"source", b.Source,
		"workouts_imported", summary.WorkoutsImported,
		"workouts_skipped", summary.WorkoutsSkipped,
		"metrics_imported", summary.MetricsImported,
		"errors", len(errs),
	)
	return &summary, nil
}

// RecordSymptom stores the day's self-report, replacing any earlier entry
// for the same date.
func (s *Service) RecordSymptom(ctx context.Context, entry models.SymptomEntry) (models.SymptomEntry, error) {
	if entry.Date.IsZero() {
		return models.SymptomEntry{}, fmt.Errorf("symptom date is required")
	}
	entry = normalize.Symptom(entry)

	unlock := s.lock(entry.UserID)
	defer unlock()

	if err := s.store.UpsertSymptom(ctx, entry); err != nil {
		return models.SymptomEntry{}, fmt.Errorf("storing symptom: %w", err)
	}
	s.invalidate(ctx, entry.UserID)
	return entry, nil
}

func (s *Service) invalidate(ctx context.Context, userID int) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}
