package server

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/injuryrisk/internal/ingest"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/normalize"
	"github.com/claude/injuryrisk/internal/predict"
	"github.com/claude/injuryrisk/internal/service"
	"github.com/claude/injuryrisk/internal/storage"
	"github.com/claude/injuryrisk/internal/thresholds"
)

const testAPIKey = "test-key"

// memStore is an in-memory stand-in for *storage.DB.
type memStore struct {
	mu          sync.Mutex
	workouts    map[int][]models.Workout
	metrics     map[int]map[time.Time]models.DailyMetric
	symptoms    map[int]map[time.Time]models.SymptomEntry
	planned     map[uuid.UUID]models.PlannedSession
	predictions map[int][]models.PredictionResult
	logs        []models.ImportLog
}

func newMemStore() *memStore {
	return &memStore{
		workouts:    map[int][]models.Workout{},
		metrics:     map[int]map[time.Time]models.DailyMetric{},
		symptoms:    map[int]map[time.Time]models.SymptomEntry{},
		planned:     map[uuid.UUID]models.PlannedSession{},
		predictions: map[int][]models.PredictionResult{},
	}
}

var (
	_ service.Store = (*memStore)(nil)
	_ ingest.Store  = (*memStore)(nil)
)

func (m *memStore) InsertWorkouts(_ context.Context, userID int, rows []models.Workout) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
next:
	for _, w := range rows {
		for _, have := range m.workouts[userID] {
			if have.Source == w.Source && have.StartTime.Equal(w.StartTime) {
				continue next
			}
		}
		w.UserID = userID
		w.IngestedAt = time.Now()
		m.workouts[userID] = append(m.workouts[userID], w)
		n++
	}
	return n, nil
}

func (m *memStore) UpsertDailyMetrics(_ context.Context, userID int, rows []models.DailyMetric) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metrics[userID] == nil {
		m.metrics[userID] = map[time.Time]models.DailyMetric{}
	}
	for _, d := range rows {
		d.UpdatedAt = time.Now()
		m.metrics[userID][d.Date] = d
	}
	return int64(len(rows)), nil
}

func (m *memStore) UpsertSymptom(_ context.Context, s models.SymptomEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.symptoms[s.UserID] == nil {
		m.symptoms[s.UserID] = map[time.Time]models.SymptomEntry{}
	}
	m.symptoms[s.UserID][s.Date] = s
	return nil
}

func (m *memStore) InsertImportLog(_ context.Context, log models.ImportLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return int64(len(m.logs)), nil
}

func (m *memStore) FinishImportLog(_ context.Context, id int64, log models.ImportLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = id
	m.logs[id-1] = log
	return nil
}

func (m *memStore) QueryWorkouts(_ context.Context, userID int, start, end time.Time) ([]models.Workout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Workout
	for _, w := range m.workouts[userID] {
		if !w.StartTime.Before(start) && w.StartTime.Before(end) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memStore) QueryDailyMetrics(_ context.Context, userID int, start, end time.Time) ([]models.DailyMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailyMetric
	for d, row := range m.metrics[userID] {
		if !d.Before(start) && d.Before(end) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) GetSymptom(_ context.Context, userID int, date time.Time) (*models.SymptomEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.symptoms[userID][models.Day(date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) LastWorkoutBefore(_ context.Context, userID int, t time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, w := range m.workouts[userID] {
		if w.StartTime.Before(t) && (last == nil || w.StartTime.After(*last)) {
			start := w.StartTime
			last = &start
		}
	}
	return last, nil
}

func (m *memStore) LatestIngest(_ context.Context, userID int) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	for _, w := range m.workouts[userID] {
		if w.IngestedAt.After(latest) {
			latest = w.IngestedAt
		}
	}
	for _, d := range m.metrics[userID] {
		if d.UpdatedAt.After(latest) {
			latest = d.UpdatedAt
		}
	}
	return latest, nil
}

func (m *memStore) InsertPlannedSession(_ context.Context, p models.PlannedSession) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	m.planned[p.ID] = p
	return p.ID, nil
}

func (m *memStore) GetPlannedSession(_ context.Context, userID int, id uuid.UUID) (*models.PlannedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.planned[id]
	if !ok || p.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) ListPlannedSessions(_ context.Context, userID int, from time.Time, limit int) ([]models.PlannedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.PlannedSession{}
	for _, p := range m.planned {
		if p.UserID == userID && !p.ScheduledDate.Before(from) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) InsertPrediction(_ context.Context, userID int, _ *uuid.UUID, p *models.PredictionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[userID] = append([]models.PredictionResult{*p}, m.predictions[userID]...)
	return nil
}

func (m *memStore) QueryPredictions(_ context.Context, userID, limit int) ([]models.PredictionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.PredictionResult{}, m.predictions[userID]...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetImportStats(_ context.Context, userID int) (*models.ImportStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ms []models.DailyMetric
	for _, d := range m.metrics[userID] {
		ms = append(ms, d)
	}
	stats := normalize.Stats(m.workouts[userID], ms)
	return &stats, nil
}

func (m *memStore) QueryImportLogs(_ context.Context, userID, limit int) ([]models.ImportLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ImportLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].UserID == userID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memStore) GetLoadSummary(context.Context, int, time.Time, time.Time, string) ([]storage.LoadSummaryPeriod, error) {
	return []storage.LoadSummaryPeriod{}, nil
}

// newTestServer wires a server over an in-memory store.
func newTestServer() (*Server, *memStore) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newMemStore()
	eval := predict.New(thresholds.Default(), nil, log)
	ing := ingest.NewService(st, eval.Engine(), normalize.DefaultAthlete(), log)
	return New(service.New(st, eval, log), ing, testAPIKey, log), st
}
