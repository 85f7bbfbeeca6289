package ingest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/normalize"
	"github.com/claude/injuryrisk/internal/storage"
)

// memStore mimics the database's conflict handling in memory.
type memStore struct {
	mu       sync.Mutex
	workouts map[string]models.Workout
	metrics  map[string]models.DailyMetric
	symptoms map[string]models.SymptomEntry
	logs     []models.ImportLog
	failNext error

	concurrent int
	maxSeen    int
}

func newMemStore() *memStore {
	return &memStore{
		workouts: map[string]models.Workout{},
		metrics:  map[string]models.DailyMetric{},
		symptoms: map[string]models.SymptomEntry{},
	}
}

func key(userID int, parts ...string) string {
	k := strconv.Itoa(userID)
	for _, p := range parts {
		k += "|" + p
	}
	return k
}

func (m *memStore) InsertWorkouts(_ context.Context, userID int, rows []models.Workout) (int64, error) {
	m.mu.Lock()
	m.concurrent++
	if m.concurrent > m.maxSeen {
		m.maxSeen = m.concurrent
	}
	m.mu.Unlock()
	time.Sleep(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.concurrent--
	if err := m.failNext; err != nil {
		m.failNext = nil
		return 0, err
	}
	var n int64
	for _, w := range rows {
		k := key(userID, normalize.DedupKey(w.Source, w.StartTime))
		if _, ok := m.workouts[k]; ok {
			continue
		}
		m.workouts[k] = w
		n++
	}
	return n, nil
}

func (m *memStore) UpsertDailyMetrics(_ context.Context, userID int, rows []models.DailyMetric) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range rows {
		k := key(userID, d.Date.Format(time.DateOnly))
		prev, ok := m.metrics[k]
		merged := d
		if ok {
			merged = normalize.Merge(prev, d)
			if equalMetric(prev, merged) {
				continue
			}
		}
		m.metrics[k] = merged
		n++
	}
	return n, nil
}

func equalMetric(a, b models.DailyMetric) bool {
	eq := func(x, y *float64) bool { return (x == nil && y == nil) || (x != nil && y != nil && *x == *y) }
	return eq(a.HRVRMSSD, b.HRVRMSSD) && eq(a.RestingHR, b.RestingHR) && eq(a.SleepMinutes, b.SleepMinutes) &&
		eq(a.HRVScore, b.HRVScore) && eq(a.SleepScore, b.SleepScore) && eq(a.Readiness, b.Readiness) &&
		eq(a.StressScore, b.StressScore)
}

func (m *memStore) UpsertSymptom(_ context.Context, s models.SymptomEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symptoms[key(s.UserID, s.Date.Format(time.DateOnly))] = s
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
	m.logs[id-1] = log
	return nil
}

type countingCache struct {
	mu    sync.Mutex
	calls map[int]int
}

func (c *countingCache) Invalidate(_ context.Context, userID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[int]int{}
	}
	c.calls[userID]++
}

func f(v float64) *float64 { return &v }

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// sampleBatch has 10 workouts on distinct days and 28 daily snapshots.
func sampleBatch() Batch {
	b := Batch{Source: "test"}
	for i := 0; i < 10; i++ {
		b.Workouts = append(b.Workouts, normalize.RawWorkout{
			Source:      "test",
			Sport:       "Running",
			StartTime:   day0.AddDate(0, 0, i*2).Add(7 * time.Hour),
			DurationSec: 3600,
			AvgHR:       f(145),
		})
	}
	for i := 0; i < 28; i++ {
		b.Daily = append(b.Daily, normalize.RawDaily{
			Source:    "test",
			Date:      day0.AddDate(0, 0, i),
			HRVRMSSD:  f(60),
			RestingHR: f(50),
		})
	}
	return b
}

// TestIngestCountsAndStats verifies a clean batch imports every record and
// the stored records summarize to the expected date range.
func TestIngestCountsAndStats(t *testing.T) {
	store := newMemStore()
	cache := &countingCache{}
	svc := NewService(store, cache, normalize.DefaultAthlete(), nil)

	sum, err := svc.Ingest(context.Background(), 1, sampleBatch())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !sum.Success || sum.WorkoutsImported != 10 || sum.WorkoutsSkipped != 0 || sum.MetricsImported != 28 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Errors) != 0 {
		t.Errorf("errors = %v", sum.Errors)
	}

	var ws []models.Workout
	for _, w := range store.workouts {
		ws = append(ws, w)
	}
	var ms []models.DailyMetric
	for _, m := range store.metrics {
		ms = append(ms, m)
	}
	stats := normalize.Stats(ws, ms)
	if stats.TotalWorkouts != 10 || stats.TotalMetrics != 28 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.DateRange.Earliest != "2024-01-01" || stats.DateRange.Latest != "2024-01-28" {
		t.Errorf("date range = %+v", stats.DateRange)
	}

	if cache.calls[1] != 1 {
		t.Errorf("cache invalidations = %d, want 1", cache.calls[1])
	}
	if got := store.logs[0]; got.Status != storage.ImportSuccess || got.WorkoutsImported != 10 {
		t.Errorf("import log = %+v", got)
	}
}

// TestIngestIsIdempotent verifies a repeated upload counts every workout as
// skipped and leaves the cache alone.
func TestIngestIsIdempotent(t *testing.T) {
	store := newMemStore()
	cache := &countingCache{}
	svc := NewService(store, cache, normalize.DefaultAthlete(), nil)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, 1, sampleBatch()); err != nil {
		t.Fatal(err)
	}
	sum, err := svc.Ingest(ctx, 1, sampleBatch())
	if err != nil {
		t.Fatal(err)
	}
	if sum.WorkoutsImported != 0 || sum.WorkoutsSkipped != 10 || sum.MetricsImported != 0 {
		t.Errorf("second summary = %+v", sum)
	}
	if !sum.Success {
		t.Errorf("repeat import should succeed: %+v", sum)
	}
	if cache.calls[1] != 1 {
		t.Errorf("cache invalidations = %d, want 1", cache.calls[1])
	}
	if len(store.workouts) != 10 {
		t.Errorf("stored workouts = %d", len(store.workouts))
	}

	// Another user may store the same device timestamps.
	sum, err = svc.Ingest(ctx, 2, sampleBatch())
	if err != nil {
		t.Fatal(err)
	}
	if sum.WorkoutsImported != 10 {
		t.Errorf("user 2 imported = %d, want 10", sum.WorkoutsImported)
	}
}

// TestIngestMalformedRecords verifies bad records are reported per record
// while the rest of the batch is stored.
func TestIngestMalformedRecords(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, normalize.DefaultAthlete(), nil)
	b := sampleBatch()
	b.Workouts = append(b.Workouts,
		normalize.RawWorkout{Source: "test", Sport: "Run", StartTime: day0, DurationSec: 0},
		b.Workouts[0],
	)
	b.Daily = append(b.Daily, normalize.RawDaily{Source: "test", Date: day0.AddDate(0, 1, 0), RestingHR: f(400)})
	b.Errors = []string{"decoder: point 3 unreadable"}

	sum, err := svc.Ingest(context.Background(), 1, b)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Success {
		t.Fatalf("summary = %+v, want success", sum)
	}
	if sum.WorkoutsImported != 10 || sum.WorkoutsSkipped != 1 {
		t.Errorf("workouts = %d imported / %d skipped", sum.WorkoutsImported, sum.WorkoutsSkipped)
	}
	if len(sum.Errors) < 3 {
		t.Errorf("errors = %v, want decoder, workout and metric errors", sum.Errors)
	}
	if sum.Errors[0] != "decoder: point 3 unreadable" {
		t.Errorf("first error = %q", sum.Errors[0])
	}
}

// TestIngestNothingUsable verifies an all-bad batch reports failure and logs
// the import as an error.
func TestIngestNothingUsable(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, normalize.DefaultAthlete(), nil)
	sum, err := svc.Ingest(context.Background(), 1, Batch{
		Source:   "test",
		Workouts: []normalize.RawWorkout{{Source: "test", Sport: "Run", DurationSec: 60}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Success {
		t.Errorf("summary = %+v, want failure", sum)
	}
	if store.logs[0].Status != storage.ImportError || store.logs[0].ErrorMessage == nil {
		t.Errorf("import log = %+v", store.logs[0])
	}
}

// TestIngestStorageFailure verifies a storage error aborts the batch and
// marks the import log.
func TestIngestStorageFailure(t *testing.T) {
	store := newMemStore()
	store.failNext = errors.New("connection reset")
	svc := NewService(store, nil, normalize.DefaultAthlete(), nil)

	_, err := svc.Ingest(context.Background(), 1, sampleBatch())
	if err == nil {
		t.Fatal("expected error")
	}
	if store.logs[0].Status != storage.ImportError {
		t.Errorf("import log status = %q", store.logs[0].Status)
	}
	if len(store.metrics) != 0 {
		t.Errorf("metrics stored after workout failure: %d", len(store.metrics))
	}
}

// TestIngestSerializesPerUser verifies overlapping uploads for one user never
// reach the store concurrently and never double count.
func TestIngestSerializesPerUser(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, normalize.DefaultAthlete(), nil)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := svc.Ingest(context.Background(), 1, sampleBatch())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			total += sum.WorkoutsImported
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 10 {
		t.Errorf("total imported = %d, want 10", total)
	}
	if store.maxSeen != 1 {
		t.Errorf("max concurrent writes = %d, want 1", store.maxSeen)
	}
}

// TestRecordSymptom verifies entries are clamped, truncated to the day and
// invalidate the cache.
func TestRecordSymptom(t *testing.T) {
	store := newMemStore()
	cache := &countingCache{}
	svc := NewService(store, cache, normalize.DefaultAthlete(), nil)

	got, err := svc.RecordSymptom(context.Background(), models.SymptomEntry{
		UserID:    3,
		Date:      day0.Add(15 * time.Hour),
		PainScore: 12,
		Fatigue:   4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.PainScore != 10 || !got.Date.Equal(day0) {
		t.Errorf("entry = %+v", got)
	}
	if _, ok := store.symptoms[key(3, "2024-01-01")]; !ok {
		t.Error("symptom not stored")
	}
	if cache.calls[3] != 1 {
		t.Errorf("invalidations = %d", cache.calls[3])
	}

	if _, err := svc.RecordSymptom(context.Background(), models.SymptomEntry{UserID: 3}); err == nil {
		t.Error("expected error for missing date")
	}
}

// TestLockStripesStayInRange verifies any user id, including large and
// negative ones, maps onto a fixed lock and the same id always shares it.
func TestLockStripesStayInRange(t *testing.T) {
	for _, id := range []int{0, 1, 63, 64, 65, 1 << 40, -1, -64} {
		s := stripe(id)
		if s < 0 || s >= lockStripes {
			t.Errorf("stripe(%d) = %d out of range", id, s)
		}
		if stripe(id) != s {
			t.Errorf("stripe(%d) not stable", id)
		}
	}
	if stripe(1) == stripe(2) {
		t.Error("adjacent users share a stripe")
	}
}
