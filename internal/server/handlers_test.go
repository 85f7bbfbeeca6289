package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/injuryrisk/internal/models"
)

var evalDay = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	case []byte:
		buf.Write(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (status %d)", err, rec.Code)
	}
	return v
}

// haePayload builds 29 days of steady HRV and resting HR ending on end,
// plus one run two days before end.
func haePayload(end time.Time) string {
	var hrv, rhr []string
	for i := 28; i >= 0; i-- {
		d := end.AddDate(0, 0, -i).Format(time.DateOnly)
		hrv = append(hrv, fmt.Sprintf(`{"date":"%s 07:00:00 +0000","qty":60}`, d))
		rhr = append(rhr, fmt.Sprintf(`{"date":"%s 07:00:00 +0000","qty":50}`, d))
	}
	return fmt.Sprintf(`{"data":{"metrics":[
		{"name":"heart_rate_variability","units":"ms","data":[%s]},
		{"name":"resting_heart_rate","units":"bpm","data":[%s]}
	],"workouts":[
		{"id":"W1","name":"Running","start":"%[3]s 07:00:00 +0000","end":"%[3]s 07:45:00 +0000","duration":2700,
		 "heartRate":{"min":{"qty":110,"units":"bpm"},"avg":{"qty":150,"units":"bpm"},"max":{"qty":170,"units":"bpm"}}}
	]}}`, strings.Join(hrv, ","), strings.Join(rhr, ","), end.AddDate(0, 0, -2).Format(time.DateOnly))
}

// TestHealth verifies the unauthenticated liveness endpoint.
func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestUserRoutesRequireAPIKey verifies missing and wrong keys are rejected.
func TestUserRoutesRequireAPIKey(t *testing.T) {
	s, _ := newTestServer()
	for _, tt := range []struct {
		key  string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"wrong", http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/1/predictions", nil)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("key %q: status = %d, want %d", tt.key, rec.Code, tt.want)
		}
	}
}

// TestInvalidUserID verifies non-numeric user ids are a 400.
func TestInvalidUserID(t *testing.T) {
	s, _ := newTestServer()
	if rec := do(t, s, http.MethodGet, "/api/v1/users/abc/predictions", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestEvaluateWithoutData verifies a user with nothing stored gets a 404
// that names the problem.
func TestEvaluateWithoutData(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s, http.MethodPost, "/api/v1/users/1/evaluate", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["error"], "no data yet") {
		t.Errorf("error = %q", body["error"])
	}
}

// TestIngestThenEvaluate verifies an HAE upload feeds the evaluation and
// that a repeated upload skips the stored workout.
func TestIngestThenEvaluate(t *testing.T) {
	s, _ := newTestServer()

	rec := do(t, s, http.MethodPost, "/api/v1/users/7/ingest/hae", haePayload(evalDay))
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body)
	}
	sum := decodeBody[models.ImportSummary](t, rec)
	if !sum.Success || sum.WorkoutsImported != 1 || sum.MetricsImported != 29 {
		t.Errorf("summary = %+v", sum)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/users/7/ingest/hae", haePayload(evalDay))
	sum = decodeBody[models.ImportSummary](t, rec)
	if sum.WorkoutsImported != 0 || sum.WorkoutsSkipped != 1 {
		t.Errorf("repeat summary = %+v", sum)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/users/7/evaluate", map[string]any{
		"date": "2024-03-10",
		"planned_session": map[string]any{
			"sport_type": "running", "duration_minutes": 50, "intensity": "Z3",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d: %s", rec.Code, rec.Body)
	}
	res := decodeBody[models.PredictionResult](t, rec)
	if res.Date != "2024-03-10" || res.RiskLevel == "" || res.Explanation == "" {
		t.Errorf("result = %+v", res)
	}
	if res.Confidence <= 0 {
		t.Errorf("confidence = %v", res.Confidence)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/users/7/predictions", nil)
	if preds := decodeBody[[]models.PredictionResult](t, rec); len(preds) != 1 {
		t.Errorf("predictions = %d, want 1", len(preds))
	}

	rec = do(t, s, http.MethodGet, "/api/v1/users/7/import/stats", nil)
	stats := decodeBody[models.ImportStats](t, rec)
	if stats.TotalWorkouts != 1 || stats.TotalMetrics != 29 || stats.DateRange.Latest != "2024-03-10" {
		t.Errorf("stats = %+v", stats)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/users/7/import/logs?limit=5", nil)
	if logs := decodeBody[[]models.ImportLog](t, rec); len(logs) != 2 || logs[0].Status != "success" {
		t.Errorf("logs = %+v", logs)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/users/7/baseline?date=2024-03-10", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("baseline status = %d", rec.Code)
	}
}

// TestSymptomForcesRed verifies acute pain reported for a day overrides the
// score even without other data.
func TestSymptomForcesRed(t *testing.T) {
	s, _ := newTestServer()

	rec := do(t, s, http.MethodPost, "/api/v1/users/3/symptoms", map[string]any{
		"date": "2024-03-10", "pain_score": 8, "pain_location": "knee",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("symptom status = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/users/3/evaluate?date=2024-03-10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d: %s", rec.Code, rec.Body)
	}
	res := decodeBody[models.PredictionResult](t, rec)
	if res.RiskLevel != models.RiskRed {
		t.Errorf("level = %s, want RED", res.RiskLevel)
	}
	if len(res.Alternatives) != 1 || res.Alternatives[0].SportType != models.SportRest {
		t.Errorf("alternatives = %+v, want rest only", res.Alternatives)
	}
}

// TestPlannedSessionLifecycle verifies create, list and evaluate-by-id.
func TestPlannedSessionLifecycle(t *testing.T) {
	s, _ := newTestServer()
	today := time.Now().UTC()
	do(t, s, http.MethodPost, "/api/v1/users/4/ingest/hae", haePayload(today))

	future := today.AddDate(0, 0, 2).Format(time.DateOnly)
	rec := do(t, s, http.MethodPost, "/api/v1/users/4/planned-sessions", map[string]any{
		"sport_type": "cycling", "duration_minutes": 90, "intensity": "Z4", "scheduled_date": future,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	p := decodeBody[models.PlannedSession](t, rec)
	if p.SportType != models.SportCycling || p.IntensityZone != models.Z4 {
		t.Errorf("created = %+v", p)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/users/4/planned-sessions", nil)
	if list := decodeBody[[]models.PlannedSession](t, rec); len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("list = %+v", list)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/users/4/planned-sessions/"+p.ID.String()+"/evaluate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d: %s", rec.Code, rec.Body)
	}
	if res := decodeBody[models.PredictionResult](t, rec); res.Date != future {
		t.Errorf("evaluated date = %s, want %s", res.Date, future)
	}

	if rec := do(t, s, http.MethodPost, "/api/v1/users/5/planned-sessions/"+p.ID.String()+"/evaluate", nil); rec.Code != http.StatusNotFound {
		t.Errorf("other user status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/users/4/planned-sessions/nope/evaluate", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

// TestBadInput verifies malformed requests map to 400.
func TestBadInput(t *testing.T) {
	s, _ := newTestServer()
	do(t, s, http.MethodPost, "/api/v1/users/1/ingest/hae", haePayload(evalDay))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"invalid HAE JSON", http.MethodPost, "/api/v1/users/1/ingest/hae", "{"},
		{"non-FIT body", http.MethodPost, "/api/v1/users/1/ingest/fit", "not a fit file"},
		{"unknown sport", http.MethodPost, "/api/v1/users/1/evaluate", map[string]any{
			"date": "2024-03-10", "planned_session": map[string]any{"sport_type": "curling", "duration_minutes": 30, "intensity": "Z2"},
		}},
		{"bad date", http.MethodPost, "/api/v1/users/1/evaluate", map[string]any{"date": "10/03/2024"}},
		{"zero duration", http.MethodPost, "/api/v1/users/1/planned-sessions", map[string]any{
			"sport_type": "running", "duration_minutes": 0, "intensity": "Z2",
		}},
		{"orphan CSV exercise", http.MethodPost, "/api/v1/users/1/ingest/alpha", "\"1. Bench Press · Barbell · 6 reps\"\n1;100;6;1\n"},
		{"bad bucket", http.MethodGet, "/api/v1/users/1/load?bucket=year", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body)
			}
		})
	}
}

// TestLoadSummary verifies the default bucket is accepted.
func TestLoadSummary(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s, http.MethodGet, "/api/v1/users/1/load?start=2024-01-01&end=2024-03-10", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d: %s", rec.Code, rec.Body)
	}
}

// TestAlphaIngest verifies strength sessions from a CSV export are stored
// as workouts and a repeat upload is skipped.
func TestAlphaIngest(t *testing.T) {
	s, _ := newTestServer()
	csv := "\"Push · Day 1\";\"2024-03-08 18:00 h\";\"1:05 hr\"\n" +
		"\"1. Bench Press · Barbell · 6 reps\"\n" +
		"#;KG;REPS;RIR\n1;100;6;1\n2;100;6;0\n"

	rec := do(t, s, http.MethodPost, "/api/v1/users/1/ingest/alpha", csv)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	sum := decodeBody[models.ImportSummary](t, rec)
	if sum.WorkoutsImported != 1 {
		t.Errorf("summary = %+v, want 1 workout", sum)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/users/1/ingest/alpha", csv)
	sum = decodeBody[models.ImportSummary](t, rec)
	if sum.WorkoutsImported != 0 || sum.WorkoutsSkipped != 1 {
		t.Errorf("repeat summary = %+v, want 1 skipped", sum)
	}
}
