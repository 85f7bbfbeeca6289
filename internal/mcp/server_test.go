package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/predict"
	"github.com/claude/injuryrisk/internal/storage"
)

// fakeSource records the arguments of the last call.
type fakeSource struct {
	userID  int
	date    time.Time
	planned *models.PlannedSession
	limit   int
	bucket  string
	err     error
}

func (f *fakeSource) Evaluate(_ context.Context, userID int, date time.Time, planned *models.PlannedSession) (*models.PredictionResult, error) {
	f.userID, f.date, f.planned = userID, date, planned
	if f.err != nil {
		return nil, f.err
	}
	return &models.PredictionResult{RiskScore: 42, RiskLevel: models.RiskYellow}, nil
}

func (f *fakeSource) Snapshot(_ context.Context, userID int, date time.Time) (*baseline.Snapshot, error) {
	f.userID, f.date = userID, date
	if f.err != nil {
		return nil, f.err
	}
	return &baseline.Snapshot{Date: date}, nil
}

func (f *fakeSource) ImportStats(_ context.Context, userID int) (*models.ImportStats, error) {
	f.userID = userID
	return &models.ImportStats{TotalWorkouts: 3}, f.err
}

func (f *fakeSource) Predictions(_ context.Context, userID, limit int) ([]models.PredictionResult, error) {
	f.userID, f.limit = userID, limit
	return nil, f.err
}

func (f *fakeSource) LoadSummary(_ context.Context, userID int, _, _ time.Time, bucket string) ([]storage.LoadSummaryPeriod, error) {
	f.userID, f.bucket = userID, bucket
	return []storage.LoadSummaryPeriod{{Period: "2024-03-04", Sessions: 2}}, f.err
}

func newHandlers(ds DataSource) *handlers {
	return &handlers{ds: ds, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

// TestUserIDFromContextDefault verifies the default user ID (1) when no value
// is set in the context.
func TestUserIDFromContextDefault(t *testing.T) {
	ctx := context.Background()
	if id := UserIDFromContext(ctx); id != 1 {
		t.Errorf("UserIDFromContext(empty) = %d, want 1", id)
	}
}

// TestUserIDFromContextSet verifies the user ID is extracted from context
// after being set by WithUserID.
func TestUserIDFromContextSet(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	if id := UserIDFromContext(ctx); id != 42 {
		t.Errorf("UserIDFromContext = %d, want 42", id)
	}
}

// TestHTTPContext verifies the X-User-ID header selects the user and bad
// values fall back to the default.
func TestHTTPContext(t *testing.T) {
	tests := []struct {
		header string
		want   int
	}{
		{"7", 7},
		{"", 1},
		{"abc", 1},
		{"-3", 1},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("POST", "/mcp", nil)
		if tt.header != "" {
			r.Header.Set(UserIDHeader, tt.header)
		}
		if got := UserIDFromContext(HTTPContext(context.Background(), r)); got != tt.want {
			t.Errorf("header %q: user = %d, want %d", tt.header, got, tt.want)
		}
	}
}

// TestDefaultTimeRange verifies time range defaults and parsing.
func TestDefaultTimeRange(t *testing.T) {
	// Both empty → defaults to the last 7 days
	start, end, err := defaultTimeRange("", "", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	diff := end.Sub(start)
	if diff.Hours() < 167 || diff.Hours() > 169 { // ~168 hours = 7 days
		t.Errorf("default range = %.0f hours, want ~168", diff.Hours())
	}

	// Explicit dates
	start, end, err = defaultTimeRange("2024-01-01", "2024-01-31", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Year() != 2024 || start.Month() != 1 || start.Day() != 1 {
		t.Errorf("start = %v, want 2024-01-01", start)
	}
	if end.Year() != 2024 || end.Month() != 1 || end.Day() != 31 {
		t.Errorf("end = %v, want 2024-01-31", end)
	}

	// RFC3339
	start, _, err = defaultTimeRange("2024-06-15T10:30:00Z", "", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Hour() != 10 || start.Minute() != 30 {
		t.Errorf("start = %v, want 10:30", start)
	}

	// Invalid
	_, _, err = defaultTimeRange("not-a-date", "", 7)
	if err == nil {
		t.Error("expected error for invalid date")
	}
}

// TestEvaluateSessionWhatIf verifies tool arguments become a planned
// session scoped to the context user.
func TestEvaluateSessionWhatIf(t *testing.T) {
	ds := &fakeSource{}
	h := newHandlers(ds)
	ctx := WithUserID(context.Background(), 5)

	res, err := h.evaluateSession(ctx, callRequest(map[string]any{
		"date":             "2024-03-10",
		"sport_type":       "running",
		"duration_minutes": 45.0,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if ds.userID != 5 {
		t.Errorf("user = %d, want 5", ds.userID)
	}
	if ds.planned == nil || ds.planned.SportType != models.SportRunning || ds.planned.DurationMinutes != 45 || ds.planned.IntensityZone != models.Z2 {
		t.Errorf("planned = %+v, want running 45 min Z2", ds.planned)
	}
	if !ds.date.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", ds.date)
	}
	if !strings.Contains(resultText(t, res), `"risk_level":"YELLOW"`) {
		t.Errorf("result = %s", resultText(t, res))
	}
}

// TestEvaluateSessionValidation verifies bad arguments are tool errors and
// never reach the data source.
func TestEvaluateSessionValidation(t *testing.T) {
	ds := &fakeSource{}
	h := newHandlers(ds)

	for _, args := range []map[string]any{
		{"date": "10/03/2024"},
		{"sport_type": "running"},
	} {
		res, err := h.evaluateSession(context.Background(), callRequest(args))
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
	if ds.userID != 0 {
		t.Error("data source was called")
	}
}

// TestNoDataMessage verifies an empty history reads as guidance rather than
// a failure.
func TestNoDataMessage(t *testing.T) {
	h := newHandlers(&fakeSource{err: predict.ErrNoData})
	res, err := h.getBaseline(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "no data yet") {
		t.Errorf("result = %+v", res)
	}

	h = newHandlers(&fakeSource{err: errors.New("db down")})
	res, _ = h.getBaseline(context.Background(), callRequest(nil))
	if !res.IsError || !strings.Contains(resultText(t, res), "query failed") {
		t.Errorf("result = %+v", res)
	}
}

// TestListPredictionsLimit verifies the default and the bounds on limit.
func TestListPredictionsLimit(t *testing.T) {
	ds := &fakeSource{}
	h := newHandlers(ds)

	if _, err := h.listPredictions(context.Background(), callRequest(nil)); err != nil {
		t.Fatal(err)
	}
	if ds.limit != 10 {
		t.Errorf("limit = %d, want 10", ds.limit)
	}

	res, _ := h.listPredictions(context.Background(), callRequest(map[string]any{"limit": 0.0}))
	if !res.IsError {
		t.Error("expected error for limit 0")
	}
}

// TestGetLoadSummaryBucket verifies the bucket default and validation.
func TestGetLoadSummaryBucket(t *testing.T) {
	ds := &fakeSource{}
	h := newHandlers(ds)

	res, err := h.getLoadSummary(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || ds.bucket != "week" {
		t.Errorf("bucket = %q, error = %v", ds.bucket, res.IsError)
	}

	res, _ = h.getLoadSummary(context.Background(), callRequest(map[string]any{"bucket": "year"}))
	if !res.IsError {
		t.Error("expected error for bucket year")
	}
}

// TestTodayResource verifies the resource reports an empty history without
// failing.
func TestTodayResource(t *testing.T) {
	h := newHandlers(&fakeSource{err: predict.ErrNoData})
	var req mcp.ReadResourceRequest
	req.Params.URI = "injuryrisk://today"

	contents, err := h.today(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "no data yet") {
		t.Errorf("today = %s", text)
	}

	h = newHandlers(&fakeSource{})
	contents, err = h.today(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text = contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"evaluation"`) || !strings.Contains(text, `"snapshot"`) {
		t.Errorf("today = %s", text)
	}
}
