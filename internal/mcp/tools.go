package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/predict"
)

// defaultTimeRange returns start/end defaulting to the last days days.
func defaultTimeRange(startStr, endStr string, days int) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -days)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// optionalDate parses s, returning the zero time (today) when empty.
func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseFlexTime(s)
}

// --- Tool definitions ---

var toolEvaluateSession = mcp.NewTool("evaluate_session",
	mcp.WithDescription("Evaluate injury risk for a day. With sport_type and duration_minutes, scores that planned session as a what-if; otherwise scores the day itself. Returns score, level (GREEN/YELLOW/RED), top factors, triggered safety rules and safer alternatives."),
	mcp.WithString("date", mcp.Description("Day to evaluate (YYYY-MM-DD). Defaults to today.")),
	mcp.WithString("sport_type", mcp.Description("Planned sport"), mcp.Enum("running", "cycling", "swimming", "strength", "hiit", "yoga", "other")),
	mcp.WithNumber("duration_minutes", mcp.Description("Planned duration in minutes")),
	mcp.WithString("intensity", mcp.Description("Planned intensity zone. Defaults to Z2."), mcp.Enum("Z1", "Z2", "Z3", "Z4", "Z5")),
)

var toolGetBaseline = mcp.NewTool("get_baseline",
	mcp.WithDescription("Get the rolling HRV, resting heart rate and sleep baselines together with acute/chronic training load and today's values."),
	mcp.WithString("date", mcp.Description("Reference day (YYYY-MM-DD). Defaults to today.")),
)

var toolGetImportStats = mcp.NewTool("get_import_stats",
	mcp.WithDescription("Count stored workouts and daily metrics, with the covered date range."),
)

var toolListPredictions = mcp.NewTool("list_predictions",
	mcp.WithDescription("List the most recent stored predictions, newest first."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of predictions. Defaults to 10.")),
)

var toolGetLoadSummary = mcp.NewTool("get_load_summary",
	mcp.WithDescription("Training volume per period: session counts, minutes and TRIMP, broken down by sport."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 12 weeks ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
	mcp.WithString("bucket", mcp.Description("Aggregation period. Defaults to 'week'."), mcp.Enum("day", "week", "month")),
)

// --- Tool handlers ---

// toolError renders err as a tool-level error, keeping the empty-history
// case readable for the model.
func (h *handlers) toolError(tool string, err error) *mcp.CallToolResult {
	if errors.Is(err, predict.ErrNoData) {
		return mcp.NewToolResultError("no data yet: ingest workouts or daily metrics first")
	}
	h.log.Error("mcp "+tool, "error", err)
	return mcp.NewToolResultError("query failed: " + err.Error())
}

func (h *handlers) evaluateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := optionalDate(req.GetString("date", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	var planned *models.PlannedSession
	if sport := req.GetString("sport_type", ""); sport != "" {
		minutes := req.GetFloat("duration_minutes", 0)
		if minutes <= 0 {
			return mcp.NewToolResultError("duration_minutes is required with sport_type"), nil
		}
		planned = &models.PlannedSession{
			SportType:       models.SportType(sport),
			DurationMinutes: minutes,
			IntensityZone:   models.IntensityZone(req.GetString("intensity", string(models.Z2))),
			ScheduledDate:   date,
		}
	}

	uid := UserIDFromContext(ctx)
	res, err := h.ds.Evaluate(ctx, uid, date, planned)
	if err != nil {
		return h.toolError("evaluate_session", err), nil
	}

	result, err := mcp.NewToolResultJSON(res)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getBaseline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := optionalDate(req.GetString("date", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	snap, err := h.ds.Snapshot(ctx, uid, date)
	if err != nil {
		return h.toolError("get_baseline", err), nil
	}

	result, err := mcp.NewToolResultJSON(snap)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getImportStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)
	stats, err := h.ds.ImportStats(ctx, uid)
	if err != nil {
		return h.toolError("get_import_stats", err), nil
	}

	result, err := mcp.NewToolResultJSON(stats)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listPredictions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	if limit <= 0 || limit > 500 {
		return mcp.NewToolResultError("limit must be between 1 and 500"), nil
	}

	uid := UserIDFromContext(ctx)
	preds, err := h.ds.Predictions(ctx, uid, limit)
	if err != nil {
		return h.toolError("list_predictions", err), nil
	}

	result, err := mcp.NewToolResultJSON(preds)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getLoadSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), 12*7)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	bucket := req.GetString("bucket", "week")
	switch bucket {
	case "day", "week", "month":
	default:
		return mcp.NewToolResultError("bucket must be day, week or month"), nil
	}

	uid := UserIDFromContext(ctx)
	periods, err := h.ds.LoadSummary(ctx, uid, start, end, bucket)
	if err != nil {
		return h.toolError("get_load_summary", err), nil
	}

	result, err := mcp.NewToolResultJSON(periods)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
