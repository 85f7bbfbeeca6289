package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/predict"
	"github.com/claude/injuryrisk/internal/storage"
)

// HTTPClient implements DataSource by calling the InjuryRisk REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func userPath(userID int, path string) string {
	return "/api/v1/users/" + strconv.Itoa(userID) + path
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && bytes.Contains(data, []byte("no data yet")):
		return nil, predict.ErrNoData
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, data)
	}

	return data, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

func dateParams(date time.Time) url.Values {
	v := url.Values{}
	if !date.IsZero() {
		v.Set("date", date.Format(time.DateOnly))
	}
	return v
}

// evaluateBody mirrors the server's evaluate request.
type evaluateBody struct {
	Date           string       `json:"date,omitempty"`
	PlannedSession *plannedBody `json:"planned_session,omitempty"`
}

type plannedBody struct {
	SportType       string  `json:"sport_type"`
	DurationMinutes float64 `json:"duration_minutes"`
	Intensity       string  `json:"intensity"`
	ScheduledDate   string  `json:"scheduled_date,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

func (c *HTTPClient) Evaluate(ctx context.Context, userID int, date time.Time, planned *models.PlannedSession) (*models.PredictionResult, error) {
	var body evaluateBody
	if !date.IsZero() {
		body.Date = date.Format(time.DateOnly)
	}
	if planned != nil {
		body.PlannedSession = &plannedBody{
			SportType:       string(planned.SportType),
			DurationMinutes: planned.DurationMinutes,
			Intensity:       string(planned.IntensityZone),
			Notes:           planned.Notes,
		}
		if !planned.ScheduledDate.IsZero() {
			body.PlannedSession.ScheduledDate = planned.ScheduledDate.Format(time.DateOnly)
		}
	}

	data, err := c.do(ctx, http.MethodPost, userPath(userID, "/evaluate"), nil, body)
	if err != nil {
		return nil, err
	}

	var res models.PredictionResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("httpclient: decode prediction: %w", err)
	}
	return &res, nil
}

func (c *HTTPClient) Snapshot(ctx context.Context, userID int, date time.Time) (*baseline.Snapshot, error) {
	data, err := c.get(ctx, userPath(userID, "/baseline"), dateParams(date))
	if err != nil {
		return nil, err
	}

	var snap baseline.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("httpclient: decode baseline: %w", err)
	}
	return &snap, nil
}

func (c *HTTPClient) ImportStats(ctx context.Context, userID int) (*models.ImportStats, error) {
	data, err := c.get(ctx, userPath(userID, "/import/stats"), nil)
	if err != nil {
		return nil, err
	}

	var stats models.ImportStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("httpclient: decode import stats: %w", err)
	}
	return &stats, nil
}

func (c *HTTPClient) Predictions(ctx context.Context, userID, limit int) ([]models.PredictionResult, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	data, err := c.get(ctx, userPath(userID, "/predictions"), params)
	if err != nil {
		return nil, err
	}

	var preds []models.PredictionResult
	if err := json.Unmarshal(data, &preds); err != nil {
		return nil, fmt.Errorf("httpclient: decode predictions: %w", err)
	}
	return preds, nil
}

func (c *HTTPClient) LoadSummary(ctx context.Context, userID int, start, end time.Time, bucket string) ([]storage.LoadSummaryPeriod, error) {
	params := url.Values{}
	params.Set("start", start.Format(time.RFC3339))
	params.Set("end", end.Format(time.RFC3339))
	params.Set("bucket", bucket)

	data, err := c.get(ctx, userPath(userID, "/load"), params)
	if err != nil {
		return nil, err
	}

	var periods []storage.LoadSummaryPeriod
	if err := json.Unmarshal(data, &periods); err != nil {
		return nil, fmt.Errorf("httpclient: decode load summary: %w", err)
	}
	return periods, nil
}
