package mcp

import (
	"context"
	"time"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/service"
	"github.com/claude/injuryrisk/internal/storage"
)

// DataSource abstracts the evaluation layer for MCP tools. Both
// *service.Service (local) and HTTPClient (remote via REST API) satisfy
// this interface.
type DataSource interface {
	Evaluate(ctx context.Context, userID int, date time.Time, planned *models.PlannedSession) (*models.PredictionResult, error)
	Snapshot(ctx context.Context, userID int, date time.Time) (*baseline.Snapshot, error)
	ImportStats(ctx context.Context, userID int) (*models.ImportStats, error)
	Predictions(ctx context.Context, userID, limit int) ([]models.PredictionResult, error)
	LoadSummary(ctx context.Context, userID int, start, end time.Time, bucket string) ([]storage.LoadSummaryPeriod, error)
}

// Compile-time check: *service.Service satisfies DataSource.
var _ DataSource = (*service.Service)(nil)
