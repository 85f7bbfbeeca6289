package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/injuryrisk/internal/models"
)

// GetImportStats returns counts and the covered date range of a user's data.
func (db *DB) GetImportStats(ctx context.Context, userID int) (*models.ImportStats, error) {
	stats := &models.ImportStats{}

	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM workouts WHERE user_id = $1`, userID,
	).Scan(&stats.TotalWorkouts)
	if err != nil {
		return nil, fmt.Errorf("counting workouts: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM daily_metrics WHERE user_id = $1`, userID,
	).Scan(&stats.TotalMetrics)
	if err != nil {
		return nil, fmt.Errorf("counting daily metrics: %w", err)
	}

	// Date range (earliest/latest across metrics and workouts)
	var earliest, latest *time.Time
	err = db.Pool.QueryRow(ctx,
		`SELECT MIN(d), MAX(d) FROM (
			SELECT (start_time AT TIME ZONE 'UTC')::date AS d FROM workouts WHERE user_id = $1
			UNION ALL
			SELECT date FROM daily_metrics WHERE user_id = $1
		) sub`, userID,
	).Scan(&earliest, &latest)
	if err != nil {
		return nil, fmt.Errorf("querying date range: %w", err)
	}
	if earliest != nil {
		stats.DateRange.Earliest = earliest.Format(time.DateOnly)
	}
	if latest != nil {
		stats.DateRange.Latest = latest.Format(time.DateOnly)
	}
	return stats, nil
}

// LatestIngest returns the newest ingestion timestamp for a user's workouts
// and daily metrics, or the zero time when nothing is stored.
func (db *DB) LatestIngest(ctx context.Context, userID int) (time.Time, error) {
	var latest *time.Time
	err := db.Pool.QueryRow(ctx,
		`SELECT GREATEST(
			(SELECT MAX(ingested_at) FROM workouts WHERE user_id = $1),
			(SELECT MAX(updated_at) FROM daily_metrics WHERE user_id = $1)
		)`, userID,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying latest ingest: %w", err)
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return latest.UTC(), nil
}
