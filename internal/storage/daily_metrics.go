package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/injuryrisk/internal/models"
)

// UpsertDailyMetrics merges daily snapshots into storage. A new value fills
// an empty column; an existing value is kept except for resting HR, where the
// lowest reading wins. Returns the number of rows inserted or changed, so an
// identical re-import counts zero.
func (db *DB) UpsertDailyMetrics(ctx context.Context, userID int, rows []models.DailyMetric) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, m := range rows {
		batch.Queue(
			`INSERT INTO daily_metrics AS d (user_id, date, source, hrv_rmssd, hrv_score, resting_hr,
			 sleep_minutes, sleep_score, readiness, stress_score)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			 ON CONFLICT (user_id, date) DO UPDATE SET
			   hrv_rmssd     = COALESCE(d.hrv_rmssd, EXCLUDED.hrv_rmssd),
			   hrv_score     = COALESCE(d.hrv_score, EXCLUDED.hrv_score),
			   resting_hr    = LEAST(d.resting_hr, EXCLUDED.resting_hr),
			   sleep_minutes = COALESCE(d.sleep_minutes, EXCLUDED.sleep_minutes),
			   sleep_score   = COALESCE(d.sleep_score, EXCLUDED.sleep_score),
			   readiness     = COALESCE(d.readiness, EXCLUDED.readiness),
			   stress_score  = COALESCE(d.stress_score, EXCLUDED.stress_score),
			   updated_at    = NOW()
			 WHERE (d.hrv_rmssd IS NULL AND EXCLUDED.hrv_rmssd IS NOT NULL)
			    OR (d.hrv_score IS NULL AND EXCLUDED.hrv_score IS NOT NULL)
			    OR (EXCLUDED.resting_hr < d.resting_hr)
			    OR (d.resting_hr IS NULL AND EXCLUDED.resting_hr IS NOT NULL)
			    OR (d.sleep_minutes IS NULL AND EXCLUDED.sleep_minutes IS NOT NULL)
			    OR (d.sleep_score IS NULL AND EXCLUDED.sleep_score IS NOT NULL)
			    OR (d.readiness IS NULL AND EXCLUDED.readiness IS NOT NULL)
			    OR (d.stress_score IS NULL AND EXCLUDED.stress_score IS NOT NULL)`,
			userID, models.Day(m.Date), m.Source, m.HRVRMSSD, m.HRVScore, m.RestingHR,
			m.SleepMinutes, m.SleepScore, m.Readiness, m.StressScore)
	}

	br := db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	var affected int64
	for range rows {
		tag, err := br.Exec()
		if err != nil {
			return affected, fmt.Errorf("upserting daily metric: %w", err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}

// QueryDailyMetrics retrieves daily snapshots dated in [start, end), oldest first.
func (db *DB) QueryDailyMetrics(ctx context.Context, userID int, start, end time.Time) ([]models.DailyMetric, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT user_id, date, source, hrv_rmssd, hrv_score, resting_hr, sleep_minutes,
		 sleep_score, readiness, stress_score, updated_at
		 FROM daily_metrics
		 WHERE user_id = $1 AND date >= $2 AND date < $3
		 ORDER BY date ASC`,
		userID, models.Day(start), models.Day(end))
	if err != nil {
		return nil, fmt.Errorf("querying daily metrics: %w", err)
	}
	defer rows.Close()

	var result []models.DailyMetric
	for rows.Next() {
		var m models.DailyMetric
		if err := rows.Scan(&m.UserID, &m.Date, &m.Source, &m.HRVRMSSD, &m.HRVScore, &m.RestingHR,
			&m.SleepMinutes, &m.SleepScore, &m.Readiness, &m.StressScore, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning daily metric: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
