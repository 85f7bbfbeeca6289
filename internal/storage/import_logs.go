package storage

import (
	"context"
	"fmt"

	"github.com/claude/injuryrisk/internal/models"
)

// Import log statuses.
const (
	ImportRunning = "running"
	ImportSuccess = "success"
	ImportError   = "error"
)

// InsertImportLog creates a new import log entry and returns its ID.
func (db *DB) InsertImportLog(ctx context.Context, log models.ImportLog) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO import_logs (user_id, source, status, workouts_imported, workouts_skipped,
		 metrics_imported, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING id`,
		log.UserID, log.Source, log.Status, log.WorkoutsImported, log.WorkoutsSkipped,
		log.MetricsImported, log.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return id, nil
}

// FinishImportLog records the outcome of a running import (typically from
// "running" to "success" or "error").
func (db *DB) FinishImportLog(ctx context.Context, id int64, log models.ImportLog) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE import_logs SET
		 status = $2, workouts_imported = $3, workouts_skipped = $4,
		 metrics_imported = $5, error_message = $6, finished_at = NOW()
		 WHERE id = $1`,
		id, log.Status, log.WorkoutsImported, log.WorkoutsSkipped,
		log.MetricsImported, log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("updating import log %d: %w", id, err)
	}
	return nil
}

// QueryImportLogs returns the most recent import logs for a user.
func (db *DB) QueryImportLogs(ctx context.Context, userID, limit int) ([]models.ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, source, status, workouts_imported, workouts_skipped,
		 metrics_imported, error_message, created_at, finished_at
		 FROM import_logs
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	var result []models.ImportLog
	for rows.Next() {
		var l models.ImportLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Source, &l.Status, &l.WorkoutsImported,
			&l.WorkoutsSkipped, &l.MetricsImported, &l.ErrorMessage, &l.CreatedAt, &l.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
