package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/injuryrisk/internal/models"
)

const workoutColumns = `id, user_id, source, external_id, sport_type, start_time, duration_minutes,
	 distance_meters, avg_hr, max_hr, calories, trimp, intensity_zone, ingested_at`

// workoutCols is the number of bind parameters per inserted workout row.
const workoutCols = 13

// maxWorkoutsPerInsert keeps one INSERT under the 65535 bind-parameter limit
// of the Postgres extended protocol.
const maxWorkoutsPerInsert = 5000

// InsertWorkouts batch-inserts workouts for one user. Returns the number
// actually inserted; duplicates (same source and start time) are skipped via
// ON CONFLICT DO NOTHING. Large batches are split into several statements.
func (db *DB) InsertWorkouts(ctx context.Context, userID int, rows []models.Workout) (int64, error) {
	var inserted int64
	for _, chunk := range chunkWorkouts(rows, maxWorkoutsPerInsert) {
		query, args := workoutInsert(userID, chunk)
		tag, err := db.Pool.Exec(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("inserting workouts: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// chunkWorkouts splits rows into consecutive slices of at most size rows.
func chunkWorkouts(rows []models.Workout, size int) [][]models.Workout {
	var chunks [][]models.Workout
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		chunks = append(chunks, rows)
	}
	return chunks
}

// workoutInsert builds one multi-row INSERT for rows.
func workoutInsert(userID int, rows []models.Workout) (string, []any) {
	query := `INSERT INTO workouts (id, user_id, source, external_id, sport_type, start_time, duration_minutes,
	 distance_meters, avg_hr, max_hr, calories, trimp, intensity_zone) VALUES `
	args := make([]any, 0, len(rows)*workoutCols)
	valueStrings := make([]string, 0, len(rows))

	for i, w := range rows {
		base := i * workoutCols
		ph := make([]string, workoutCols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		args = append(args, w.ID, userID, w.Source, w.ExternalID, string(w.SportType), w.StartTime,
			w.DurationMinutes, w.DistanceMeters, w.AvgHR, w.MaxHR, w.Calories, w.TRIMP, string(w.IntensityZone))
	}

	return query + strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING", args
}

// LastWorkoutBefore returns the start of the user's most recent workout
// starting before t, or nil when there is none.
func (db *DB) LastWorkoutBefore(ctx context.Context, userID int, t time.Time) (*time.Time, error) {
	var last *time.Time
	err := db.Pool.QueryRow(ctx,
		`SELECT MAX(start_time) FROM workouts WHERE user_id = $1 AND start_time < $2`,
		userID, t,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("querying last workout: %w", err)
	}
	if last != nil {
		utc := last.UTC()
		last = &utc
	}
	return last, nil
}

// QueryWorkouts retrieves workouts starting in [start, end), oldest first.
func (db *DB) QueryWorkouts(ctx context.Context, userID int, start, end time.Time) ([]models.Workout, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+workoutColumns+`
		 FROM workouts
		 WHERE user_id = $1 AND start_time >= $2 AND start_time < $3
		 ORDER BY start_time ASC`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying workouts: %w", err)
	}
	defer rows.Close()

	return scanWorkoutRows(rows)
}

func scanWorkoutRows(rows pgx.Rows) ([]models.Workout, error) {
	var result []models.Workout
	for rows.Next() {
		var w models.Workout
		var sport, zone string
		if err := rows.Scan(&w.ID, &w.UserID, &w.Source, &w.ExternalID, &sport, &w.StartTime,
			&w.DurationMinutes, &w.DistanceMeters, &w.AvgHR, &w.MaxHR, &w.Calories, &w.TRIMP,
			&zone, &w.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning workout: %w", err)
		}
		w.SportType = models.SportType(sport)
		w.IntensityZone = models.IntensityZone(zone)
		result = append(result, w)
	}
	return result, rows.Err()
}
