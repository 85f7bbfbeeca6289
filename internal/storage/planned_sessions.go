package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/injuryrisk/internal/models"
)

// InsertPlannedSession stores a planned session. A zero ID is replaced with
// a new random one; the stored ID is returned.
func (db *DB) InsertPlannedSession(ctx context.Context, p models.PlannedSession) (uuid.UUID, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO planned_sessions (id, user_id, sport_type, duration_minutes, intensity_zone, scheduled_date, notes)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.UserID, string(p.SportType), p.DurationMinutes, string(p.IntensityZone),
		models.Day(p.ScheduledDate), p.Notes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting planned session: %w", err)
	}
	return p.ID, nil
}

// GetPlannedSession returns one session owned by userID, or ErrNotFound.
func (db *DB) GetPlannedSession(ctx context.Context, userID int, id uuid.UUID) (*models.PlannedSession, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, sport_type, duration_minutes, intensity_zone, scheduled_date, notes
		 FROM planned_sessions
		 WHERE id = $1 AND user_id = $2`,
		id, userID)
	p, err := scanPlannedSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying planned session: %w", err)
	}
	return p, nil
}

// ListPlannedSessions returns sessions scheduled on or after from.
func (db *DB) ListPlannedSessions(ctx context.Context, userID int, from time.Time, limit int) ([]models.PlannedSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, sport_type, duration_minutes, intensity_zone, scheduled_date, notes
		 FROM planned_sessions
		 WHERE user_id = $1 AND scheduled_date >= $2
		 ORDER BY scheduled_date ASC, created_at ASC
		 LIMIT $3`,
		userID, models.Day(from), limit)
	if err != nil {
		return nil, fmt.Errorf("querying planned sessions: %w", err)
	}
	defer rows.Close()

	var result []models.PlannedSession
	for rows.Next() {
		p, err := scanPlannedSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning planned session: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func scanPlannedSession(row pgx.Row) (*models.PlannedSession, error) {
	var p models.PlannedSession
	var sport, zone string
	if err := row.Scan(&p.ID, &p.UserID, &sport, &p.DurationMinutes, &zone, &p.ScheduledDate, &p.Notes); err != nil {
		return nil, err
	}
	p.SportType = models.SportType(sport)
	p.IntensityZone = models.IntensityZone(zone)
	return &p, nil
}
