package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/injuryrisk/internal/models"
)

// UpsertSymptom stores the symptom entry for its date. The latest write wins.
func (db *DB) UpsertSymptom(ctx context.Context, s models.SymptomEntry) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO symptoms (user_id, date, pain_score, pain_location, swelling, muscle_soreness,
		 fatigue, sleep_quality, perceived_readiness, notes)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (user_id, date) DO UPDATE SET
		   pain_score = EXCLUDED.pain_score, pain_location = EXCLUDED.pain_location,
		   swelling = EXCLUDED.swelling, muscle_soreness = EXCLUDED.muscle_soreness,
		   fatigue = EXCLUDED.fatigue, sleep_quality = EXCLUDED.sleep_quality,
		   perceived_readiness = EXCLUDED.perceived_readiness, notes = EXCLUDED.notes,
		   updated_at = NOW()`,
		s.UserID, models.Day(s.Date), s.PainScore, s.PainLocation, s.Swelling, s.MuscleSoreness,
		s.Fatigue, s.SleepQuality, s.PerceivedReadiness, s.Notes)
	if err != nil {
		return fmt.Errorf("upserting symptom: %w", err)
	}
	return nil
}

// GetSymptom returns the entry for date, or ErrNotFound.
func (db *DB) GetSymptom(ctx context.Context, userID int, date time.Time) (*models.SymptomEntry, error) {
	var s models.SymptomEntry
	err := db.Pool.QueryRow(ctx,
		`SELECT user_id, date, pain_score, pain_location, swelling, muscle_soreness, fatigue,
		 sleep_quality, perceived_readiness, notes, updated_at
		 FROM symptoms
		 WHERE user_id = $1 AND date = $2`,
		userID, models.Day(date),
	).Scan(&s.UserID, &s.Date, &s.PainScore, &s.PainLocation, &s.Swelling, &s.MuscleSoreness,
		&s.Fatigue, &s.SleepQuality, &s.PerceivedReadiness, &s.Notes, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying symptom: %w", err)
	}
	return &s, nil
}
