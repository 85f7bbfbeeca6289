package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/injuryrisk/internal/models"
)

// InsertPrediction stores a prediction. The full result is kept as JSONB so
// history reads return exactly what was served. plannedID may be nil.
func (db *DB) InsertPrediction(ctx context.Context, userID int, plannedID *uuid.UUID, p *models.PredictionResult) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	date, err := time.Parse(time.DateOnly, p.Date)
	if err != nil {
		return fmt.Errorf("parsing prediction date %q: %w", p.Date, err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding prediction: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO predictions (id, user_id, date, planned_session_id, risk_score, risk_level, confidence, result, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, userID, date, plannedID, p.RiskScore, string(p.RiskLevel), p.Confidence, raw, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting prediction: %w", err)
	}
	return nil
}

// QueryPredictions returns the most recent predictions for a user.
func (db *DB) QueryPredictions(ctx context.Context, userID, limit int) ([]models.PredictionResult, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT result
		 FROM predictions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var result []models.PredictionResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		var p models.PredictionResult
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding prediction: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
