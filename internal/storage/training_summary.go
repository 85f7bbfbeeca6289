package storage

import (
	"context"
	"fmt"
	"time"
)

// SportPeriodSummary holds aggregated workout stats for one sport within a period.
type SportPeriodSummary struct {
	SportType    string   `json:"sport_type"`
	Count        int      `json:"count"`
	TotalMinutes float64  `json:"total_minutes"`
	TotalTRIMP   float64  `json:"total_trimp"`
	HardSessions int      `json:"hard_sessions"`
	AvgHeartRate *float64 `json:"avg_hr,omitempty"`
}

// LoadSummaryPeriod holds the training volume for one time period.
type LoadSummaryPeriod struct {
	Period       string               `json:"period"`
	Sessions     int                  `json:"sessions"`
	TotalMinutes float64              `json:"total_minutes"`
	TotalTRIMP   float64              `json:"total_trimp"`
	Sports       []SportPeriodSummary `json:"sports"`
}

// GetLoadSummary returns workout volume per period and sport, newest period first.
func (db *DB) GetLoadSummary(ctx context.Context, userID int, start, end time.Time, bucket string) ([]LoadSummaryPeriod, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, start_time AT TIME ZONE 'UTC')::date AS period,
		        sport_type,
		        COUNT(*)::int,
		        COALESCE(SUM(duration_minutes), 0),
		        COALESCE(SUM(trimp), 0),
		        COUNT(*) FILTER (WHERE intensity_zone IN ('Z4', 'Z5'))::int,
		        AVG(avg_hr)
		 FROM workouts
		 WHERE start_time >= $2 AND start_time < $3 AND user_id = $4
		 GROUP BY period, sport_type
		 ORDER BY period DESC, COUNT(*) DESC`,
		truncInterval(bucket), start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying load summary: %w", err)
	}
	defer rows.Close()

	periodMap := make(map[string]*LoadSummaryPeriod)
	var periodOrder []string

	for rows.Next() {
		var periodTime time.Time
		var s SportPeriodSummary
		if err := rows.Scan(&periodTime, &s.SportType, &s.Count, &s.TotalMinutes, &s.TotalTRIMP,
			&s.HardSessions, &s.AvgHeartRate); err != nil {
			return nil, fmt.Errorf("scanning load summary: %w", err)
		}
		key := periodTime.Format(time.DateOnly)
		p, ok := periodMap[key]
		if !ok {
			p = &LoadSummaryPeriod{Period: key}
			periodMap[key] = p
			periodOrder = append(periodOrder, key)
		}
		p.Sessions += s.Count
		p.TotalMinutes += s.TotalMinutes
		p.TotalTRIMP += s.TotalTRIMP
		p.Sports = append(p.Sports, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]LoadSummaryPeriod, 0, len(periodOrder))
	for _, key := range periodOrder {
		result = append(result, *periodMap[key])
	}
	return result, nil
}

// truncInterval converts bucket strings like "1 week" to the interval name
// that date_trunc expects. Weekly buckets are the default.
func truncInterval(bucket string) string {
	switch bucket {
	case "1 day", "day":
		return "day"
	case "1 month", "month":
		return "month"
	default:
		return "week"
	}
}
