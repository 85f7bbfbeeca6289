// Package hae decodes Health Auto Export REST payloads into ingest batches.
package hae

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/claude/injuryrisk/internal/ingest"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/normalize"
)

// Source is the source tag stored with HAE records.
const Source = "hae"

// Provider processes Health Auto Export REST API payloads.
type Provider struct {
	svc *ingest.Service
	log *slog.Logger
}

// NewProvider creates a new HAE ingest provider.
func NewProvider(svc *ingest.Service, log *slog.Logger) *Provider {
	return &Provider{svc: svc, log: log}
}

// Ingest converts an HAE JSON payload and stores the usable records.
func (p *Provider) Ingest(ctx context.Context, payload *models.HAEPayload, userID int) (*models.ImportSummary, error) {
	batch := Convert(payload, p.log)
	return p.svc.Ingest(ctx, userID, batch)
}

// dayAgg accumulates samples for one calendar date.
type dayAgg struct {
	hrvSum   float64
	hrvN     int
	rhr      *float64
	sleepHr  float64
	hasSleep bool
}

// Convert maps a payload onto raw records. Metrics are folded into one
// RawDaily per calendar date: HRV samples are averaged, the lowest resting
// HR wins and sleep hours are summed by wake date. Unsupported metrics are
// ignored.
func Convert(payload *models.HAEPayload, log *slog.Logger) ingest.Batch {
	if log == nil {
		log = slog.Default()
	}
	b := ingest.Batch{Source: Source}
	days := map[time.Time]*dayAgg{}
	day := func(t time.Time) *dayAgg {
		d := models.Day(t)
		if days[d] == nil {
			days[d] = &dayAgg{}
		}
		return days[d]
	}

	for _, m := range payload.Data.Metrics {
		kind := DetectMetricKind(m.Name)
		if kind == KindUnsupported {
			log.Debug("ignoring unsupported metric", "metric", m.Name, "points", len(m.Data))
			continue
		}
		for i, raw := range m.Data {
			if err := addPoint(kind, raw, day); err != nil {
				b.Errors = append(b.Errors, fmt.Sprintf("%s point %d: %v", m.Name, i+1, err))
			}
		}
	}

	dates := make([]time.Time, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for _, d := range dates {
		a := days[d]
		r := normalize.RawDaily{Source: Source, Date: d, RestingHR: a.rhr}
		if a.hrvN > 0 {
			v := a.hrvSum / float64(a.hrvN)
			r.HRVRMSSD = &v
		}
		if a.hasSleep {
			v := a.sleepHr
			r.SleepHours = &v
		}
		b.Daily = append(b.Daily, r)
	}

	for _, w := range payload.Data.Workouts {
		b.Workouts = append(b.Workouts, convertWorkout(w))
	}
	return b
}

func addPoint(kind MetricKind, raw json.RawMessage, day func(time.Time) *dayAgg) error {
	if kind == KindSleep {
		return addSleep(raw, day)
	}
	var dp models.HAEMetricDataPoint
	if err := json.Unmarshal(raw, &dp); err != nil {
		return fmt.Errorf("parsing qty: %w", err)
	}
	if dp.Date.IsZero() {
		return fmt.Errorf("missing date")
	}
	a := day(dp.Date.Time)
	switch kind {
	case KindHRV:
		a.hrvSum += dp.Qty
		a.hrvN++
	case KindRestingHR:
		if a.rhr == nil || dp.Qty < *a.rhr {
			v := dp.Qty
			a.rhr = &v
		}
	}
	return nil
}

func addSleep(raw json.RawMessage, day func(time.Time) *dayAgg) error {
	switch DetectSleepFormat(raw) {
	case SleepFormatUnaggregated:
		var dp models.HAESleepStage
		if err := json.Unmarshal(raw, &dp); err != nil {
			return fmt.Errorf("parsing sleep stage: %w", err)
		}
		stage, ok := models.NormalizeSleepStage(dp.Value)
		if !ok {
			return fmt.Errorf("unknown sleep stage %q", dp.Value)
		}
		if !models.CountsAsSleep(stage) {
			return nil
		}
		a := day(dp.EndDate.Time)
		a.sleepHr += dp.Qty
		a.hasSleep = true

	default:
		var dp models.HAESleepAggregated
		if err := json.Unmarshal(raw, &dp); err != nil {
			return fmt.Errorf("parsing sleep summary: %w", err)
		}
		date, err := models.ParseHAETime(dp.Date)
		if err != nil {
			return err
		}
		hours := dp.TotalSleep
		if hours == 0 {
			hours = dp.Asleep + dp.Core + dp.Deep + dp.REM
		}
		a := day(date)
		a.sleepHr += hours
		a.hasSleep = true
	}
	return nil
}

func convertWorkout(w models.HAEWorkout) normalize.RawWorkout {
	r := normalize.RawWorkout{
		Source:      Source,
		ExternalID:  w.ID,
		Sport:       w.Name,
		StartTime:   w.Start.Time,
		DurationSec: w.Duration,
	}
	if r.DurationSec == 0 && !w.End.IsZero() {
		r.DurationSec = w.End.Sub(w.Start.Time).Seconds()
	}
	if w.Distance != nil {
		r.Distance = &w.Distance.Qty
		r.DistanceUnits = w.Distance.Units
	}
	if w.ActiveEnergyBurned != nil {
		r.Energy = &w.ActiveEnergyBurned.Qty
		r.EnergyUnits = w.ActiveEnergyBurned.Units
	}
	if w.HeartRate != nil {
		r.AvgHR = &w.HeartRate.Avg.Qty
		r.MaxHR = &w.HeartRate.Max.Qty
	} else {
		if w.AvgHR != nil {
			r.AvgHR = &w.AvgHR.Qty
		}
		if w.MaxHR != nil {
			r.MaxHR = &w.MaxHR.Qty
		}
	}
	return r
}
