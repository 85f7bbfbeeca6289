// Package fit decodes Garmin FIT activity files into ingest batches.
package fit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"github.com/claude/injuryrisk/internal/ingest"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/normalize"
)

// Source is the source tag stored with FIT records.
const Source = "fit"

// ErrInvalidFile is returned for data that is not a decodable FIT activity.
var ErrInvalidFile = errors.New("invalid FIT file")

// Provider ingests FIT files.
type Provider struct {
	svc *ingest.Service
	log *slog.Logger
}

// NewProvider creates a new FIT ingest provider.
func NewProvider(svc *ingest.Service, log *slog.Logger) *Provider {
	return &Provider{svc: svc, log: log}
}

// Ingest decodes one FIT file and stores its sessions as workouts.
func (p *Provider) Ingest(ctx context.Context, data []byte, userID int) (*models.ImportSummary, error) {
	workouts, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p.log.Debug("decoded FIT file", "sessions", len(workouts), "bytes", len(data))
	return p.svc.Ingest(ctx, userID, ingest.Batch{Source: Source, Workouts: workouts})
}

// Parse returns one raw workout per session message. Multisport files
// yield several workouts.
func Parse(data []byte) ([]normalize.RawWorkout, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidFile)
	}

	dec := decoder.New(bytes.NewReader(data))

	var (
		out     []normalize.RawWorkout
		created time.Time
	)
	for dec.Next() {
		fitData, err := dec.Decode()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
		for _, msg := range fitData.Messages {
			switch msg.Num {
			case typedef.MesgNumFileId:
				fileID := mesgdef.NewFileId(&msg)
				if created.IsZero() && !fileID.TimeCreated.IsZero() {
					created = fileID.TimeCreated.UTC()
				}
			case typedef.MesgNumSession:
				out = append(out, session(mesgdef.NewSession(&msg)))
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no sessions found", ErrInvalidFile)
	}
	for i := range out {
		if out[i].StartTime.IsZero() {
			out[i].StartTime = created
		}
	}
	return out, nil
}

func session(s *mesgdef.Session) normalize.RawWorkout {
	r := normalize.RawWorkout{
		Source:    Source,
		Sport:     sportName(s.Sport, s.SubSport),
		StartTime: s.StartTime.UTC(),
	}
	if s.StartTime.IsZero() {
		r.StartTime = s.Timestamp.UTC()
	}

	// Timer time excludes pauses; elapsed time is the fallback.
	switch {
	case s.TotalTimerTime != 0xFFFFFFFF && s.TotalTimerTime > 0:
		r.DurationSec = float64(s.TotalTimerTime) / 1000
	case s.TotalElapsedTime != 0xFFFFFFFF:
		r.DurationSec = float64(s.TotalElapsedTime) / 1000
	}
	if s.TotalDistance != 0xFFFFFFFF {
		m := float64(s.TotalDistance) / 100
		r.Distance = &m
		r.DistanceUnits = "m"
	}
	if s.TotalCalories != 0xFFFF {
		kcal := float64(s.TotalCalories)
		r.Energy = &kcal
		r.EnergyUnits = "kcal"
	}
	if s.AvgHeartRate != 0xFF && s.AvgHeartRate > 0 {
		v := float64(s.AvgHeartRate)
		r.AvgHR = &v
	}
	if s.MaxHeartRate != 0xFF && s.MaxHeartRate > 0 {
		v := float64(s.MaxHeartRate)
		r.MaxHR = &v
	}
	return r
}

// sportName joins sport and sub-sport so keyword matching can see both,
// e.g. "training strength_training".
func sportName(sport typedef.Sport, sub typedef.SubSport) string {
	if sport == typedef.SportInvalid {
		return ""
	}
	name := sport.String()
	if sub != typedef.SubSportInvalid && sub != typedef.SubSportGeneric {
		name += " " + sub.String()
	}
	return name
}
