package alpha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/claude/injuryrisk/internal/ingest"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/normalize"
)

// Source is the source tag stored with Alpha Progression records.
const Source = "alpha"

// ErrInvalidCSV is returned for exports the parser cannot follow.
var ErrInvalidCSV = errors.New("invalid Alpha Progression CSV")

// minutesPerSet estimates session length when the export has no duration.
const minutesPerSet = 3

// Provider processes Alpha Progression CSV exports.
type Provider struct {
	svc *ingest.Service
	log *slog.Logger
}

// NewProvider creates a new Alpha Progression ingest provider.
func NewProvider(svc *ingest.Service, log *slog.Logger) *Provider {
	return &Provider{svc: svc, log: log}
}

// Ingest parses a CSV export and stores each session as a strength workout.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, userID int) (*models.ImportSummary, error) {
	sessions, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	p.log.Debug("parsed Alpha Progression export", "sessions", len(sessions))
	return p.svc.Ingest(ctx, userID, Convert(sessions))
}

// Convert maps sessions onto raw strength workouts. Intensity comes from
// the mean reps-in-reserve of the working sets.
func Convert(sessions []Session) ingest.Batch {
	b := ingest.Batch{Source: Source}
	for _, s := range sessions {
		working := s.WorkingSets()
		minutes, ok := s.Minutes()
		if !ok {
			minutes = float64(len(working) * minutesPerSet)
		}
		b.Workouts = append(b.Workouts, normalize.RawWorkout{
			Source:      Source,
			ExternalID:  s.Date.Format(time.DateTime),
			Sport:       string(models.SportStrength),
			StartTime:   s.Date,
			DurationSec: minutes * 60,
			Zone:        string(zoneFromRIR(working)),
		})
	}
	return b
}

// zoneFromRIR grades effort: sets taken close to failure are hard.
func zoneFromRIR(sets []Set) models.IntensityZone {
	if len(sets) == 0 {
		return models.Z2
	}
	var sum float64
	for _, s := range sets {
		sum += s.RIR
	}
	switch mean := sum / float64(len(sets)); {
	case mean <= 1:
		return models.Z4
	case mean <= 3:
		return models.Z3
	default:
		return models.Z2
	}
}
