// Package importer bulk-loads a directory of device exports: FIT activity
// files, Health Auto Export JSON payloads and Alpha Progression CSVs.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude/injuryrisk/internal/ingest/alpha"
	"github.com/claude/injuryrisk/internal/ingest/fit"
	"github.com/claude/injuryrisk/internal/ingest/hae"
	"github.com/claude/injuryrisk/internal/models"
)

// HAEIngester stores one Health Auto Export payload.
type HAEIngester interface {
	Ingest(ctx context.Context, payload *models.HAEPayload, userID int) (*models.ImportSummary, error)
}

// FITIngester stores one FIT file.
type FITIngester interface {
	Ingest(ctx context.Context, data []byte, userID int) (*models.ImportSummary, error)
}

// AlphaIngester stores one Alpha Progression CSV export.
type AlphaIngester interface {
	Ingest(ctx context.Context, r io.Reader, userID int) (*models.ImportSummary, error)
}

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	WorkoutsImported int
	WorkoutsSkipped  int
	MetricsImported  int
	RecordsRejected  int
}

// Importer walks an export directory and feeds each file to its provider.
type Importer struct {
	hae    HAEIngester
	fit    FITIngester
	alpha  AlphaIngester
	state  *StateDB
	log    *slog.Logger
	dryRun bool
	stats  Stats
}

// Providers groups the per-format ingesters.
type Providers struct {
	HAE   HAEIngester
	FIT   FITIngester
	Alpha AlphaIngester
}

// New creates a new Importer. state may be nil, in which case every file is
// read on every run.
func New(p Providers, state *StateDB, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{hae: p.HAE, fit: p.FIT, alpha: p.Alpha, state: state, log: log, dryRun: dryRun}
}

type fileKind int

const (
	kindUnknown fileKind = iota
	kindFIT
	kindHAE
	kindAlpha
)

func kindOf(path string) fileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fit":
		return kindFIT
	case ".json":
		return kindHAE
	case ".csv":
		return kindAlpha
	default:
		return kindUnknown
	}
}

// Import processes every .fit, .json and .csv file under dir for userID, in
// lexical path order. Unreadable or malformed files are counted and
// skipped; storage failures abort the run.
func (imp *Importer) Import(ctx context.Context, dir string, userID int) (*Stats, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if kindOf(path) != kindUnknown {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return &imp.stats, fmt.Errorf("walking %s: %w", dir, err)
	}
	imp.log.Info("found export files", "dir", dir, "count", len(files))

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}
		if err := imp.importFile(ctx, dir, path, userID); err != nil {
			return &imp.stats, err
		}
	}
	return &imp.stats, nil
}

func (imp *Importer) importFile(ctx context.Context, root, path string, userID int) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	info, err := os.Stat(path)
	if err != nil {
		imp.log.Warn("stat failed", "file", rel, "error", err)
		imp.stats.FilesErrored++
		return nil
	}

	var hash string
	if imp.state != nil {
		hash, err = HashFile(path)
		if err != nil {
			imp.log.Warn("hash failed", "file", rel, "error", err)
			imp.stats.FilesErrored++
			return nil
		}
		done, err := imp.state.IsImported(rel, userID, info.Size(), hash)
		if err != nil {
			return fmt.Errorf("checking state for %s: %w", rel, err)
		}
		if done {
			imp.stats.FilesSkipped++
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		imp.log.Warn("read failed", "file", rel, "error", err)
		imp.stats.FilesErrored++
		return nil
	}

	var summary *models.ImportSummary
	switch kindOf(path) {
	case kindFIT:
		summary, err = imp.importFIT(ctx, data, userID)
	case kindHAE:
		summary, err = imp.importHAE(ctx, data, userID)
	case kindAlpha:
		summary, err = imp.importAlpha(ctx, data, userID)
	}
	if err != nil {
		if isFileError(err) {
			imp.log.Warn("skipping malformed file", "file", rel, "error", err)
			imp.stats.FilesErrored++
			return nil
		}
		return fmt.Errorf("importing %s: %w", rel, err)
	}

	imp.stats.FilesProcessed++
	imp.stats.WorkoutsImported += summary.WorkoutsImported
	imp.stats.WorkoutsSkipped += summary.WorkoutsSkipped
	imp.stats.MetricsImported += summary.MetricsImported
	imp.stats.RecordsRejected += len(summary.Errors)
	imp.log.Info("imported file",
		"file", rel,
		"workouts", summary.WorkoutsImported,
		"skipped", summary.WorkoutsSkipped,
		"metrics", summary.MetricsImported,
		"rejected", len(summary.Errors),
	)

	if imp.dryRun || imp.state == nil {
		return nil
	}
	if err := imp.state.MarkImported(rel, userID, info.Size(), hash); err != nil {
		return fmt.Errorf("recording state for %s: %w", rel, err)
	}
	return nil
}

// errMalformed marks payloads that are not valid JSON exports.
var errMalformed = errors.New("malformed export")

func isFileError(err error) bool {
	return errors.Is(err, fit.ErrInvalidFile) || errors.Is(err, alpha.ErrInvalidCSV) || errors.Is(err, errMalformed)
}

func (imp *Importer) importFIT(ctx context.Context, data []byte, userID int) (*models.ImportSummary, error) {
	if !imp.dryRun {
		return imp.fit.Ingest(ctx, data, userID)
	}
	workouts, err := fit.Parse(data)
	if err != nil {
		return nil, err
	}
	return &models.ImportSummary{Success: true, WorkoutsImported: len(workouts)}, nil
}

func (imp *Importer) importHAE(ctx context.Context, data []byte, userID int) (*models.ImportSummary, error) {
	var payload models.HAEPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if !imp.dryRun {
		return imp.hae.Ingest(ctx, &payload, userID)
	}
	b := hae.Convert(&payload, imp.log)
	return &models.ImportSummary{
		Success:          true,
		WorkoutsImported: len(b.Workouts),
		MetricsImported:  len(b.Daily),
		Errors:           b.Errors,
	}, nil
}

func (imp *Importer) importAlpha(ctx context.Context, data []byte, userID int) (*models.ImportSummary, error) {
	if !imp.dryRun {
		return imp.alpha.Ingest(ctx, bytes.NewReader(data), userID)
	}
	sessions, err := alpha.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", alpha.ErrInvalidCSV, err)
	}
	return &models.ImportSummary{Success: true, WorkoutsImported: len(sessions)}, nil
}
