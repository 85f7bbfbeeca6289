package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/claude/injuryrisk/internal/ingest/alpha"
	"github.com/claude/injuryrisk/internal/ingest/fit"
	"github.com/claude/injuryrisk/internal/models"
)

const alphaCSV = `"Pull · Day 3";"2024-02-08 18:00 h";"0:55 hr"
"1. Rows · Cable · 10 reps"
#;KG;REPS;RIR
1;60;10;2
`

const haeJSON = `{"data":{
  "metrics":[{"name":"heart_rate_variability","units":"ms","data":[
    {"date":"2024-02-06 12:00:00 +0000","qty":55},
    {"date":"2024-02-07 12:00:00 +0000","qty":61}
  ]}],
  "workouts":[{"id":"W1","name":"Outdoor Run",
    "start":"2024-02-06 17:00:00 +0000","end":"2024-02-06 17:45:00 +0000","duration":2700}]
}}`

type fakeHAE struct {
	calls int
	err   error
}

func (f *fakeHAE) Ingest(_ context.Context, p *models.HAEPayload, _ int) (*models.ImportSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.ImportSummary{
		Success:          true,
		WorkoutsImported: len(p.Data.Workouts),
		MetricsImported:  2,
	}, nil
}

type fakeAlpha struct {
	calls int
}

func (f *fakeAlpha) Ingest(_ context.Context, r io.Reader, _ int) (*models.ImportSummary, error) {
	f.calls++
	sessions, err := alpha.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", alpha.ErrInvalidCSV, err)
	}
	return &models.ImportSummary{Success: true, WorkoutsImported: len(sessions)}, nil
}

type fakeFIT struct {
	calls int
	err   error
}

func (f *fakeFIT) Ingest(_ context.Context, _ []byte, _ int) (*models.ImportSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.ImportSummary{Success: true, WorkoutsImported: 1}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// exportDir lays out one HAE export, one FIT file, an unrelated file and a
// hidden directory.
func exportDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "health/2024-02-07.json", haeJSON)
	writeFile(t, dir, "garmin/ride.FIT", "fit-bytes")
	writeFile(t, dir, "notes.txt", "ignore me")
	writeFile(t, dir, ".cache/old.json", haeJSON)
	return dir
}

// TestImportWalksExports verifies both formats are routed to their
// providers and everything else is ignored.
func TestImportWalksExports(t *testing.T) {
	dir := exportDir(t)
	h, f := &fakeHAE{}, &fakeFIT{}

	stats, err := New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, nil, discard(), false).Import(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if h.calls != 1 || f.calls != 1 {
		t.Errorf("calls hae=%d fit=%d, want 1 each", h.calls, f.calls)
	}
	if stats.FilesProcessed != 2 || stats.WorkoutsImported != 2 || stats.MetricsImported != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestImportSkipsImportedFiles verifies the ledger skips unchanged files
// per user and re-reads files whose content changed.
func TestImportSkipsImportedFiles(t *testing.T) {
	dir := exportDir(t)
	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	h, f := &fakeHAE{}, &fakeFIT{}
	if _, err := New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, state, discard(), false).Import(context.Background(), dir, 1); err != nil {
		t.Fatal(err)
	}

	stats, err := New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, state, discard(), false).Import(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 2 || stats.FilesProcessed != 0 {
		t.Errorf("second run stats = %+v, want 2 skipped", stats)
	}

	writeFile(t, dir, "garmin/ride.FIT", "fit-bytes-v2")
	stats, err = New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, state, discard(), false).Import(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 1 || stats.FilesSkipped != 1 {
		t.Errorf("changed-file stats = %+v", stats)
	}

	stats, err = New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, state, discard(), false).Import(context.Background(), dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 2 {
		t.Errorf("other user stats = %+v, want 2 processed", stats)
	}
}

// TestImportMalformedFiles verifies broken files are counted, left out of
// the ledger and do not stop the run.
func TestImportMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", "{not json")
	writeFile(t, dir, "b.fit", "garbage")
	writeFile(t, dir, "c.json", haeJSON)

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	h := &fakeHAE{}
	f := &fakeFIT{err: fmt.Errorf("%w: no sessions", fit.ErrInvalidFile)}
	stats, err := New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, state, discard(), false).Import(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 2 || stats.FilesProcessed != 1 {
		t.Errorf("stats = %+v, want 2 errored and 1 processed", stats)
	}

	for _, rel := range []string{"a.json", "b.fit"} {
		hash, _ := HashFile(filepath.Join(dir, rel))
		info, _ := os.Stat(filepath.Join(dir, rel))
		done, err := state.IsImported(rel, 1, info.Size(), hash)
		if err != nil {
			t.Fatal(err)
		}
		if done {
			t.Errorf("%s recorded as imported", rel)
		}
	}
}

// TestImportStorageFailureAborts verifies a provider storage error stops
// the run.
func TestImportStorageFailureAborts(t *testing.T) {
	dir := exportDir(t)
	h := &fakeHAE{err: errors.New("connection refused")}

	_, err := New(Providers{HAE: h, FIT: &fakeFIT{}, Alpha: &fakeAlpha{}}, nil, discard(), false).Import(context.Background(), dir, 1)
	if err == nil {
		t.Fatal("expected error")
	}
}

// TestImportDryRun verifies files are parsed and counted without calling
// the providers or touching the ledger.
func TestImportDryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "export.json", haeJSON)
	writeFile(t, dir, "broken.fit", "garbage")

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	h, f := &fakeHAE{}, &fakeFIT{}
	stats, err := New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, state, discard(), true).Import(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if h.calls != 0 || f.calls != 0 {
		t.Error("providers called in dry run")
	}
	if stats.FilesProcessed != 1 || stats.FilesErrored != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.WorkoutsImported != 1 || stats.MetricsImported != 2 {
		t.Errorf("counts = %+v, want 1 workout and 2 daily rows", stats)
	}

	stats, err = New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, state, discard(), true).Import(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 0 {
		t.Errorf("dry run wrote to the ledger: %+v", stats)
	}
}

// TestImportCancelled verifies a cancelled context stops before any file.
func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, f := &fakeHAE{}, &fakeFIT{}
	_, err := New(Providers{HAE: h, FIT: f, Alpha: &fakeAlpha{}}, nil, discard(), false).Import(ctx, exportDir(t), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if h.calls+f.calls != 0 {
		t.Error("files imported after cancel")
	}
}

// TestImportAlphaCSV verifies CSV exports reach the strength provider and a
// broken export is counted as a file error.
func TestImportAlphaCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alpha/export.csv", alphaCSV)
	writeFile(t, dir, "alpha/broken.csv", "\"1. Rows · Cable · 10 reps\"\n1;60;10;2\n")

	a := &fakeAlpha{}
	stats, err := New(Providers{HAE: &fakeHAE{}, FIT: &fakeFIT{}, Alpha: a}, nil, discard(), false).Import(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if a.calls != 2 {
		t.Errorf("alpha calls = %d, want 2", a.calls)
	}
	if stats.FilesProcessed != 1 || stats.FilesErrored != 1 || stats.WorkoutsImported != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Dry run parses locally.
	a = &fakeAlpha{}
	stats, err = New(Providers{Alpha: a}, nil, discard(), true).Import(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if a.calls != 0 || stats.FilesProcessed != 1 || stats.FilesErrored != 1 {
		t.Errorf("dry run: calls=%d stats=%+v", a.calls, stats)
	}
}
