package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/cache"
	"github.com/claude/injuryrisk/internal/config"
	"github.com/claude/injuryrisk/internal/importer"
	"github.com/claude/injuryrisk/internal/ingest"
	"github.com/claude/injuryrisk/internal/ingest/alpha"
	"github.com/claude/injuryrisk/internal/ingest/fit"
	"github.com/claude/injuryrisk/internal/ingest/hae"
	"github.com/claude/injuryrisk/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	exportPath := flag.String("path", "", "directory of .fit, .json and .csv exports (required)")
	login := flag.String("user", "", "login of the user to import for (created if missing)")
	userID := flag.Int("user-id", 0, "numeric user ID to import for (instead of -user)")
	stateDir := flag.String("state-dir", "", "directory for the imported-files ledger (default ~/.injuryrisk)")
	force := flag.Bool("force", false, "ignore the ledger and re-read every file")
	dryRun := flag.Bool("dry-run", false, "parse and count records without writing to the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exportPath == "" || (*login == "" && *userID <= 0) {
		fmt.Fprintf(os.Stderr, "Usage: injuryrisk-import -config config.yaml -path /path/to/exports (-user NAME | -user-id N) [-dry-run] [-force]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Verify export directory exists
	info, err := os.Stat(*exportPath)
	if err != nil || !info.IsDir() {
		log.Error("export path does not exist or is not a directory", "path", *exportPath)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var state *importer.StateDB
	if !*force {
		dir := *stateDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Error("failed to get home directory", "error", err)
				os.Exit(1)
			}
			dir = filepath.Join(home, ".injuryrisk")
		}
		state, err = importer.OpenStateDB(dir)
		if err != nil {
			log.Error("failed to open state db", "error", err)
			os.Exit(1)
		}
		defer state.Close()
	}

	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
		imp := importer.New(importer.Providers{}, state, log, true)
		stats, err := imp.Import(ctx, *exportPath, *userID)
		printStats(log, stats)
		if err != nil {
			log.Error("dry run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()

	// Run migrations
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	// Connect database
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	uid := *userID
	if *login != "" {
		uid, err = db.GetOrCreateUser(ctx, *login, *login)
		if err != nil {
			log.Error("failed to resolve user", "login", *login, "error", err)
			os.Exit(1)
		}
	}
	log.Info("importing", "user_id", uid, "path", *exportPath)

	// A running server may hold cached baselines for this user in Redis.
	var invalidator ingest.Invalidator = baseline.NewMemoryCache()
	if cfg.Redis.Enabled() {
		rc, err := cache.New(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, cached baselines will expire on their own", "error", err)
		} else {
			defer rc.Close()
			invalidator = rc
		}
	}

	svc := ingest.NewService(db, invalidator, cfg.Athlete.Athlete(), log)
	imp := importer.New(importer.Providers{
		HAE:   hae.NewProvider(svc, log),
		FIT:   fit.NewProvider(svc, log),
		Alpha: alpha.NewProvider(svc, log),
	}, state, log, false)

	stats, err := imp.Import(ctx, *exportPath, uid)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"workouts_imported", stats.WorkoutsImported,
		"workouts_skipped", stats.WorkoutsSkipped,
		"metrics_imported", stats.MetricsImported,
		"records_rejected", stats.RecordsRejected,
	)
}
