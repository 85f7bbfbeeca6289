package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailscale.com/tsnet"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/cache"
	"github.com/claude/injuryrisk/internal/config"
	"github.com/claude/injuryrisk/internal/ingest"
	"github.com/claude/injuryrisk/internal/mcp"
	"github.com/claude/injuryrisk/internal/predict"
	"github.com/claude/injuryrisk/internal/server"
	"github.com/claude/injuryrisk/internal/service"
	"github.com/claude/injuryrisk/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	log.Info("InjuryRisk starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	th, err := cfg.Scoring.Thresholds()
	if err != nil {
		log.Error("failed to load scoring thresholds", "error", err)
		os.Exit(1)
	}
	log.Info("scoring thresholds loaded", "profile", th.Profile)

	// Run migrations
	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Connect database
	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	// Baseline cache: shared Redis when configured, otherwise in-process
	var snapCache baseline.Cache = baseline.NewMemoryCache()
	if cfg.Redis.Enabled() {
		rc, err := cache.New(ctx, cfg.Redis, log)
		if err != nil {
			log.Error("failed to connect redis", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		snapCache = rc
		log.Info("redis baseline cache connected", "addr", cfg.Redis.Addr)
	}

	engine := baseline.NewEngine(th.Baseline, snapCache, log)
	evaluator := predict.New(th, engine, log)
	ingestSvc := ingest.NewService(db, engine, cfg.Athlete.Athlete(), log)
	svc := service.New(db, evaluator, log)

	// Create server
	srv := server.New(svc, ingestSvc, cfg.Auth.APIKey, log)
	srv.MountMCP(mcp.NewHTTPHandler(mcp.New(svc, Version, log)))

	// Start server over tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "plain HTTP (no tailscale)")
	}

	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
