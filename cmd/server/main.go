package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikhailFrushkin/Lenanad-site/internal/config"
	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
	"github.com/MikhailFrushkin/Lenanad-site/internal/logging"
	"github.com/MikhailFrushkin/Lenanad-site/internal/store"
	"github.com/MikhailFrushkin/Lenanad-site/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	loc, err := cfg.Ingest.LoadLocation()
	if err != nil {
		slog.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			if errors.Is(err, core.ErrDuplicatesBlockMigration) {
				slog.Error("schema upgrade blocked by duplicate rows", "error", err,
					"hint", "run 'pickctl audit duplicates' and 'pickctl audit repair --yes'")
			} else {
				slog.Error("failed to migrate database", "error", err)
			}
			os.Exit(1)
		}
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		slog.Error("failed to read schema version", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to database", "sqlite", cfg.Database.IsSQLite(), "schema_version", version)

	recorder := core.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	service := core.NewService(db,
		core.WithIngestLimits(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime),
		core.WithIngestTimeout(cfg.Ingest.Timeout),
		core.WithMetrics(recorder),
		core.WithLocation(loc),
	)

	server := web.NewServer(service, cfg, web.WithPinger(db))

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Retention.Enabled {
		go service.StartRetentionScheduler(jobCtx, core.RetentionConfig{
			Days:          cfg.Retention.Days,
			CheckInterval: cfg.Retention.CheckInterval,
		})
	}

	// Graceful shutdown
	drained := make(chan struct{})
	go func() {
		defer close(drained)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting batches first, then wait for in-flight ones.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for batches to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("batches did not complete in time", "error", err)
			} else {
				slog.Info("all batches completed")
			}
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(jobCtx); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-drained
	slog.Info("server stopped")
}
