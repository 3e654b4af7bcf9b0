package core

// scheduler.go runs periodic retention cleanup.
//
// The job runs once on start and then every CheckInterval until the context
// is cancelled. A failed run is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls the retention scheduler.
type RetentionConfig struct {
	Days          int           // Age in days after which assemblies are purged (default: 30)
	CheckInterval time.Duration // How often to run (default: 24h)
}

// StartRetentionScheduler blocks, purging old assemblies periodically, until
// ctx is cancelled.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	if cfg.Days <= 0 {
		cfg.Days = DefaultRetentionDays
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}

	slog.Info("retention scheduler started",
		"days", cfg.Days,
		"interval", cfg.CheckInterval,
	)

	s.runRetentionJob(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.runRetentionJob(ctx, cfg)
		}
	}
}

// runRetentionJob performs one purge.
func (s *Service) runRetentionJob(ctx context.Context, cfg RetentionConfig) {
	start := time.Now()
	deleted, _, err := s.PurgeOlderThan(ctx, cfg.Days)
	if err != nil {
		slog.Error("retention purge failed", "error", err)
		return
	}
	slog.Info("retention job completed",
		"assemblies_deleted", deleted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
