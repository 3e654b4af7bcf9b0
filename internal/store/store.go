// Package store opens the storage backend selected by configuration.
package store

import (
	"context"

	"github.com/MikhailFrushkin/Lenanad-site/internal/config"
	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
	"github.com/MikhailFrushkin/Lenanad-site/internal/store/postgres"
	"github.com/MikhailFrushkin/Lenanad-site/internal/store/sqlite"
)

// Backend is a core.Store with schema management and lifecycle.
type Backend interface {
	core.Store

	Migrate(ctx context.Context) error
	MigrateTo(ctx context.Context, version int) error
	SchemaVersion(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Open connects to the database named by cfg.URL: "sqlite:<path>" selects
// the embedded store, anything else is treated as a PostgreSQL URL.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	if cfg.IsSQLite() {
		return sqlite.Open(ctx, cfg.SQLitePath())
	}
	return postgres.Open(ctx, cfg)
}
