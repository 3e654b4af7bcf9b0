package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// LatestVersion is the schema version Migrate brings a database to.
const LatestVersion = 2

// migrations is the ordered list of schema steps. Version 1 creates the
// tables with plain lookup indexes; version 2 enforces natural-key
// uniqueness and fails while duplicates exist.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_assemblies_line_items_batches",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS assemblies (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				order_number TEXT NOT NULL,
				task_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'PARTIALLY_PICKED',
				assembly_zone TEXT,
				assembler TEXT,
				reported_at TEXT NOT NULL,
				source_system TEXT NOT NULL DEFAULT 'assembly_tracker',
				black_listed INTEGER NOT NULL DEFAULT 0,
				line_item_count INTEGER NOT NULL DEFAULT 0,
				total_missing_quantity INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS assemblies_natural_key_idx ON assemblies (order_number, task_id)`,
			`CREATE INDEX IF NOT EXISTS assemblies_order_reported_idx ON assemblies (order_number, reported_at)`,
			`CREATE INDEX IF NOT EXISTS assemblies_assembler_reported_idx ON assemblies (assembler, reported_at)`,
			`CREATE INDEX IF NOT EXISTS assemblies_reported_idx ON assemblies (reported_at)`,
			`CREATE INDEX IF NOT EXISTS assemblies_created_idx ON assemblies (created_at)`,
			`CREATE TABLE IF NOT EXISTS line_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				assembly_id INTEGER NOT NULL REFERENCES assemblies (id) ON DELETE CASCADE,
				product_code TEXT NOT NULL,
				department_id TEXT,
				title TEXT,
				image_url TEXT,
				required_quantity INTEGER NOT NULL DEFAULT 0,
				collected_quantity INTEGER NOT NULL DEFAULT 0,
				missing_quantity INTEGER NOT NULL DEFAULT 0,
				is_critical INTEGER NOT NULL DEFAULT 0,
				source TEXT,
				black_listed INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				CHECK (required_quantity >= 0 AND collected_quantity >= 0),
				CHECK (collected_quantity <= required_quantity)
			)`,
			`CREATE INDEX IF NOT EXISTS line_items_natural_key_idx
				ON line_items (assembly_id, product_code, required_quantity, collected_quantity)`,
			`CREATE INDEX IF NOT EXISTS line_items_product_missing_idx ON line_items (product_code, missing_quantity)`,
			`CREATE INDEX IF NOT EXISTS line_items_department_missing_idx ON line_items (department_id, missing_quantity)`,
			`CREATE TABLE IF NOT EXISTS ingest_batches (
				id TEXT PRIMARY KEY,
				received_at TEXT NOT NULL,
				reported_at TEXT NOT NULL,
				declared_count INTEGER NOT NULL,
				assemblies_received INTEGER NOT NULL,
				assemblies_created INTEGER NOT NULL,
				assemblies_updated INTEGER NOT NULL,
				assemblies_skipped INTEGER NOT NULL,
				items_created INTEGER NOT NULL,
				items_updated INTEGER NOT NULL,
				items_skipped INTEGER NOT NULL,
				source_system TEXT NOT NULL,
				remote_addr TEXT NOT NULL DEFAULT '',
				duration_ms INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS ingest_batches_received_idx ON ingest_batches (received_at)`,
		},
	},
	{
		Version: 2,
		Name:    "unique_natural_keys",
		Statements: []string{
			`CREATE UNIQUE INDEX assemblies_order_task_key ON assemblies (order_number, task_id)`,
			`CREATE UNIQUE INDEX line_items_natural_key
				ON line_items (assembly_id, product_code, required_quantity, collected_quantity)`,
			`DROP INDEX IF EXISTS assemblies_natural_key_idx`,
			`DROP INDEX IF EXISTS line_items_natural_key_idx`,
		},
	},
}

// Migrate brings the schema to LatestVersion.
func (s *Store) Migrate(ctx context.Context) error {
	return s.MigrateTo(ctx, LatestVersion)
}

// MigrateTo applies pending migrations up to and including version. A
// non-positive version means LatestVersion.
func (s *Store) MigrateTo(ctx context.Context, version int) error {
	if version <= 0 || version > LatestVersion {
		version = LatestVersion
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current || m.Version > version {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		slog.Info("migration applied", "backend", "sqlite", "version", m.Version, "name", m.Name)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return 0, classify("create schema_version", err)
	}

	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, classify("read schema version", err)
	}
	return v, nil
}

func (s *Store) apply(ctx context.Context, m Migration) (retErr error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Sprintf("begin migration %d", m.Version), err)
	}
	defer func() {
		if retErr != nil {
			_ = sqlTx.Rollback()
		}
	}()

	for _, stmt := range m.Statements {
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			err = classify(fmt.Sprintf("migration %d (%s)", m.Version, m.Name), err)
			if errors.Is(err, core.ErrConstraintViolation) {
				return fmt.Errorf("%w: %w", core.ErrDuplicatesBlockMigration, err)
			}
			return err
		}
	}

	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
		return classify(fmt.Sprintf("record migration %d", m.Version), err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Sprintf("commit migration %d", m.Version), err)
	}
	return nil
}
