package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// migrationLockID serializes concurrent migrators through an advisory lock.
const migrationLockID = 0x7069636b // "pick"

// Migration is one forward-only schema step.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// LatestVersion is the schema version Migrate brings a database to.
const LatestVersion = 2

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_assemblies_line_items_batches",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS assemblies (
				id BIGSERIAL PRIMARY KEY,
				order_number VARCHAR(50) NOT NULL,
				task_id VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL DEFAULT 'PARTIALLY_PICKED',
				assembly_zone VARCHAR(100),
				assembler VARCHAR(100),
				reported_at TIMESTAMPTZ NOT NULL,
				source_system VARCHAR(50) NOT NULL DEFAULT 'assembly_tracker',
				black_listed BOOLEAN NOT NULL DEFAULT FALSE,
				line_item_count INTEGER NOT NULL DEFAULT 0,
				total_missing_quantity INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS assemblies_natural_key_idx ON assemblies (order_number, task_id)`,
			`CREATE INDEX IF NOT EXISTS assemblies_order_reported_idx ON assemblies (order_number, reported_at)`,
			`CREATE INDEX IF NOT EXISTS assemblies_assembler_reported_idx ON assemblies (assembler, reported_at)`,
			`CREATE INDEX IF NOT EXISTS assemblies_reported_idx ON assemblies (reported_at)`,
			`CREATE INDEX IF NOT EXISTS assemblies_created_idx ON assemblies (created_at)`,
			`CREATE TABLE IF NOT EXISTS line_items (
				id BIGSERIAL PRIMARY KEY,
				assembly_id BIGINT NOT NULL REFERENCES assemblies (id) ON DELETE CASCADE,
				product_code VARCHAR(50) NOT NULL,
				department_id VARCHAR(20),
				title VARCHAR(500),
				image_url VARCHAR(500),
				required_quantity INTEGER NOT NULL DEFAULT 0,
				collected_quantity INTEGER NOT NULL DEFAULT 0,
				missing_quantity INTEGER NOT NULL DEFAULT 0,
				is_critical BOOLEAN NOT NULL DEFAULT FALSE,
				source VARCHAR(50),
				black_listed BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				CONSTRAINT line_items_quantities_non_negative
					CHECK (required_quantity >= 0 AND collected_quantity >= 0),
				CONSTRAINT line_items_collected_within_required
					CHECK (collected_quantity <= required_quantity)
			)`,
			`CREATE INDEX IF NOT EXISTS line_items_natural_key_idx
				ON line_items (assembly_id, product_code, required_quantity, collected_quantity)`,
			`CREATE INDEX IF NOT EXISTS line_items_product_missing_idx ON line_items (product_code, missing_quantity)`,
			`CREATE INDEX IF NOT EXISTS line_items_department_missing_idx ON line_items (department_id, missing_quantity)`,
			`CREATE TABLE IF NOT EXISTS ingest_batches (
				id UUID PRIMARY KEY,
				received_at TIMESTAMPTZ NOT NULL,
				reported_at TIMESTAMPTZ NOT NULL,
				declared_count INTEGER NOT NULL,
				assemblies_received INTEGER NOT NULL,
				assemblies_created INTEGER NOT NULL,
				assemblies_updated INTEGER NOT NULL,
				assemblies_skipped INTEGER NOT NULL,
				items_created INTEGER NOT NULL,
				items_updated INTEGER NOT NULL,
				items_skipped INTEGER NOT NULL,
				source_system VARCHAR(50) NOT NULL,
				remote_addr VARCHAR(64) NOT NULL DEFAULT '',
				duration_ms BIGINT NOT NULL
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

	for _, m := range migrations {
		if m.Version > version {
			break
		}
		applied, err := s.apply(ctx, m)
		if err != nil {
			return err
		}
		if applied {
			slog.Info("migration applied", "backend", "postgres", "version", m.Version, "name", m.Name)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if err := ensureVersionTable(ctx, s.pool); err != nil {
		return 0, err
	}
	var v int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, classify("read schema version", err)
	}
	return v, nil
}

func ensureVersionTable(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return classify("create schema_version", err)
}

// apply runs m in its own transaction under the migration lock. It reports
// false when another migrator already applied m.
func (s *Store) apply(ctx context.Context, m Migration) (applied bool, err error) {
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return classify("acquire migration lock", err)
		}
		if err := ensureVersionTable(ctx, tx); err != nil {
			return err
		}

		var done bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_version WHERE version = $1)`, m.Version).Scan(&done); err != nil {
			return classify("read schema version", err)
		}
		if done {
			return nil
		}

		for _, stmt := range m.Statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				err = classify(fmt.Sprintf("migration %d (%s)", m.Version, m.Name), err)
				if errors.Is(err, core.ErrConstraintViolation) {
					return fmt.Errorf("%w: %w", core.ErrDuplicatesBlockMigration, err)
				}
				return err
			}
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_version (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
			return classify(fmt.Sprintf("record migration %d", m.Version), err)
		}
		applied = true
		return nil
	})
	return applied, err
}
