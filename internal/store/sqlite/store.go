// Package sqlite implements the entity store on an embedded SQLite database
// through the pure Go modernc.org/sqlite driver.
//
// It is used for single-node deployments and by the test suites. A Store
// holds exactly one connection, so all writers are serialized and an
// in-memory database lives as long as the Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const defaultPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Store is a core.Store backed by SQLite.
type Store struct {
	*queries
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. It does not migrate;
// call Migrate or MigrateTo.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	if path != MemoryPath && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("sqlite: create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", withPragmas(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &Store{queries: &queries{db: db}, db: db}, nil
}

func withPragmas(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + defaultPragmas
	}
	return path + "?" + defaultPragmas
}

// Close releases the database. An in-memory database is discarded.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn in one transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) (retErr error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() {
		if retErr != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&tx{queries: &queries{db: sqlTx}, sqlTx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// tx is a core.Tx over one *sql.Tx.
type tx struct {
	*queries
	sqlTx *sql.Tx
	seq   int
}

// Savepoint runs fn inside a uniquely named savepoint.
func (t *tx) Savepoint(ctx context.Context, fn func() error) error {
	t.seq++
	name := fmt.Sprintf("sp_%d", t.seq)

	if _, err := t.sqlTx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: savepoint %s: %w", core.ErrStorageFatal, name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := t.sqlTx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w: rollback to savepoint %s: %v (after: %v)", core.ErrStorageFatal, name, rbErr, err)
		}
		if _, relErr := t.sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("%w: release savepoint %s: %v (after: %v)", core.ErrStorageFatal, name, relErr, err)
		}
		return err
	}

	if _, err := t.sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: release savepoint %s: %w", core.ErrStorageFatal, name, err)
	}
	return nil
}
