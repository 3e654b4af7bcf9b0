// Package postgres implements the entity store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikhailFrushkin/Lenanad-site/internal/config"
	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a core.Store backed by a pgx connection pool.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// Open creates a connection pool sized from cfg and verifies connectivity.
// It does not migrate.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: &queries{db: pool}, pool: pool}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn in one transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) (retErr error) {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() {
		if retErr != nil {
			_ = pgTx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(&tx{queries: &queries{db: pgTx}, pgTx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

// tx is a core.Tx over one pgx.Tx.
type tx struct {
	*queries
	pgTx pgx.Tx
}

// Savepoint runs fn inside a pgx pseudo nested transaction, which pgx
// implements with SAVEPOINT / ROLLBACK TO SAVEPOINT.
func (t *tx) Savepoint(ctx context.Context, fn func() error) error {
	nested, err := t.pgTx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: savepoint: %w", core.ErrStorageFatal, err)
	}

	if err := fn(); err != nil {
		if rbErr := nested.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w: rollback to savepoint: %v (after: %v)", core.ErrStorageFatal, rbErr, err)
		}
		return err
	}

	if err := nested.Commit(ctx); err != nil {
		return fmt.Errorf("%w: release savepoint: %w", core.ErrStorageFatal, err)
	}
	return nil
}
