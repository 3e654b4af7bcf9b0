package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailFrushkin/Lenanad-site/internal/config"
	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// openTestStore connects to PICKING_TEST_DATABASE_URL, skipping when unset.
// Tables are dropped before and after the test.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("PICKING_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PICKING_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, config.DatabaseConfig{URL: url, MaxConns: 4})
	require.NoError(t, err)

	reset := func() {
		_, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS line_items, assemblies, ingest_batches, schema_version`)
		require.NoError(t, err)
	}
	reset()
	t.Cleanup(func() {
		reset()
		_ = s.Close()
	})
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, v)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := &core.Assembly{
		OrderNumber: "ORD-1", TaskID: "T-1", Status: core.DefaultStatus,
		Assembler: pgtype.Text{String: "ivanov", Valid: true},
		ReportedAt: now, SourceSystem: core.DefaultSourceSystem, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.InsertAssembly(ctx, a))

	dup := *a
	err = s.InsertAssembly(ctx, &dup)
	assert.ErrorIs(t, err, core.ErrConstraintViolation)

	li := &core.LineItem{
		AssemblyID: a.ID, ProductCode: "LM1", RequiredQuantity: 10, CollectedQuantity: 2,
		MissingQuantity: 8, IsCritical: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.InsertLineItem(ctx, li))

	bad := &core.LineItem{AssemblyID: a.ID, ProductCode: "LM2", RequiredQuantity: 1, CollectedQuantity: 2, CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, s.InsertLineItem(ctx, bad), core.ErrValidation)

	m, err := s.AssemblyTotals(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, core.AssemblyMetrics{LineItemCount: 1, TotalMissingQuantity: 8}, m)

	got, err := s.FindAssembly(ctx, a.Key())
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.True(t, got.ReportedAt.Equal(now))

	list, err := s.ListAssemblies(ctx, core.AssemblyFilter{Assembler: "IVAN", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_SavepointRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	now := time.Now().UTC()

	err := s.InTx(ctx, func(tx core.Tx) error {
		a := &core.Assembly{OrderNumber: "O", TaskID: "T", Status: core.DefaultStatus,
			ReportedAt: now, SourceSystem: core.DefaultSourceSystem, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, tx.InsertAssembly(ctx, a))

		dup := *a
		err := tx.Savepoint(ctx, func() error { return tx.InsertAssembly(ctx, &dup) })
		assert.ErrorIs(t, err, core.ErrConstraintViolation)

		// The transaction is still usable after the savepoint rollback.
		_, err = tx.FindAssembly(ctx, a.Key())
		return err
	})
	require.NoError(t, err)
}
