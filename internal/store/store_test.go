package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailFrushkin/Lenanad-site/internal/config"
	"github.com/MikhailFrushkin/Lenanad-site/internal/store/sqlite"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, config.DatabaseConfig{URL: "sqlite::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	_, ok := b.(*sqlite.Store)
	assert.True(t, ok, "expected *sqlite.Store, got %T", b)

	require.NoError(t, b.Migrate(ctx))
	v, err := b.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, sqlite.LatestVersion, v)
	assert.NoError(t, b.Ping(ctx))
}

func TestOpen_PostgresBadURL(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{URL: "postgres://%zz", MaxConns: 1})
	assert.Error(t, err)
}
