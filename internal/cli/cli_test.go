package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailFrushkin/Lenanad-site/internal/config"
	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
	"github.com/MikhailFrushkin/Lenanad-site/internal/store/sqlite"
)

func init() {
	color.NoColor = true
}

const batchJSON = `{
  "timestamp": "2026-03-10T09:30:00",
  "assemblies_count": 1,
  "assemblies": [
    {
      "order": "ORD-1",
      "taskId": "T-1",
      "assembler": "Ivanov",
      "products": [
        {"lmCode": "LM100", "quantity": 10, "collected_quantity": 2},
        {"lmCode": "LM200", "quantity": 1, "collected_quantity": 4}
      ]
    }
  ]
}`

func tempDB(t *testing.T) (path, url string) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "pick.db")
	return path, config.SQLitePrefix + path
}

// run executes pickctl with args against the database at url.
func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	cmd := RootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(append([]string{"--env-file", "", "--database", url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seed opens the database directly at schema version, runs fn and closes it.
func seed(t *testing.T, path string, version int, fn func(s *sqlite.Store)) {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.MigrateTo(ctx, version))
	fn(s)
}

func insertAssembly(t *testing.T, s *sqlite.Store, order, task string, at time.Time) core.Assembly {
	t.Helper()
	a := core.Assembly{
		OrderNumber:  order,
		TaskID:       task,
		Status:       core.DefaultStatus,
		ReportedAt:   at,
		SourceSystem: core.DefaultSourceSystem,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	require.NoError(t, s.InsertAssembly(context.Background(), &a))
	return a
}

func TestMigrateAndStatus(t *testing.T) {
	_, url := tempDB(t)

	out, err := run(t, url, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrated from version 0 to 2")

	out, err = run(t, url, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "already at version 2")

	out, err = run(t, url, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version: 2")
	assert.Contains(t, out, "no batches ingested yet")
}

func TestMigrate_ToVersion(t *testing.T) {
	_, url := tempDB(t)

	out, err := run(t, url, "migrate", "--to", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "from version 0 to 1")
}

func TestCommands_RequireSchema(t *testing.T) {
	_, url := tempDB(t)

	for _, args := range [][]string{
		{"audit", "duplicates"},
		{"purge", "--days", "5"},
	} {
		_, err := run(t, url, args...)
		require.Error(t, err, "%v", args)
		assert.Contains(t, err.Error(), "pickctl migrate")
	}
}

func TestIngest_File(t *testing.T) {
	_, url := tempDB(t)
	_, err := run(t, url, "migrate")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(file, []byte(batchJSON), 0o600))

	out, err := run(t, url, "ingest", file)
	require.NoError(t, err)
	assert.Contains(t, out, "committed")
	assert.Contains(t, out, "assemblies: 1 new, 0 updated, 0 skipped")
	assert.Contains(t, out, "products:   1 new, 0 updated, 1 skipped")
	assert.Contains(t, out, "ORD-1/T-1")

	out, err = run(t, url, "ingest", "-o", "json", file)
	require.NoError(t, err)
	var result core.IngestResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Assemblies.Updated)
	assert.Equal(t, 1, result.Products.Updated)

	out, err = run(t, url, "status")
	require.NoError(t, err)
	assert.Contains(t, out, result.BatchID)
}

func TestIngest_InvalidEnvelope(t *testing.T) {
	_, url := tempDB(t)

	file := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"assemblies_count": 1}`), 0o600))

	_, err := run(t, url, "ingest", file)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidEnvelope)
}

func TestAudit_RepairUnblocksMigration(t *testing.T) {
	path, url := tempDB(t)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seed(t, path, 1, func(s *sqlite.Store) {
		insertAssembly(t, s, "ORD-1", "T-1", at)
		insertAssembly(t, s, "ORD-1", "T-1", at)
		insertAssembly(t, s, "ORD-2", "T-2", at)
	})

	out, err := run(t, url, "migrate")
	require.ErrorIs(t, err, core.ErrDuplicatesBlockMigration)
	assert.Contains(t, out, "duplicates block the unique constraints")

	out, err = run(t, url, "audit", "duplicates", "-o", "json")
	require.NoError(t, err)
	var report core.DuplicateReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Assemblies, 1)
	assert.Equal(t, "ORD-1", report.Assemblies[0].OrderNumber)
	assert.Equal(t, []int64{1, 2}, report.Assemblies[0].IDs)
	assert.Equal(t, int64(2), report.Assemblies[0].KeepID, "ties go to the highest id")

	out, err = run(t, url, "audit", "duplicates", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "order_number: ORD-1")
	assert.Contains(t, out, "keep_id: 2")

	out, err = run(t, url, "audit", "repair")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")

	out, err = run(t, url, "audit", "repair", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "assemblies deleted: 1 (1 groups)")

	out, err = run(t, url, "audit", "duplicates")
	require.NoError(t, err)
	assert.Contains(t, out, "no duplicates found")

	_, err = run(t, url, "migrate")
	require.NoError(t, err)
}

func TestAudit_UnknownFormat(t *testing.T) {
	_, url := tempDB(t)
	_, err := run(t, url, "audit", "duplicates", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestPurge(t *testing.T) {
	path, url := tempDB(t)
	now := time.Now().UTC()
	seed(t, path, sqlite.LatestVersion, func(s *sqlite.Store) {
		insertAssembly(t, s, "OLD", "T-1", now.AddDate(0, 0, -60))
		insertAssembly(t, s, "NEW", "T-2", now.Add(-time.Hour))
	})

	out, err := run(t, url, "purge", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 assemblies")

	_, err = run(t, url, "purge", "--days", "0")
	require.Error(t, err)
}
