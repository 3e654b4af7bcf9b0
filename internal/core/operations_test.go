package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
	"github.com/MikhailFrushkin/Lenanad-site/internal/store/sqlite"
)

func withDepartment(p core.LineItemPayload, dept string) core.LineItemPayload {
	p.DepartmentID = core.Text(dept)
	return p
}

func TestListAssemblies_Filters(t *testing.T) {
	svc, _ := newService(t, newStore(t, sqlite.LatestVersion))
	day1 := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	ingest(t, svc, batch(day1, assembly("ORD-1", "T-1", "Ivanov",
		withDepartment(product("LM1", 3, 1), "7"),
		withDepartment(product("LM2", 3, 1), "3"),
	)))
	ingest(t, svc, batch(day2, assembly("ORD-2", "T-2", "Petrov",
		withDepartment(product("LM3", 3, 1), "7"),
	)))

	tests := []struct {
		name   string
		filter core.AssemblyFilter
		want   []string
	}{
		{"no filter newest first", core.AssemblyFilter{}, []string{"ORD-2", "ORD-1"}},
		{"assembler substring ignores case", core.AssemblyFilter{Assembler: "iva"}, []string{"ORD-1"}},
		{"order exact", core.AssemblyFilter{OrderNumber: "ORD-2"}, []string{"ORD-2"}},
		{"department", core.AssemblyFilter{DepartmentID: "3"}, []string{"ORD-1"}},
		{"from", core.AssemblyFilter{From: day2.Truncate(24 * time.Hour)}, []string{"ORD-2"}},
		{"to exclusive", core.AssemblyFilter{To: day2.Truncate(24 * time.Hour)}, []string{"ORD-1"}},
		{"limit", core.AssemblyFilter{Limit: 1}, []string{"ORD-2"}},
		{"no match", core.AssemblyFilter{Assembler: "sidorov"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ListAssemblies(context.Background(), tt.filter)
			require.NoError(t, err)
			orders := []string{}
			for _, a := range got {
				orders = append(orders, a.OrderNumber)
			}
			assert.Equal(t, tt.want, orders)
		})
	}

	got, err := svc.ListAssemblies(context.Background(), core.AssemblyFilter{DepartmentID: "3"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Products, 1, "only the filtered department's products")
	assert.Equal(t, "LM2", got[0].Products[0].ProductCode)
	assert.Equal(t, 2, got[0].LineItemCount, "metrics still cover every product")
}

func TestListAssemblies_AssemblerFilterFoldsCyrillic(t *testing.T) {
	svc, _ := newService(t, newStore(t, sqlite.LatestVersion))
	ingest(t, svc, batch(t0,
		assembly("ORD-1", "T-1", "Иванов Иван"),
		assembly("ORD-2", "T-2", "Петров Пётр"),
	))

	for _, q := range []string{"Иванов", "иванов", "ИВАНОВ", "ов ив"} {
		t.Run(q, func(t *testing.T) {
			got, err := svc.ListAssemblies(context.Background(), core.AssemblyFilter{Assembler: q})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "ORD-1", got[0].OrderNumber)
		})
	}

	got, err := svc.ListAssemblies(context.Background(), core.AssemblyFilter{Assembler: "ПЁТР"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-2", got[0].OrderNumber)
}

func TestTodaySummary_UsesServiceLocation(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	svc, clock := newService(t, newStore(t, sqlite.LatestVersion), core.WithLocation(msk))
	clock.now = time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC)

	ingest(t, svc, batch(time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC),
		assembly("ORD-1", "T-1", "Petrov", product("LM1", 10, 2)),
		assembly("ORD-2", "T-2", "Ivanov", product("LM2", 4, 3), product("LM3", 1, 1)),
	))
	ingest(t, svc, batch(time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC),
		assembly("ORD-3", "T-3", "Sidorov", product("LM4", 9, 0)),
	))

	summary, err := svc.TodaySummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-11", summary.Date)
	assert.Equal(t, 2, summary.Assemblies)
	assert.Equal(t, 3, summary.LineItems)
	assert.Equal(t, 9, summary.TotalMissing)
	assert.Equal(t, []string{"Ivanov", "Petrov"}, summary.Assemblers)

	from, to := svc.DayRange(clock.now)
	assert.Equal(t, time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}

func TestTodaySummary_Empty(t *testing.T) {
	svc, _ := newService(t, newStore(t, sqlite.LatestVersion))

	summary, err := svc.TodaySummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", summary.Date)
	assert.Zero(t, summary.Assemblies)
	assert.NotNil(t, summary.Assemblers)
}

func TestGetAssembly_AndBlackList(t *testing.T) {
	svc, clock := newService(t, newStore(t, sqlite.LatestVersion))
	ingest(t, svc, batch(t0, assembly("ORD-1", "T-1", "", product("LM1", 2, 0))))
	a := findAssembly(t, svc, "ORD-1")

	detail, err := svc.GetAssembly(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", detail.OrderNumber)
	assert.Len(t, detail.Products, 1)
	assert.False(t, detail.BlackListed)

	clock.Advance(time.Minute)
	require.NoError(t, svc.SetBlackListed(context.Background(), a.ID, true))
	detail, err = svc.GetAssembly(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, detail.BlackListed)
	assert.Equal(t, t0.Add(time.Minute), detail.UpdatedAt)

	_, err = svc.GetAssembly(context.Background(), a.ID+100)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, svc.SetBlackListed(context.Background(), a.ID+100, true), core.ErrNotFound)
}

func TestDeleteLineItem_RecomputesMetrics(t *testing.T) {
	svc, _ := newService(t, newStore(t, sqlite.LatestVersion))
	ingest(t, svc, batch(t0, assembly("ORD-1", "T-1", "",
		product("LM1", 10, 2),
		product("LM2", 5, 1),
	)))
	a := findAssembly(t, svc, "ORD-1")
	require.Equal(t, 12, a.TotalMissingQuantity)

	var target int64
	for _, li := range a.Products {
		if li.ProductCode == "LM1" {
			target = li.ID
		}
	}

	metrics, err := svc.DeleteLineItem(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, core.AssemblyMetrics{LineItemCount: 1, TotalMissingQuantity: 4}, metrics)

	a = findAssembly(t, svc, "ORD-1")
	assert.Len(t, a.Products, 1)
	assert.Equal(t, 1, a.LineItemCount)
	assert.Equal(t, 4, a.TotalMissingQuantity)

	_, err = svc.DeleteLineItem(context.Background(), target)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPurgeOlderThan(t *testing.T) {
	svc, clock := newService(t, newStore(t, sqlite.LatestVersion))
	ingest(t, svc, batch(t0, assembly("OLD", "T-1", "", product("LM1", 1, 0))))
	clock.Advance(20 * 24 * time.Hour)
	ingest(t, svc, batch(clock.now, assembly("NEW", "T-2", "")))
	clock.Advance(11 * 24 * time.Hour)

	n, cutoff, err := svc.PurgeOlderThan(context.Background(), 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, clock.now.AddDate(0, 0, -30), cutoff)

	list, err := svc.ListAssemblies(context.Background(), core.AssemblyFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "NEW", list[0].OrderNumber)

	n, _, err = svc.PurgeOlderThan(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n, "non-positive days fall back to the default")
}

func TestRecentBatches_Limit(t *testing.T) {
	svc, clock := newService(t, newStore(t, sqlite.LatestVersion))
	for range 3 {
		ingest(t, svc, batch(t0, assembly("ORD-1", "T-1", "")))
		clock.Advance(time.Second)
	}

	got, err := svc.RecentBatches(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].ReceivedAt.After(got[1].ReceivedAt))
	assert.Equal(t, 1, got[0].AssembliesUpdated)
}
