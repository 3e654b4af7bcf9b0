package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
	"github.com/MikhailFrushkin/Lenanad-site/internal/store/sqlite"
)

func TestRetentionScheduler_PurgesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)

	svc, clock := newService(t, newStore(t, sqlite.LatestVersion))
	ingest(t, svc, batch(t0, assembly("OLD", "T-1", "")))
	clock.Advance(10 * 24 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.StartRetentionScheduler(ctx, core.RetentionConfig{Days: 7, CheckInterval: 10 * time.Millisecond})
	}()

	require.Eventually(t, func() bool {
		list, err := svc.ListAssemblies(context.Background(), core.AssemblyFilter{})
		return err == nil && len(list) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
