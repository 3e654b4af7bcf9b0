package core

import (
	"context"
	"fmt"
	"time"
)

// RecomputeMetrics rebuilds an assembly's line_item_count and
// total_missing_quantity from its current line items and stores them.
//
// It must run after every line-item create, update or delete, inside the same
// transaction as the mutation. Only the derived fields and updated_at are
// written.
func RecomputeMetrics(ctx context.Context, q Querier, assemblyID int64, now time.Time) (AssemblyMetrics, error) {
	m, err := q.AssemblyTotals(ctx, assemblyID)
	if err != nil {
		return AssemblyMetrics{}, fmt.Errorf("recompute metrics for assembly %d: %w", assemblyID, err)
	}
	if err := q.UpdateAssemblyMetrics(ctx, assemblyID, m, now); err != nil {
		return AssemblyMetrics{}, fmt.Errorf("store metrics for assembly %d: %w", assemblyID, err)
	}
	return m, nil
}
