package core

import (
	"context"
	"fmt"
	"time"

	"github.com/MikhailFrushkin/Lenanad-site/internal/logging"
)

const (
	// DefaultListLimit caps ListAssemblies when the filter sets no limit.
	DefaultListLimit = 100

	// MaxListLimit is the largest accepted list limit.
	MaxListLimit = 1000

	// DefaultRetentionDays is the age after which PurgeOlderThan removes data.
	DefaultRetentionDays = 30
)

// ListAssemblies returns assemblies matching f with their line items, newest
// report first. When f.DepartmentID is set only that department's line items
// are included.
func (s *Service) ListAssemblies(ctx context.Context, f AssemblyFilter) ([]AssemblyDetail, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}

	assemblies, err := s.store.ListAssemblies(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list assemblies: %w", err)
	}
	if len(assemblies) == 0 {
		return []AssemblyDetail{}, nil
	}

	ids := make([]int64, len(assemblies))
	for i, a := range assemblies {
		ids[i] = a.ID
	}
	items, err := s.store.ListLineItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	byAssembly := make(map[int64][]LineItem, len(assemblies))
	for _, li := range items {
		if f.DepartmentID != "" && li.DepartmentID.String != f.DepartmentID {
			continue
		}
		byAssembly[li.AssemblyID] = append(byAssembly[li.AssemblyID], li)
	}

	details := make([]AssemblyDetail, len(assemblies))
	for i, a := range assemblies {
		products := byAssembly[a.ID]
		if products == nil {
			products = []LineItem{}
		}
		details[i] = AssemblyDetail{Assembly: a, Products: products}
	}
	return details, nil
}

// DayRange returns the half-open UTC range covering the calendar day of t in
// the service location.
func (s *Service) DayRange(t time.Time) (from, to time.Time) {
	local := t.In(s.location)
	from = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	return from.UTC(), from.AddDate(0, 0, 1).UTC()
}

// TodaySummary aggregates assemblies reported today.
func (s *Service) TodaySummary(ctx context.Context) (*DaySummary, error) {
	now := s.now()
	from, to := s.DayRange(now)

	summary, err := s.store.Summarize(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("summarize today: %w", err)
	}
	summary.Date = now.In(s.location).Format(time.DateOnly)
	if summary.Assemblers == nil {
		summary.Assemblers = []string{}
	}
	return &summary, nil
}

// GetAssembly returns one assembly with all of its line items.
func (s *Service) GetAssembly(ctx context.Context, id int64) (*AssemblyDetail, error) {
	a, err := s.store.GetAssembly(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("assembly %d: %w", id, err)
	}
	items, err := s.store.ListLineItems(ctx, []int64{id})
	if err != nil {
		return nil, fmt.Errorf("products of assembly %d: %w", id, err)
	}
	if items == nil {
		items = []LineItem{}
	}
	return &AssemblyDetail{Assembly: a, Products: items}, nil
}

// SetBlackListed sets the operator black-list flag of an assembly.
func (s *Service) SetBlackListed(ctx context.Context, id int64, blackListed bool) error {
	if err := s.store.SetAssemblyBlackListed(ctx, id, blackListed, s.now()); err != nil {
		return fmt.Errorf("assembly %d: %w", id, err)
	}
	logging.FromContext(ctx).Info("assembly black list changed", "assembly_id", id, "black_listed", blackListed)
	return nil
}

// DeleteLineItem removes one line item and recomputes its assembly's metrics
// in the same transaction.
func (s *Service) DeleteLineItem(ctx context.Context, id int64) (AssemblyMetrics, error) {
	var metrics AssemblyMetrics
	err := s.store.InTx(ctx, func(tx Tx) error {
		li, err := tx.GetLineItem(ctx, id)
		if err != nil {
			return fmt.Errorf("product %d: %w", id, err)
		}
		if err := tx.DeleteLineItem(ctx, id); err != nil {
			return fmt.Errorf("delete product %d: %w", id, err)
		}
		metrics, err = RecomputeMetrics(ctx, tx, li.AssemblyID, s.now())
		return err
	})
	if err != nil {
		return AssemblyMetrics{}, err
	}
	logging.FromContext(ctx).Info("product deleted", "product_id", id)
	return metrics, nil
}

// PurgeOlderThan deletes assemblies created more than days ago, together with
// their line items. Non-positive days fall back to DefaultRetentionDays.
func (s *Service) PurgeOlderThan(ctx context.Context, days int) (int64, time.Time, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -days)

	n, err := s.store.DeleteAssembliesCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, cutoff, fmt.Errorf("purge assemblies before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	logging.FromContext(ctx).Info("old assemblies purged", "deleted", n, "cutoff", cutoff, "days", days)
	return n, cutoff, nil
}

// RecentBatches returns the most recent batch history entries.
func (s *Service) RecentBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}
	records, err := s.store.ListBatchRecords(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	if records == nil {
		records = []BatchRecord{}
	}
	return records, nil
}
