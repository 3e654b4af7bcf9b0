package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikhailFrushkin/Lenanad-site/internal/logging"
)

// AssemblyDuplicateGroup is a set of assemblies sharing one natural key.
type AssemblyDuplicateGroup struct {
	AssemblyKey `yaml:",inline"`
	Count       int     `json:"count" yaml:"count"`
	IDs         []int64 `json:"ids" yaml:"ids"`
	KeepID      int64   `json:"keep_id" yaml:"keep_id"`
}

// LineItemDuplicateGroup is a set of line items sharing one natural key.
type LineItemDuplicateGroup struct {
	LineItemKey `yaml:",inline"`
	Count       int     `json:"count" yaml:"count"`
	IDs         []int64 `json:"ids" yaml:"ids"`
	KeepID      int64   `json:"keep_id" yaml:"keep_id"`
}

// DuplicateReport lists every natural-key duplicate group in the store.
type DuplicateReport struct {
	CheckedAt  time.Time                `json:"checked_at" yaml:"checked_at"`
	Assemblies []AssemblyDuplicateGroup `json:"assemblies" yaml:"assemblies"`
	LineItems  []LineItemDuplicateGroup `json:"products" yaml:"products"`
}

// Empty reports whether no duplicates were found.
func (r *DuplicateReport) Empty() bool {
	return len(r.Assemblies) == 0 && len(r.LineItems) == 0
}

// RepairResult summarizes a committed duplicate repair.
type RepairResult struct {
	AssemblyGroups       int    `json:"assembly_groups" yaml:"assembly_groups"`
	LineItemGroups       int    `json:"product_groups" yaml:"product_groups"`
	AssembliesDeleted    int64  `json:"assemblies_deleted" yaml:"assemblies_deleted"`
	LineItemsDeleted     int64  `json:"products_deleted" yaml:"products_deleted"`
	AssembliesRecomputed int    `json:"assemblies_recomputed" yaml:"assemblies_recomputed"`
	Message              string `json:"message" yaml:"message"`
}

// duplicateGroup is the rows of one natural key.
type duplicateGroup[K comparable] struct {
	key     K
	members []DuplicateRow[K]
}

// groupDuplicates groups rows by key in order of first appearance. Keys with
// a single row are dropped.
func groupDuplicates[K comparable](rows []DuplicateRow[K]) []duplicateGroup[K] {
	index := make(map[K]int)
	var groups []duplicateGroup[K]
	for _, row := range rows {
		i, ok := index[row.Key]
		if !ok {
			i = len(groups)
			index[row.Key] = i
			groups = append(groups, duplicateGroup[K]{key: row.Key})
		}
		groups[i].members = append(groups[i].members, row)
	}
	return slices.DeleteFunc(groups, func(g duplicateGroup[K]) bool {
		return len(g.members) < 2
	})
}

// keeper returns the member that survives repair: the most recently updated
// one, ties going to the highest id.
func (g duplicateGroup[K]) keeper() DuplicateRow[K] {
	return slices.MaxFunc(g.members, func(a, b DuplicateRow[K]) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (g duplicateGroup[K]) ids() []int64 {
	ids := make([]int64, 0, len(g.members))
	for _, m := range g.members {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids
}

// losers returns the ids repair deletes.
func (g duplicateGroup[K]) losers() []int64 {
	keep := g.keeper().ID
	return slices.DeleteFunc(g.ids(), func(id int64) bool { return id == keep })
}

// FindDuplicates reports every natural-key duplicate group of both kinds.
// It never modifies data.
func (s *Service) FindDuplicates(ctx context.Context) (*DuplicateReport, error) {
	var (
		assemblyRows []DuplicateRow[AssemblyKey]
		itemRows     []DuplicateRow[LineItemKey]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.store.AssemblyDuplicates(gctx)
		if err != nil {
			return fmt.Errorf("find assembly duplicates: %w", err)
		}
		assemblyRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.LineItemDuplicates(gctx)
		if err != nil {
			return fmt.Errorf("find product duplicates: %w", err)
		}
		itemRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &DuplicateReport{
		CheckedAt:  s.now(),
		Assemblies: []AssemblyDuplicateGroup{},
		LineItems:  []LineItemDuplicateGroup{},
	}
	for _, grp := range groupDuplicates(assemblyRows) {
		report.Assemblies = append(report.Assemblies, AssemblyDuplicateGroup{
			AssemblyKey: grp.key,
			Count:       len(grp.members),
			IDs:         grp.ids(),
			KeepID:      grp.keeper().ID,
		})
	}
	for _, grp := range groupDuplicates(itemRows) {
		report.LineItems = append(report.LineItems, LineItemDuplicateGroup{
			LineItemKey: grp.key,
			Count:       len(grp.members),
			IDs:         grp.ids(),
			KeepID:      grp.keeper().ID,
		})
	}
	return report, nil
}

// RepairDuplicates removes all but one member of every duplicate group in a
// single transaction. Assemblies are repaired first so that line items
// removed by cascade are not examined twice; afterwards every assembly that
// lost line items has its metrics recomputed.
func (s *Service) RepairDuplicates(ctx context.Context) (*RepairResult, error) {
	log := logging.FromContext(ctx)
	result := &RepairResult{}

	err := s.store.InTx(ctx, func(tx Tx) error {
		*result = RepairResult{}
		now := s.now()

		assemblyRows, err := tx.AssemblyDuplicates(ctx)
		if err != nil {
			return fmt.Errorf("find assembly duplicates: %w", err)
		}
		assemblyGroups := groupDuplicates(assemblyRows)
		var doomed []int64
		for _, grp := range assemblyGroups {
			doomed = append(doomed, grp.losers()...)
		}
		result.AssemblyGroups = len(assemblyGroups)
		if len(doomed) > 0 {
			n, err := tx.DeleteAssemblies(ctx, doomed)
			if err != nil {
				return fmt.Errorf("delete duplicate assemblies: %w", err)
			}
			result.AssembliesDeleted = n
		}

		itemRows, err := tx.LineItemDuplicates(ctx)
		if err != nil {
			return fmt.Errorf("find product duplicates: %w", err)
		}
		itemGroups := groupDuplicates(itemRows)
		doomed = doomed[:0]
		var affected []int64
		for _, grp := range itemGroups {
			doomed = append(doomed, grp.losers()...)
			affected = append(affected, grp.key.AssemblyID)
		}
		result.LineItemGroups = len(itemGroups)
		if len(doomed) > 0 {
			n, err := tx.DeleteLineItems(ctx, doomed)
			if err != nil {
				return fmt.Errorf("delete duplicate products: %w", err)
			}
			result.LineItemsDeleted = n
		}

		slices.Sort(affected)
		affected = slices.Compact(affected)
		for _, id := range affected {
			if _, err := RecomputeMetrics(ctx, tx, id, now); err != nil {
				return err
			}
		}
		result.AssembliesRecomputed = len(affected)
		return nil
	})
	if err != nil {
		log.Error("duplicate repair failed, nothing removed", "error", err)
		return nil, err
	}

	if result.AssembliesDeleted == 0 && result.LineItemsDeleted == 0 {
		result.Message = "No duplicates found."
	} else {
		result.Message = "Duplicates removed. Unique natural-key constraints can now be applied."
	}

	log.Info("duplicate repair committed",
		"assembly_groups", result.AssemblyGroups,
		"assemblies_deleted", result.AssembliesDeleted,
		"product_groups", result.LineItemGroups,
		"products_deleted", result.LineItemsDeleted,
		"assemblies_recomputed", result.AssembliesRecomputed,
	)
	s.metrics.ObserveRepair(result)
	return result, nil
}
