package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// outcome is how one record was resolved against its natural key.
type outcome int

const (
	outcomeCreated outcome = iota + 1
	outcomeUpdated
)

// batchMeta is the batch-wide data every record of a batch shares.
type batchMeta struct {
	id           string
	reportedAt   time.Time
	receivedAt   time.Time
	sourceSystem string
}

// itemCounts tallies line-item outcomes of one assembly.
type itemCounts struct {
	created int
	updated int
	skipped int
}

// assemblyResult is what one assembly payload contributed to its batch.
type assemblyResult struct {
	assemblyID int64
	outcome    outcome
	items      itemCounts
	rejected   []RecordError
}

// resolver decides create-vs-update for assemblies and line items.
type resolver struct {
	now func() time.Time
}

// upsertAssembly resolves one assembly payload and all of its line items.
//
// Recoverable line-item errors are recorded and skipped. A recoverable error
// on the assembly itself, or any fatal error, is returned; the caller rolls
// back the assembly's savepoint.
func (r *resolver) upsertAssembly(ctx context.Context, tx Tx, index int, p AssemblyPayload, meta batchMeta, log *slog.Logger) (assemblyResult, error) {
	key, err := p.key()
	if err != nil {
		return assemblyResult{}, err
	}

	a, o, err := r.resolveAssembly(ctx, tx, key, p, meta)
	if err != nil {
		return assemblyResult{}, err
	}

	res := assemblyResult{assemblyID: a.ID, outcome: o}
	for j, ip := range p.Products {
		var io outcome
		err := tx.Savepoint(ctx, func() error {
			var err error
			io, err = r.upsertLineItem(ctx, tx, a.ID, ip)
			return err
		})
		if err != nil {
			if !IsRecoverable(err) {
				return res, fmt.Errorf("product %d (%s): %w", j, ip.ProductCode, err)
			}
			res.items.skipped++
			res.rejected = append(res.rejected, RecordError{
				AssemblyIndex: index,
				ItemIndex:     j,
				OrderNumber:   key.OrderNumber,
				TaskID:        key.TaskID,
				ProductCode:   ip.ProductCode,
				Reason:        err.Error(),
			})
			log.Warn("product skipped",
				"order", key.OrderNumber,
				"task_id", key.TaskID,
				"lm_code", ip.ProductCode,
				"error", err,
			)
			continue
		}

		switch io {
		case outcomeCreated:
			res.items.created++
		case outcomeUpdated:
			res.items.updated++
		}
	}

	return res, nil
}

// resolveAssembly finds or creates the assembly for key.
func (r *resolver) resolveAssembly(ctx context.Context, tx Tx, key AssemblyKey, p AssemblyPayload, meta batchMeta) (Assembly, outcome, error) {
	existing, err := tx.FindAssembly(ctx, key)
	switch {
	case err == nil:
		return r.refreshAssembly(ctx, tx, existing, p, meta)
	case !errors.Is(err, ErrNotFound):
		return Assembly{}, 0, err
	}

	a := newAssembly(key, p, meta, r.now())
	err = tx.Savepoint(ctx, func() error {
		return tx.InsertAssembly(ctx, &a)
	})
	if err == nil {
		return a, outcomeCreated, nil
	}
	if !errors.Is(err, ErrConstraintViolation) || errors.Is(err, ErrStorageFatal) {
		return Assembly{}, 0, err
	}

	// A concurrent writer inserted the same key after our lookup.
	existing, err = tx.FindAssembly(ctx, key)
	if err != nil {
		return Assembly{}, 0, fmt.Errorf("re-read assembly %s/%s after conflict: %w", key.OrderNumber, key.TaskID, err)
	}
	return r.refreshAssembly(ctx, tx, existing, p, meta)
}

// refreshAssembly applies the fields present in p to an existing assembly.
// The report timestamp is always refreshed. An explicit null zone or
// assembler is treated like an absent key and keeps the stored value.
func (r *resolver) refreshAssembly(ctx context.Context, tx Tx, a Assembly, p AssemblyPayload, meta batchMeta) (Assembly, outcome, error) {
	if p.Status.Valid && strings.TrimSpace(p.Status.String) != "" {
		a.Status = p.Status.String
	}
	if p.Zone.Valid {
		a.Zone = p.Zone
	}
	if p.Assembler.Valid {
		a.Assembler = p.Assembler
	}
	a.ReportedAt = meta.reportedAt
	a.UpdatedAt = r.now()

	if err := tx.UpdateAssembly(ctx, &a); err != nil {
		return Assembly{}, 0, fmt.Errorf("update assembly %d: %w", a.ID, err)
	}
	return a, outcomeUpdated, nil
}

func newAssembly(key AssemblyKey, p AssemblyPayload, meta batchMeta, now time.Time) Assembly {
	a := Assembly{
		OrderNumber:  key.OrderNumber,
		TaskID:       key.TaskID,
		Status:       DefaultStatus,
		Zone:         p.Zone,
		Assembler:    p.Assembler,
		ReportedAt:   meta.reportedAt,
		SourceSystem: meta.sourceSystem,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.Status.Valid && strings.TrimSpace(p.Status.String) != "" {
		a.Status = p.Status.String
	}
	return a
}

// upsertLineItem finds or creates the line item described by p and keeps the
// parent's metrics current.
func (r *resolver) upsertLineItem(ctx context.Context, tx Tx, assemblyID int64, p LineItemPayload) (outcome, error) {
	item, err := newLineItem(assemblyID, p)
	if err != nil {
		return 0, err
	}

	existing, err := tx.FindLineItem(ctx, item.Key())
	switch {
	case err == nil:
		return r.refreshLineItem(ctx, tx, existing, p)
	case !errors.Is(err, ErrNotFound):
		return 0, err
	}

	now := r.now()
	item.CreatedAt, item.UpdatedAt = now, now
	err = tx.Savepoint(ctx, func() error {
		if err := tx.InsertLineItem(ctx, &item); err != nil {
			return err
		}
		_, err := RecomputeMetrics(ctx, tx, assemblyID, now)
		return err
	})
	if err == nil {
		return outcomeCreated, nil
	}
	if !errors.Is(err, ErrConstraintViolation) || errors.Is(err, ErrStorageFatal) {
		return 0, err
	}

	existing, err = tx.FindLineItem(ctx, item.Key())
	if err != nil {
		return 0, fmt.Errorf("re-read product %s after conflict: %w", item.ProductCode, err)
	}
	return r.refreshLineItem(ctx, tx, existing, p)
}

// refreshLineItem overwrites the descriptive fields that p carries with
// non-empty values. Quantities are part of the key and never change here.
func (r *resolver) refreshLineItem(ctx context.Context, tx Tx, li LineItem, p LineItemPayload) (outcome, error) {
	overwriteText(&li.Title, p.Title)
	overwriteText(&li.DepartmentID, p.DepartmentID)
	overwriteText(&li.ImageURL, p.Image)
	overwriteText(&li.Source, p.Source)
	li.deriveQuantities()

	now := r.now()
	li.UpdatedAt = now
	if err := tx.UpdateLineItem(ctx, &li); err != nil {
		return 0, fmt.Errorf("update product %d: %w", li.ID, err)
	}
	if _, err := RecomputeMetrics(ctx, tx, li.AssemblyID, now); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}

// newLineItem validates p and builds the line item it describes.
func newLineItem(assemblyID int64, p LineItemPayload) (LineItem, error) {
	if p.decodeErr != nil {
		return LineItem{}, p.decodeErr
	}
	code := strings.TrimSpace(p.ProductCode)
	if code == "" {
		return LineItem{}, &ValidationError{Field: "lmCode", Message: "product code is required"}
	}
	if p.Quantity < 0 {
		return LineItem{}, &ValidationError{Field: "quantity", Value: strconv.Itoa(p.Quantity), Message: "must not be negative"}
	}
	if p.CollectedQuantity < 0 {
		return LineItem{}, &ValidationError{Field: "collected_quantity", Value: strconv.Itoa(p.CollectedQuantity), Message: "must not be negative"}
	}
	if p.CollectedQuantity > p.Quantity {
		return LineItem{}, &ValidationError{
			Field:   "collected_quantity",
			Value:   strconv.Itoa(p.CollectedQuantity),
			Message: fmt.Sprintf("collected quantity cannot exceed quantity %d", p.Quantity),
		}
	}

	li := LineItem{
		AssemblyID:        assemblyID,
		ProductCode:       code,
		DepartmentID:      p.DepartmentID,
		Title:             p.Title,
		ImageURL:          p.Image,
		RequiredQuantity:  p.Quantity,
		CollectedQuantity: p.CollectedQuantity,
		Source:            p.Source,
	}
	li.deriveQuantities()
	return li, nil
}
