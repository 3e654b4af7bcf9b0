package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikhailFrushkin/Lenanad-site/internal/logging"
)

// AssemblyStats counts assembly outcomes of one batch.
type AssemblyStats struct {
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Skipped       int `json:"skipped"`
	Total         int `json:"total"`
	TotalReceived int `json:"total_received"`
}

// ProductStats counts line-item outcomes of one batch.
type ProductStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// IngestResult summarizes a committed batch.
type IngestResult struct {
	BatchID      string        `json:"batch_id"`
	Success      bool          `json:"success"`
	SourceSystem string        `json:"source_system"`
	Assemblies   AssemblyStats `json:"assemblies"`
	Products     ProductStats  `json:"products"`
	Rejected     []RecordError `json:"rejected,omitempty"`
	Duration     time.Duration `json:"-"`
}

// merge adds the outcome of one successfully processed assembly.
func (r *IngestResult) merge(ar assemblyResult) {
	switch ar.outcome {
	case outcomeCreated:
		r.Assemblies.Created++
	case outcomeUpdated:
		r.Assemblies.Updated++
	}
	r.Assemblies.Total = r.Assemblies.Created + r.Assemblies.Updated

	r.Products.Created += ar.items.created
	r.Products.Updated += ar.items.updated
	r.Products.Skipped += ar.items.skipped
	r.Products.Total = r.Products.Created + r.Products.Updated

	for _, re := range ar.rejected {
		r.reject(re)
	}
}

func (r *IngestResult) reject(re RecordError) {
	if len(r.Rejected) < maxRejectedReported {
		r.Rejected = append(r.Rejected, re)
	}
}

func (r *IngestResult) record(meta batchMeta, declared int, remoteAddr string) BatchRecord {
	return BatchRecord{
		ID:                 meta.id,
		ReceivedAt:         meta.receivedAt,
		ReportedAt:         meta.reportedAt,
		DeclaredCount:      declared,
		AssembliesReceived: r.Assemblies.TotalReceived,
		AssembliesCreated:  r.Assemblies.Created,
		AssembliesUpdated:  r.Assemblies.Updated,
		AssembliesSkipped:  r.Assemblies.Skipped,
		ItemsCreated:       r.Products.Created,
		ItemsUpdated:       r.Products.Updated,
		ItemsSkipped:       r.Products.Skipped,
		SourceSystem:       meta.sourceSystem,
		RemoteAddr:         remoteAddr,
		DurationMs:         r.Duration.Milliseconds(),
	}
}

// Ingest upserts every assembly of b and its line items in one transaction.
//
// Each assembly runs in its own savepoint and each line item in a nested one.
// Recoverable errors (validation, constraint, not found) roll back only the
// failing record and are counted as skipped; an assembly that fails discards
// its partial counters. Any other error rolls back the whole batch and is
// returned wrapped in ErrStorageFatal.
//
// Envelope problems are returned as *EnvelopeError before any storage access.
// When every ingest slot is busy, ErrTooManyIngests is returned.
func (s *Service) Ingest(ctx context.Context, b Batch) (*IngestResult, error) {
	if err := ValidateBatch(b); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		s.metrics.ObserveRejectedBatch(err)
		return nil, err
	}
	defer s.limiter.Release()

	if s.ingestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ingestTimeout)
		defer cancel()
	}

	start := time.Now()
	meta := batchMeta{
		id:           uuid.NewString(),
		reportedAt:   b.Timestamp.UTC(),
		receivedAt:   s.now(),
		sourceSystem: b.sourceSystem(),
	}
	client := ClientFromContext(ctx)
	log := logging.WithFields(ctx,
		"batch_id", meta.id,
		"source_system", meta.sourceSystem,
	)

	declared := *b.AssembliesCount
	if declared != len(b.Assemblies) {
		log.Warn("assemblies_count does not match assemblies received",
			"declared", declared,
			"received", len(b.Assemblies),
		)
	}

	log.Info("batch started", "assemblies", len(b.Assemblies), "remote_addr", client.IP)

	var result *IngestResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		result = &IngestResult{
			BatchID:      meta.id,
			SourceSystem: meta.sourceSystem,
			Assemblies:   AssemblyStats{TotalReceived: len(b.Assemblies)},
		}

		for i, p := range b.Assemblies {
			var ar assemblyResult
			err := tx.Savepoint(ctx, func() error {
				var err error
				ar, err = s.resolver.upsertAssembly(ctx, tx, i, p, meta, log)
				return err
			})
			if err != nil {
				if !IsRecoverable(err) {
					return fmt.Errorf("assembly %d (%s/%s): %w", i, p.Order, p.TaskID, err)
				}
				result.Assemblies.Skipped++
				result.reject(RecordError{
					AssemblyIndex: i,
					ItemIndex:     -1,
					OrderNumber:   p.Order,
					TaskID:        p.TaskID,
					Reason:        err.Error(),
				})
				log.Warn("assembly skipped",
					"index", i,
					"order", p.Order,
					"task_id", p.TaskID,
					"error", err,
				)
				continue
			}
			result.merge(ar)
		}

		result.Duration = time.Since(start)
		if err := tx.InsertBatchRecord(ctx, result.record(meta, declared, client.IP)); err != nil {
			return fmt.Errorf("record batch history: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrStorageFatal) {
			err = fmt.Errorf("%w: %w", ErrStorageFatal, err)
		}
		log.Error("batch aborted, nothing committed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		s.metrics.ObserveBatch(nil, err)
		return nil, err
	}

	result.Success = true
	result.Duration = time.Since(start)

	log.Info("batch committed",
		"assemblies_created", result.Assemblies.Created,
		"assemblies_updated", result.Assemblies.Updated,
		"assemblies_skipped", result.Assemblies.Skipped,
		"products_created", result.Products.Created,
		"products_updated", result.Products.Updated,
		"products_skipped", result.Products.Skipped,
		"duration_ms", result.Duration.Milliseconds(),
	)
	s.metrics.ObserveBatch(result, nil)
	return result, nil
}
