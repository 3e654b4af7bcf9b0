// Package core provides the ingestion and consistency logic for partially
// picked assemblies reported by the warehouse tracking system.
//
// This package contains all domain logic independent of any transport or
// storage engine. It is used by the HTTP server and by the operator CLI.
//
// # Architecture
//
// The package is organized around five collaborating parts:
//
//   - Entity Store: the [Store] contract, implemented by the postgres and
//     sqlite packages. Natural-key uniqueness is enforced by the store itself.
//   - Metric Maintainer: [RecomputeMetrics] rebuilds an assembly's derived
//     fields from its current line items after every line-item mutation.
//   - Upsert Resolver: decides create-vs-update per natural key for one
//     assembly payload and each of its line items.
//   - Batch Ingestor: [Service.Ingest] runs a whole batch in one transaction,
//     isolating per-record failures behind savepoints.
//   - Consistency Auditor: [Service.FindDuplicates] and
//     [Service.RepairDuplicates] detect and remove natural-key duplicates left
//     by legacy data or constraint-less backends.
//
// # Natural Keys
//
// An assembly is identified by (order_number, task_id). A line item is
// identified within its assembly by (product_code, required_quantity,
// collected_quantity). Quantities are part of the key so that a later report
// of the same product with more items collected is stored as a new fact,
// while an identical re-submission only refreshes the existing row.
//
// # Transactions
//
// A batch is all-or-nothing with respect to storage failures:
//
//  1. [Service.Ingest] opens a transaction with [Store.InTx]
//  2. Each assembly runs inside a savepoint, each line item in a nested one
//  3. Validation, constraint and not-found errors roll back only their
//     savepoint and are counted as skipped
//  4. Any other error rolls back the whole batch and wraps [ErrStorageFatal]
//
// # Error Handling
//
// Errors are classified with [errors.Is] against the sentinels in errors.go.
// [MapError] turns any error into a user message with a support code:
//
//   - ING001-ING003: Ingestion errors (busy, timeout, envelope)
//   - VAL001-VAL003: Record validation errors
//   - DB001-DB006: Storage errors (constraints, connectivity)
//   - AUD001: Schema upgrade blocked by duplicates
package core
