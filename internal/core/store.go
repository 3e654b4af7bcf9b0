package core

import (
	"context"
	"time"
)

// Querier is the set of entity operations available both on a Store and
// inside a transaction.
//
// Implementations map storage errors onto the package sentinels: unique
// collisions to ErrConstraintViolation, missing rows to ErrNotFound, data
// rule violations (CHECK, NOT NULL, value too long) to ErrValidation, and
// everything else to ErrStorageFatal.
type Querier interface {
	// Assemblies
	FindAssembly(ctx context.Context, key AssemblyKey) (Assembly, error)
	GetAssembly(ctx context.Context, id int64) (Assembly, error)
	InsertAssembly(ctx context.Context, a *Assembly) error
	UpdateAssembly(ctx context.Context, a *Assembly) error
	SetAssemblyBlackListed(ctx context.Context, id int64, blackListed bool, now time.Time) error
	ListAssemblies(ctx context.Context, f AssemblyFilter) ([]Assembly, error)
	DeleteAssemblies(ctx context.Context, ids []int64) (int64, error)
	DeleteAssembliesCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Derived metrics
	AssemblyTotals(ctx context.Context, assemblyID int64) (AssemblyMetrics, error)
	UpdateAssemblyMetrics(ctx context.Context, assemblyID int64, m AssemblyMetrics, now time.Time) error

	// Line items
	FindLineItem(ctx context.Context, key LineItemKey) (LineItem, error)
	GetLineItem(ctx context.Context, id int64) (LineItem, error)
	InsertLineItem(ctx context.Context, li *LineItem) error
	UpdateLineItem(ctx context.Context, li *LineItem) error
	DeleteLineItem(ctx context.Context, id int64) error
	DeleteLineItems(ctx context.Context, ids []int64) (int64, error)
	ListLineItems(ctx context.Context, assemblyIDs []int64) ([]LineItem, error)

	// Reads for collaborators
	Summarize(ctx context.Context, from, to time.Time) (DaySummary, error)

	// Audit
	AssemblyDuplicates(ctx context.Context) ([]DuplicateRow[AssemblyKey], error)
	LineItemDuplicates(ctx context.Context) ([]DuplicateRow[LineItemKey], error)

	// Batch history
	InsertBatchRecord(ctx context.Context, rec BatchRecord) error
	ListBatchRecords(ctx context.Context, limit int) ([]BatchRecord, error)
}

// Tx is a Querier bound to one open transaction.
type Tx interface {
	Querier

	// Savepoint runs fn inside a savepoint. If fn returns an error the
	// savepoint is rolled back and the error is returned; the enclosing
	// transaction stays usable. Savepoints nest.
	Savepoint(ctx context.Context, fn func() error) error
}

// Store is the entity store used by the Service.
type Store interface {
	Querier

	// InTx runs fn in one all-or-nothing transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
