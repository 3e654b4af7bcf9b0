package core

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	// DefaultStatus is assigned to new assemblies whose payload omits status_str.
	DefaultStatus = "PARTIALLY_PICKED"

	// DefaultSourceSystem is used when a batch carries no system_info.database.
	DefaultSourceSystem = "assembly_tracker"

	// CriticalMissingThreshold is the missing quantity above which a line item
	// is flagged critical.
	CriticalMissingThreshold = 5
)

// AssemblyKey is the natural key of an assembly.
type AssemblyKey struct {
	OrderNumber string `json:"order_number" yaml:"order_number"`
	TaskID      string `json:"task_id" yaml:"task_id"`
}

// Assembly is one picking task for one customer order.
//
// LineItemCount and TotalMissingQuantity are derived from the assembly's line
// items and are only ever written by RecomputeMetrics.
type Assembly struct {
	ID                   int64       `json:"id"`
	OrderNumber          string      `json:"order_number"`
	TaskID               string      `json:"task_id"`
	Status               string      `json:"status_str"`
	Zone                 pgtype.Text `json:"assembly_zone"`
	Assembler            pgtype.Text `json:"assembler"`
	ReportedAt           time.Time   `json:"timestamp"`
	SourceSystem         string      `json:"source_system"`
	BlackListed          bool        `json:"black_list"`
	LineItemCount        int         `json:"products_count"`
	TotalMissingQuantity int         `json:"total_missing_quantity"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Key returns the assembly's natural key.
func (a Assembly) Key() AssemblyKey {
	return AssemblyKey{OrderNumber: a.OrderNumber, TaskID: a.TaskID}
}

// LineItemKey is the natural key of a line item within its assembly.
type LineItemKey struct {
	AssemblyID        int64  `json:"assembly_id" yaml:"assembly_id"`
	ProductCode       string `json:"product_code" yaml:"product_code"`
	RequiredQuantity  int    `json:"quantity" yaml:"quantity"`
	CollectedQuantity int    `json:"collected_quantity" yaml:"collected_quantity"`
}

// LineItem is one product position inside an assembly.
type LineItem struct {
	ID                int64       `json:"id"`
	AssemblyID        int64       `json:"assembly_id"`
	ProductCode       string      `json:"lm_code"`
	DepartmentID      pgtype.Text `json:"department_id"`
	Title             pgtype.Text `json:"title"`
	ImageURL          pgtype.Text `json:"image_url"`
	RequiredQuantity  int         `json:"quantity"`
	CollectedQuantity int         `json:"collected_quantity"`
	MissingQuantity   int         `json:"missing_quantity"`
	IsCritical        bool        `json:"is_critical"`
	Source            pgtype.Text `json:"source"`
	BlackListed       bool        `json:"black_list"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Key returns the line item's natural key.
func (li LineItem) Key() LineItemKey {
	return LineItemKey{
		AssemblyID:        li.AssemblyID,
		ProductCode:       li.ProductCode,
		RequiredQuantity:  li.RequiredQuantity,
		CollectedQuantity: li.CollectedQuantity,
	}
}

// deriveQuantities recomputes MissingQuantity and IsCritical from the
// required and collected quantities.
func (li *LineItem) deriveQuantities() {
	li.MissingQuantity = max(0, li.RequiredQuantity-li.CollectedQuantity)
	li.IsCritical = li.MissingQuantity > CriticalMissingThreshold
}

// AssemblyMetrics holds the derived aggregates of one assembly.
type AssemblyMetrics struct {
	LineItemCount        int `json:"products_count"`
	TotalMissingQuantity int `json:"total_missing_quantity"`
}

// AssemblyDetail is an assembly together with its line items.
type AssemblyDetail struct {
	Assembly
	Products []LineItem `json:"products"`
}

// AssemblyFilter narrows ListAssemblies. Zero values mean "no constraint".
// The reported_at range is half-open: [From, To).
type AssemblyFilter struct {
	Assembler    string
	OrderNumber  string
	DepartmentID string
	From         time.Time
	To           time.Time
	Limit        int
}

// DaySummary aggregates the assemblies reported within one calendar day.
type DaySummary struct {
	Date         string   `json:"date"`
	Assemblies   int      `json:"total_assemblies"`
	LineItems    int      `json:"total_products"`
	TotalMissing int      `json:"total_missing_quantity"`
	Assemblers   []string `json:"assemblers"`
}

// BatchRecord is the persisted history entry for one ingested batch.
type BatchRecord struct {
	ID                 string    `json:"id"`
	ReceivedAt         time.Time `json:"received_at"`
	ReportedAt         time.Time `json:"timestamp"`
	DeclaredCount      int       `json:"assemblies_count"`
	AssembliesReceived int       `json:"assemblies_received"`
	AssembliesCreated  int       `json:"assemblies_created"`
	AssembliesUpdated  int       `json:"assemblies_updated"`
	AssembliesSkipped  int       `json:"assemblies_skipped"`
	ItemsCreated       int       `json:"products_created"`
	ItemsUpdated       int       `json:"products_updated"`
	ItemsSkipped       int       `json:"products_skipped"`
	SourceSystem       string    `json:"source_system"`
	RemoteAddr         string    `json:"remote_addr,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
}

// DuplicateRow is one member of a natural-key duplicate group as read from
// the store. Rows of the same group share Key.
type DuplicateRow[K comparable] struct {
	Key       K
	ID        int64
	UpdatedAt time.Time
}
