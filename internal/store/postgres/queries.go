package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// queries implements core.Querier on a DBTX.
type queries struct {
	db DBTX
}

var _ core.Querier = (*queries)(nil)

// ============================================================================
// Assemblies
// ============================================================================

const assemblyColumns = `id, order_number, task_id, status, assembly_zone, assembler,
	reported_at, source_system, black_listed, line_item_count,
	total_missing_quantity, created_at, updated_at`

func scanAssembly(row pgx.Row) (core.Assembly, error) {
	var a core.Assembly
	err := row.Scan(
		&a.ID, &a.OrderNumber, &a.TaskID, &a.Status, &a.Zone, &a.Assembler,
		&a.ReportedAt, &a.SourceSystem, &a.BlackListed, &a.LineItemCount,
		&a.TotalMissingQuantity, &a.CreatedAt, &a.UpdatedAt,
	)
	a.ReportedAt, a.CreatedAt, a.UpdatedAt = a.ReportedAt.UTC(), a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	return a, err
}

func (q *queries) FindAssembly(ctx context.Context, key core.AssemblyKey) (core.Assembly, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+assemblyColumns+` FROM assemblies
		WHERE order_number = $1 AND task_id = $2
		ORDER BY updated_at DESC, id DESC LIMIT 1`,
		key.OrderNumber, key.TaskID)
	a, err := scanAssembly(row)
	if err != nil {
		return core.Assembly{}, classify("find assembly", err)
	}
	return a, nil
}

func (q *queries) GetAssembly(ctx context.Context, id int64) (core.Assembly, error) {
	a, err := scanAssembly(q.db.QueryRow(ctx, `SELECT `+assemblyColumns+` FROM assemblies WHERE id = $1`, id))
	if err != nil {
		return core.Assembly{}, classify("get assembly", err)
	}
	return a, nil
}

func (q *queries) InsertAssembly(ctx context.Context, a *core.Assembly) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO assemblies (
			order_number, task_id, status, assembly_zone, assembler, reported_at,
			source_system, black_listed, line_item_count, total_missing_quantity,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		a.OrderNumber, a.TaskID, a.Status, a.Zone, a.Assembler, a.ReportedAt,
		a.SourceSystem, a.BlackListed, a.LineItemCount, a.TotalMissingQuantity,
		a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	return classify("insert assembly", err)
}

func (q *queries) UpdateAssembly(ctx context.Context, a *core.Assembly) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE assemblies
		SET status = $1, assembly_zone = $2, assembler = $3, reported_at = $4, updated_at = $5
		WHERE id = $6`,
		a.Status, a.Zone, a.Assembler, a.ReportedAt, a.UpdatedAt, a.ID)
	if err != nil {
		return classify("update assembly", err)
	}
	return affectedOne("update assembly", tag)
}

func (q *queries) SetAssemblyBlackListed(ctx context.Context, id int64, blackListed bool, now time.Time) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE assemblies SET black_listed = $1, updated_at = $2 WHERE id = $3`,
		blackListed, now, id)
	if err != nil {
		return classify("set black list", err)
	}
	return affectedOne("set black list", tag)
}

func (q *queries) ListAssemblies(ctx context.Context, f core.AssemblyFilter) ([]core.Assembly, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Assembler != "" {
		where = append(where, `assembler ILIKE `+arg("%"+escapeLike(f.Assembler)+"%"))
	}
	if f.OrderNumber != "" {
		where = append(where, `order_number = `+arg(f.OrderNumber))
	}
	if f.DepartmentID != "" {
		where = append(where, `EXISTS (SELECT 1 FROM line_items li WHERE li.assembly_id = assemblies.id AND li.department_id = `+arg(f.DepartmentID)+`)`)
	}
	if !f.From.IsZero() {
		where = append(where, `reported_at >= `+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, `reported_at < `+arg(f.To))
	}

	query := `SELECT ` + assemblyColumns + ` FROM assemblies`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY reported_at DESC, id DESC LIMIT ` + arg(f.Limit)

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list assemblies", err)
	}
	defer rows.Close()

	var out []core.Assembly
	for rows.Next() {
		a, err := scanAssembly(rows)
		if err != nil {
			return nil, classify("scan assembly", err)
		}
		out = append(out, a)
	}
	return out, classify("list assemblies", rows.Err())
}

func (q *queries) DeleteAssemblies(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := q.db.Exec(ctx, `DELETE FROM assemblies WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, classify("delete assemblies", err)
	}
	return tag.RowsAffected(), nil
}

func (q *queries) DeleteAssembliesCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM assemblies WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, classify("purge assemblies", err)
	}
	return tag.RowsAffected(), nil
}

// ============================================================================
// Derived metrics
// ============================================================================

func (q *queries) AssemblyTotals(ctx context.Context, assemblyID int64) (core.AssemblyMetrics, error) {
	var m core.AssemblyMetrics
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*)::int, COALESCE(SUM(missing_quantity), 0)::int FROM line_items WHERE assembly_id = $1`,
		assemblyID,
	).Scan(&m.LineItemCount, &m.TotalMissingQuantity)
	if err != nil {
		return core.AssemblyMetrics{}, classify("assembly totals", err)
	}
	return m, nil
}

func (q *queries) UpdateAssemblyMetrics(ctx context.Context, assemblyID int64, m core.AssemblyMetrics, now time.Time) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE assemblies SET line_item_count = $1, total_missing_quantity = $2, updated_at = $3 WHERE id = $4`,
		m.LineItemCount, m.TotalMissingQuantity, now, assemblyID)
	if err != nil {
		return classify("update assembly metrics", err)
	}
	return affectedOne("update assembly metrics", tag)
}

// ============================================================================
// Line items
// ============================================================================

const lineItemColumns = `id, assembly_id, product_code, department_id, title, image_url,
	required_quantity, collected_quantity, missing_quantity, is_critical, source,
	black_listed, created_at, updated_at`

func scanLineItem(row pgx.Row) (core.LineItem, error) {
	var li core.LineItem
	err := row.Scan(
		&li.ID, &li.AssemblyID, &li.ProductCode, &li.DepartmentID, &li.Title, &li.ImageURL,
		&li.RequiredQuantity, &li.CollectedQuantity, &li.MissingQuantity, &li.IsCritical, &li.Source,
		&li.BlackListed, &li.CreatedAt, &li.UpdatedAt,
	)
	li.CreatedAt, li.UpdatedAt = li.CreatedAt.UTC(), li.UpdatedAt.UTC()
	return li, err
}

func (q *queries) FindLineItem(ctx context.Context, key core.LineItemKey) (core.LineItem, error) {
	li, err := scanLineItem(q.db.QueryRow(ctx,
		`SELECT `+lineItemColumns+` FROM line_items
		WHERE assembly_id = $1 AND product_code = $2 AND required_quantity = $3 AND collected_quantity = $4
		ORDER BY updated_at DESC, id DESC LIMIT 1`,
		key.AssemblyID, key.ProductCode, key.RequiredQuantity, key.CollectedQuantity))
	if err != nil {
		return core.LineItem{}, classify("find product", err)
	}
	return li, nil
}

func (q *queries) GetLineItem(ctx context.Context, id int64) (core.LineItem, error) {
	li, err := scanLineItem(q.db.QueryRow(ctx, `SELECT `+lineItemColumns+` FROM line_items WHERE id = $1`, id))
	if err != nil {
		return core.LineItem{}, classify("get product", err)
	}
	return li, nil
}

func (q *queries) InsertLineItem(ctx context.Context, li *core.LineItem) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO line_items (
			assembly_id, product_code, department_id, title, image_url,
			required_quantity, collected_quantity, missing_quantity, is_critical,
			source, black_listed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		li.AssemblyID, li.ProductCode, li.DepartmentID, li.Title, li.ImageURL,
		li.RequiredQuantity, li.CollectedQuantity, li.MissingQuantity, li.IsCritical,
		li.Source, li.BlackListed, li.CreatedAt, li.UpdatedAt,
	).Scan(&li.ID)
	return classify("insert product", err)
}

func (q *queries) UpdateLineItem(ctx context.Context, li *core.LineItem) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE line_items
		SET department_id = $1, title = $2, image_url = $3, source = $4,
			missing_quantity = $5, is_critical = $6, updated_at = $7
		WHERE id = $8`,
		li.DepartmentID, li.Title, li.ImageURL, li.Source,
		li.MissingQuantity, li.IsCritical, li.UpdatedAt, li.ID)
	if err != nil {
		return classify("update product", err)
	}
	return affectedOne("update product", tag)
}

func (q *queries) DeleteLineItem(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM line_items WHERE id = $1`, id)
	if err != nil {
		return classify("delete product", err)
	}
	return affectedOne("delete product", tag)
}

func (q *queries) DeleteLineItems(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := q.db.Exec(ctx, `DELETE FROM line_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, classify("delete products", err)
	}
	return tag.RowsAffected(), nil
}

func (q *queries) ListLineItems(ctx context.Context, assemblyIDs []int64) ([]core.LineItem, error) {
	if len(assemblyIDs) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx,
		`SELECT `+lineItemColumns+` FROM line_items
		WHERE assembly_id = ANY($1)
		ORDER BY assembly_id, missing_quantity DESC, id`, assemblyIDs)
	if err != nil {
		return nil, classify("list products", err)
	}
	defer rows.Close()

	var out []core.LineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, classify("scan product", err)
		}
		out = append(out, li)
	}
	return out, classify("list products", rows.Err())
}

// ============================================================================
// Reads for collaborators
// ============================================================================

func (q *queries) Summarize(ctx context.Context, from, to time.Time) (core.DaySummary, error) {
	var s core.DaySummary
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*)::int, COALESCE(SUM(line_item_count), 0)::int, COALESCE(SUM(total_missing_quantity), 0)::int
		FROM assemblies WHERE reported_at >= $1 AND reported_at < $2`,
		from, to,
	).Scan(&s.Assemblies, &s.LineItems, &s.TotalMissing)
	if err != nil {
		return core.DaySummary{}, classify("summarize", err)
	}

	rows, err := q.db.Query(ctx,
		`SELECT DISTINCT assembler FROM assemblies
		WHERE reported_at >= $1 AND reported_at < $2 AND assembler IS NOT NULL AND assembler <> ''
		ORDER BY assembler`, from, to)
	if err != nil {
		return core.DaySummary{}, classify("list assemblers", err)
	}
	s.Assemblers, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return core.DaySummary{}, classify("list assemblers", err)
	}
	return s, nil
}

// ============================================================================
// Audit
// ============================================================================

func (q *queries) AssemblyDuplicates(ctx context.Context) ([]core.DuplicateRow[core.AssemblyKey], error) {
	rows, err := q.db.Query(ctx,
		`SELECT a.order_number, a.task_id, a.id, a.updated_at
		FROM assemblies a
		JOIN (
			SELECT order_number, task_id FROM assemblies
			GROUP BY order_number, task_id HAVING COUNT(*) > 1
		) d USING (order_number, task_id)
		ORDER BY a.order_number, a.task_id, a.id`)
	if err != nil {
		return nil, classify("assembly duplicates", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.DuplicateRow[core.AssemblyKey], error) {
		var r core.DuplicateRow[core.AssemblyKey]
		err := row.Scan(&r.Key.OrderNumber, &r.Key.TaskID, &r.ID, &r.UpdatedAt)
		return r, err
	})
	return out, classify("assembly duplicates", err)
}

func (q *queries) LineItemDuplicates(ctx context.Context) ([]core.DuplicateRow[core.LineItemKey], error) {
	rows, err := q.db.Query(ctx,
		`SELECT li.assembly_id, li.product_code, li.required_quantity, li.collected_quantity, li.id, li.updated_at
		FROM line_items li
		JOIN (
			SELECT assembly_id, product_code, required_quantity, collected_quantity FROM line_items
			GROUP BY assembly_id, product_code, required_quantity, collected_quantity HAVING COUNT(*) > 1
		) d USING (assembly_id, product_code, required_quantity, collected_quantity)
		ORDER BY li.assembly_id, li.product_code, li.required_quantity, li.collected_quantity, li.id`)
	if err != nil {
		return nil, classify("product duplicates", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.DuplicateRow[core.LineItemKey], error) {
		var r core.DuplicateRow[core.LineItemKey]
		err := row.Scan(&r.Key.AssemblyID, &r.Key.ProductCode, &r.Key.RequiredQuantity, &r.Key.CollectedQuantity,
			&r.ID, &r.UpdatedAt)
		return r, err
	})
	return out, classify("product duplicates", err)
}

// ============================================================================
// Batch history
// ============================================================================

func (q *queries) InsertBatchRecord(ctx context.Context, rec core.BatchRecord) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO ingest_batches (
			id, received_at, reported_at, declared_count, assemblies_received,
			assemblies_created, assemblies_updated, assemblies_skipped,
			items_created, items_updated, items_skipped, source_system, remote_addr, duration_ms
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.ReceivedAt, rec.ReportedAt, rec.DeclaredCount, rec.AssembliesReceived,
		rec.AssembliesCreated, rec.AssembliesUpdated, rec.AssembliesSkipped,
		rec.ItemsCreated, rec.ItemsUpdated, rec.ItemsSkipped, rec.SourceSystem, rec.RemoteAddr, rec.DurationMs,
	)
	return classify("insert batch record", err)
}

func (q *queries) ListBatchRecords(ctx context.Context, limit int) ([]core.BatchRecord, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id::text, received_at, reported_at, declared_count, assemblies_received,
			assemblies_created, assemblies_updated, assemblies_skipped,
			items_created, items_updated, items_skipped, source_system, remote_addr, duration_ms
		FROM ingest_batches ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, classify("list batch records", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.BatchRecord, error) {
		var r core.BatchRecord
		err := row.Scan(
			&r.ID, &r.ReceivedAt, &r.ReportedAt, &r.DeclaredCount, &r.AssembliesReceived,
			&r.AssembliesCreated, &r.AssembliesUpdated, &r.AssembliesSkipped,
			&r.ItemsCreated, &r.ItemsUpdated, &r.ItemsSkipped, &r.SourceSystem, &r.RemoteAddr, &r.DurationMs,
		)
		r.ReceivedAt, r.ReportedAt = r.ReceivedAt.UTC(), r.ReportedAt.UTC()
		return r, err
	})
	return out, classify("list batch records", err)
}

// escapeLike escapes LIKE wildcards in s using backslash, the PostgreSQL
// default escape character.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
