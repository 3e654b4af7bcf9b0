package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements core.Querier on a dbtx.
type queries struct {
	db dbtx
}

var _ core.Querier = (*queries)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// idChunkSize bounds the number of bound parameters in one IN list.
const idChunkSize = 500

// ============================================================================
// Assemblies
// ============================================================================

const assemblyColumns = `id, order_number, task_id, status, assembly_zone, assembler,
	reported_at, source_system, black_listed, line_item_count,
	total_missing_quantity, created_at, updated_at`

func scanAssembly(row rowScanner) (core.Assembly, error) {
	var a core.Assembly
	err := row.Scan(
		&a.ID, &a.OrderNumber, &a.TaskID, &a.Status, &a.Zone, &a.Assembler,
		scanTime(&a.ReportedAt), &a.SourceSystem, &a.BlackListed, &a.LineItemCount,
		&a.TotalMissingQuantity, scanTime(&a.CreatedAt), scanTime(&a.UpdatedAt),
	)
	return a, err
}

func (q *queries) FindAssembly(ctx context.Context, key core.AssemblyKey) (core.Assembly, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+assemblyColumns+` FROM assemblies
		WHERE order_number = ? AND task_id = ?
		ORDER BY updated_at DESC, id DESC LIMIT 1`,
		key.OrderNumber, key.TaskID)
	a, err := scanAssembly(row)
	if err != nil {
		return core.Assembly{}, classify("find assembly", err)
	}
	return a, nil
}

func (q *queries) GetAssembly(ctx context.Context, id int64) (core.Assembly, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+assemblyColumns+` FROM assemblies WHERE id = ?`, id)
	a, err := scanAssembly(row)
	if err != nil {
		return core.Assembly{}, classify("get assembly", err)
	}
	return a, nil
}

func (q *queries) InsertAssembly(ctx context.Context, a *core.Assembly) error {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO assemblies (
			order_number, task_id, status, assembly_zone, assembler, reported_at,
			source_system, black_listed, line_item_count, total_missing_quantity,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		a.OrderNumber, a.TaskID, a.Status, a.Zone, a.Assembler, formatTime(a.ReportedAt),
		a.SourceSystem, a.BlackListed, a.LineItemCount, a.TotalMissingQuantity,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err := row.Scan(&a.ID); err != nil {
		return classify("insert assembly", err)
	}
	return nil
}

func (q *queries) UpdateAssembly(ctx context.Context, a *core.Assembly) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE assemblies
		SET status = ?, assembly_zone = ?, assembler = ?, reported_at = ?, updated_at = ?
		WHERE id = ?`,
		a.Status, a.Zone, a.Assembler, formatTime(a.ReportedAt), formatTime(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return classify("update assembly", err)
	}
	return affectedOne("update assembly", res)
}

func (q *queries) SetAssemblyBlackListed(ctx context.Context, id int64, blackListed bool, now time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE assemblies SET black_listed = ?, updated_at = ? WHERE id = ?`,
		blackListed, formatTime(now), id)
	if err != nil {
		return classify("set black list", err)
	}
	return affectedOne("set black list", res)
}

func (q *queries) ListAssemblies(ctx context.Context, f core.AssemblyFilter) ([]core.Assembly, error) {
	var (
		where []string
		args  []any
	)
	if f.Assembler != "" {
		where = append(where, `unicode_lower(assembler) LIKE unicode_lower(?) ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Assembler)+"%")
	}
	if f.OrderNumber != "" {
		where = append(where, `order_number = ?`)
		args = append(args, f.OrderNumber)
	}
	if f.DepartmentID != "" {
		where = append(where, `EXISTS (SELECT 1 FROM line_items li WHERE li.assembly_id = assemblies.id AND li.department_id = ?)`)
		args = append(args, f.DepartmentID)
	}
	if !f.From.IsZero() {
		where = append(where, `reported_at >= ?`)
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, `reported_at < ?`)
		args = append(args, formatTime(f.To))
	}

	query := `SELECT ` + assemblyColumns + ` FROM assemblies`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY reported_at DESC, id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
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
	return q.deleteByIDs(ctx, "assemblies", ids)
}

func (q *queries) DeleteAssembliesCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM assemblies WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, classify("purge assemblies", err)
	}
	n, err := res.RowsAffected()
	return n, classify("purge assemblies", err)
}

// ============================================================================
// Derived metrics
// ============================================================================

func (q *queries) AssemblyTotals(ctx context.Context, assemblyID int64) (core.AssemblyMetrics, error) {
	var m core.AssemblyMetrics
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(missing_quantity), 0) FROM line_items WHERE assembly_id = ?`,
		assemblyID,
	).Scan(&m.LineItemCount, &m.TotalMissingQuantity)
	if err != nil {
		return core.AssemblyMetrics{}, classify("assembly totals", err)
	}
	return m, nil
}

func (q *queries) UpdateAssemblyMetrics(ctx context.Context, assemblyID int64, m core.AssemblyMetrics, now time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE assemblies SET line_item_count = ?, total_missing_quantity = ?, updated_at = ? WHERE id = ?`,
		m.LineItemCount, m.TotalMissingQuantity, formatTime(now), assemblyID)
	if err != nil {
		return classify("update assembly metrics", err)
	}
	return affectedOne("update assembly metrics", res)
}

// ============================================================================
// Line items
// ============================================================================

const lineItemColumns = `id, assembly_id, product_code, department_id, title, image_url,
	required_quantity, collected_quantity, missing_quantity, is_critical, source,
	black_listed, created_at, updated_at`

func scanLineItem(row rowScanner) (core.LineItem, error) {
	var li core.LineItem
	err := row.Scan(
		&li.ID, &li.AssemblyID, &li.ProductCode, &li.DepartmentID, &li.Title, &li.ImageURL,
		&li.RequiredQuantity, &li.CollectedQuantity, &li.MissingQuantity, &li.IsCritical, &li.Source,
		&li.BlackListed, scanTime(&li.CreatedAt), scanTime(&li.UpdatedAt),
	)
	return li, err
}

func (q *queries) FindLineItem(ctx context.Context, key core.LineItemKey) (core.LineItem, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+lineItemColumns+` FROM line_items
		WHERE assembly_id = ? AND product_code = ? AND required_quantity = ? AND collected_quantity = ?
		ORDER BY updated_at DESC, id DESC LIMIT 1`,
		key.AssemblyID, key.ProductCode, key.RequiredQuantity, key.CollectedQuantity)
	li, err := scanLineItem(row)
	if err != nil {
		return core.LineItem{}, classify("find product", err)
	}
	return li, nil
}

func (q *queries) GetLineItem(ctx context.Context, id int64) (core.LineItem, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+lineItemColumns+` FROM line_items WHERE id = ?`, id)
	li, err := scanLineItem(row)
	if err != nil {
		return core.LineItem{}, classify("get product", err)
	}
	return li, nil
}

func (q *queries) InsertLineItem(ctx context.Context, li *core.LineItem) error {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO line_items (
			assembly_id, product_code, department_id, title, image_url,
			required_quantity, collected_quantity, missing_quantity, is_critical,
			source, black_listed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		li.AssemblyID, li.ProductCode, li.DepartmentID, li.Title, li.ImageURL,
		li.RequiredQuantity, li.CollectedQuantity, li.MissingQuantity, li.IsCritical,
		li.Source, li.BlackListed, formatTime(li.CreatedAt), formatTime(li.UpdatedAt),
	)
	if err := row.Scan(&li.ID); err != nil {
		return classify("insert product", err)
	}
	return nil
}

func (q *queries) UpdateLineItem(ctx context.Context, li *core.LineItem) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE line_items
		SET department_id = ?, title = ?, image_url = ?, source = ?,
			missing_quantity = ?, is_critical = ?, updated_at = ?
		WHERE id = ?`,
		li.DepartmentID, li.Title, li.ImageURL, li.Source,
		li.MissingQuantity, li.IsCritical, formatTime(li.UpdatedAt), li.ID,
	)
	if err != nil {
		return classify("update product", err)
	}
	return affectedOne("update product", res)
}

func (q *queries) DeleteLineItem(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM line_items WHERE id = ?`, id)
	if err != nil {
		return classify("delete product", err)
	}
	return affectedOne("delete product", res)
}

func (q *queries) DeleteLineItems(ctx context.Context, ids []int64) (int64, error) {
	return q.deleteByIDs(ctx, "line_items", ids)
}

func (q *queries) ListLineItems(ctx context.Context, assemblyIDs []int64) ([]core.LineItem, error) {
	var out []core.LineItem
	for chunk := range chunks(assemblyIDs, idChunkSize) {
		rows, err := q.db.QueryContext(ctx,
			`SELECT `+lineItemColumns+` FROM line_items
			WHERE assembly_id IN (`+placeholders(len(chunk))+`)
			ORDER BY assembly_id, missing_quantity DESC, id`,
			int64Args(chunk)...)
		if err != nil {
			return nil, classify("list products", err)
		}
		for rows.Next() {
			li, err := scanLineItem(rows)
			if err != nil {
				rows.Close()
				return nil, classify("scan product", err)
			}
			out = append(out, li)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, classify("list products", err)
		}
	}
	return out, nil
}

// ============================================================================
// Reads for collaborators
// ============================================================================

func (q *queries) Summarize(ctx context.Context, from, to time.Time) (core.DaySummary, error) {
	var s core.DaySummary
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(line_item_count), 0), COALESCE(SUM(total_missing_quantity), 0)
		FROM assemblies WHERE reported_at >= ? AND reported_at < ?`,
		formatTime(from), formatTime(to),
	).Scan(&s.Assemblies, &s.LineItems, &s.TotalMissing)
	if err != nil {
		return core.DaySummary{}, classify("summarize", err)
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT assembler FROM assemblies
		WHERE reported_at >= ? AND reported_at < ? AND assembler IS NOT NULL AND assembler <> ''
		ORDER BY assembler`,
		formatTime(from), formatTime(to))
	if err != nil {
		return core.DaySummary{}, classify("list assemblers", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return core.DaySummary{}, classify("scan assembler", err)
		}
		s.Assemblers = append(s.Assemblers, name)
	}
	return s, classify("list assemblers", rows.Err())
}

// ============================================================================
// Audit
// ============================================================================

func (q *queries) AssemblyDuplicates(ctx context.Context) ([]core.DuplicateRow[core.AssemblyKey], error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT a.order_number, a.task_id, a.id, a.updated_at
		FROM assemblies a
		JOIN (
			SELECT order_number, task_id FROM assemblies
			GROUP BY order_number, task_id HAVING COUNT(*) > 1
		) d ON d.order_number = a.order_number AND d.task_id = a.task_id
		ORDER BY a.order_number, a.task_id, a.id`)
	if err != nil {
		return nil, classify("assembly duplicates", err)
	}
	defer rows.Close()

	var out []core.DuplicateRow[core.AssemblyKey]
	for rows.Next() {
		var r core.DuplicateRow[core.AssemblyKey]
		if err := rows.Scan(&r.Key.OrderNumber, &r.Key.TaskID, &r.ID, scanTime(&r.UpdatedAt)); err != nil {
			return nil, classify("scan assembly duplicate", err)
		}
		out = append(out, r)
	}
	return out, classify("assembly duplicates", rows.Err())
}

func (q *queries) LineItemDuplicates(ctx context.Context) ([]core.DuplicateRow[core.LineItemKey], error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT li.assembly_id, li.product_code, li.required_quantity, li.collected_quantity, li.id, li.updated_at
		FROM line_items li
		JOIN (
			SELECT assembly_id, product_code, required_quantity, collected_quantity FROM line_items
			GROUP BY assembly_id, product_code, required_quantity, collected_quantity HAVING COUNT(*) > 1
		) d ON d.assembly_id = li.assembly_id AND d.product_code = li.product_code
			AND d.required_quantity = li.required_quantity AND d.collected_quantity = li.collected_quantity
		ORDER BY li.assembly_id, li.product_code, li.required_quantity, li.collected_quantity, li.id`)
	if err != nil {
		return nil, classify("product duplicates", err)
	}
	defer rows.Close()

	var out []core.DuplicateRow[core.LineItemKey]
	for rows.Next() {
		var r core.DuplicateRow[core.LineItemKey]
		if err := rows.Scan(
			&r.Key.AssemblyID, &r.Key.ProductCode, &r.Key.RequiredQuantity, &r.Key.CollectedQuantity,
			&r.ID, scanTime(&r.UpdatedAt),
		); err != nil {
			return nil, classify("scan product duplicate", err)
		}
		out = append(out, r)
	}
	return out, classify("product duplicates", rows.Err())
}

// ============================================================================
// Batch history
// ============================================================================

func (q *queries) InsertBatchRecord(ctx context.Context, rec core.BatchRecord) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ingest_batches (
			id, received_at, reported_at, declared_count, assemblies_received,
			assemblies_created, assemblies_updated, assemblies_skipped,
			items_created, items_updated, items_skipped, source_system, remote_addr, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, formatTime(rec.ReceivedAt), formatTime(rec.ReportedAt), rec.DeclaredCount, rec.AssembliesReceived,
		rec.AssembliesCreated, rec.AssembliesUpdated, rec.AssembliesSkipped,
		rec.ItemsCreated, rec.ItemsUpdated, rec.ItemsSkipped, rec.SourceSystem, rec.RemoteAddr, rec.DurationMs,
	)
	return classify("insert batch record", err)
}

func (q *queries) ListBatchRecords(ctx context.Context, limit int) ([]core.BatchRecord, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, received_at, reported_at, declared_count, assemblies_received,
			assemblies_created, assemblies_updated, assemblies_skipped,
			items_created, items_updated, items_skipped, source_system, remote_addr, duration_ms
		FROM ingest_batches ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify("list batch records", err)
	}
	defer rows.Close()

	var out []core.BatchRecord
	for rows.Next() {
		var r core.BatchRecord
		if err := rows.Scan(
			&r.ID, scanTime(&r.ReceivedAt), scanTime(&r.ReportedAt), &r.DeclaredCount, &r.AssembliesReceived,
			&r.AssembliesCreated, &r.AssembliesUpdated, &r.AssembliesSkipped,
			&r.ItemsCreated, &r.ItemsUpdated, &r.ItemsSkipped, &r.SourceSystem, &r.RemoteAddr, &r.DurationMs,
		); err != nil {
			return nil, classify("scan batch record", err)
		}
		out = append(out, r)
	}
	return out, classify("list batch records", rows.Err())
}

// ============================================================================
// Helpers
// ============================================================================

func (q *queries) deleteByIDs(ctx context.Context, table string, ids []int64) (int64, error) {
	var total int64
	for chunk := range chunks(ids, idChunkSize) {
		res, err := q.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE id IN (`+placeholders(len(chunk))+`)`,
			int64Args(chunk)...)
		if err != nil {
			return total, classify("delete from "+table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, classify("delete from "+table, err)
		}
		total += n
	}
	return total, nil
}

// chunks yields consecutive slices of ids of at most size elements.
func chunks(ids []int64, size int) func(yield func([]int64) bool) {
	return func(yield func([]int64) bool) {
		for start := 0; start < len(ids); start += size {
			if !yield(ids[start:min(start+size, len(ids))]) {
				return
			}
		}
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// escapeLike escapes LIKE wildcards in s using backslash.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
