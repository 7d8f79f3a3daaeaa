package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"kimberlite/internal/ids"
	"kimberlite/internal/projection"
	"kimberlite/internal/schema"
)

// Catalog resolves table and index metadata for the planner. The
// runtime layer adapts kernel.State to this interface: the query
// engine never reads or mutates kernel state directly, only the
// catalog shapes it needs to plan and decode rows.
type Catalog interface {
	Table(name string) (*schema.TableMetadata, bool)
	IndexesFor(tableId ids.TableId) []schema.IndexMetadata
}

// Engine is the pure planner plus executor: it
// compiles SQL text against a Catalog and runs it over a projection
// store or a point-in-time snapshot of one.
type Engine struct {
	parser  *Parser
	catalog Catalog
	store   *projection.Store

	clk      clock.Clock
	deadline time.Time
}

func NewEngine(catalog Catalog, store *projection.Store) *Engine {
	return &Engine{parser: NewParser(), catalog: catalog, store: store, clk: clock.New()}
}

// WithClock returns a copy of the engine reading time from clk instead
// of the wall clock. Tests pair this with WithDeadline and a mock clock
// to exercise timeouts without sleeping.
func (e *Engine) WithClock(clk clock.Clock) *Engine {
	next := *e
	next.clk = clk
	return &next
}

// WithDeadline returns a copy of the engine that fails any query still
// running at d with QueryTimeoutError. The zero time means no deadline.
func (e *Engine) WithDeadline(d time.Time) *Engine {
	next := *e
	next.deadline = d
	return &next
}

// checkDeadline is called between executor stages and while draining
// scans; it returns QueryTimeoutError once the deadline has passed.
func (e *Engine) checkDeadline() error {
	if e.deadline.IsZero() {
		return nil
	}
	if e.clk.Now().After(e.deadline) {
		return &QueryTimeoutError{Deadline: e.deadline}
	}
	return nil
}

// Parse compiles sql into its Statement shape without running or
// compiling it further. The runtime layer uses this to run preflight's
// destructive-operation check against the exact statement it will
// otherwise hand to CompileWrite/CompileDDL.
func (e *Engine) Parse(sql string) (Statement, error) {
	return e.parser.Parse(sql)
}

// Query runs sql against the engine's live store.
func (e *Engine) Query(sql string, params []any) ([]map[string]any, error) {
	stmt, err := e.parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		return nil, &UnsupportedFeatureError{Msg: "Query only accepts SELECT"}
	}
	return e.QueryStatement(sel, params)
}

// ParseSelect parses sql and returns the SELECT statement without
// running it. The runtime layer uses this to obtain an AST it can hand
// to a policy rewrite (RBAC column/row filtering) before execution,
// rather than patching SQL text back together and re-parsing it.
func (e *Engine) ParseSelect(sql string) (*SelectStmt, error) {
	stmt, err := e.parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		return nil, &UnsupportedFeatureError{Msg: "ParseSelect only accepts SELECT"}
	}
	return sel, nil
}

// QueryStatement runs an already-parsed (and possibly policy-rewritten)
// SELECT against the engine's live store. params are bound by position
// exactly as with Query; a policy rewrite that injects a row filter
// appends its own bound value to params rather than interpolating it
// into the statement text.
func (e *Engine) QueryStatement(sel *SelectStmt, params []any) ([]map[string]any, error) {
	return e.runSelect(sel, params, e.store)
}

// QueryAt runs sql against a snapshot of the store pinned at or before
// offset. UNION is rejected: two snapshots would be required to
// evaluate it consistently, which point-in-time queries do not do.
func (e *Engine) QueryAt(sql string, params []any, offset ids.Offset) ([]map[string]any, error) {
	stmt, err := e.parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		return nil, &UnsupportedFeatureError{Msg: "QueryAt only accepts SELECT"}
	}
	return e.QueryStatementAt(sel, params, offset)
}

// QueryStatementAt is the point-in-time counterpart to QueryStatement:
// it runs an already-parsed SELECT against a snapshot pinned at or
// before offset, so a policy-rewritten statement can still be served
// from history.
func (e *Engine) QueryStatementAt(sel *SelectStmt, params []any, offset ids.Offset) ([]map[string]any, error) {
	if sel.Union != nil {
		return nil, &UnsupportedFeatureError{Msg: "UNION is rejected for point-in-time queries"}
	}
	table, ok := e.catalog.Table(sel.Table)
	if !ok {
		return nil, ErrTableNotFound
	}
	snap, err := e.store.SnapshotAt(table.TableId, offset)
	if err != nil {
		return nil, err
	}
	return e.runSelect(sel, params, snap)
}

func (e *Engine) runSelect(sel *SelectStmt, params []any, reader rowReader) ([]map[string]any, error) {
	rows, err := e.execOne(sel, params, reader)
	if err != nil {
		return nil, err
	}
	if sel.Union == nil {
		return rows, nil
	}
	rest, err := e.runSelect(sel.Union, params, reader)
	if err != nil {
		return nil, err
	}
	if sel.UnionAll {
		return append(rows, rest...), nil
	}
	return dedupeRows(append(rows, rest...)), nil
}

func (e *Engine) execOne(sel *SelectStmt, params []any, reader rowReader) ([]map[string]any, error) {
	if err := e.checkDeadline(); err != nil {
		return nil, err
	}
	table, ok := e.catalog.Table(sel.Table)
	if !ok {
		return nil, ErrTableNotFound
	}
	indexes := e.catalog.IndexesFor(table.TableId)

	boundKey := func(cols []string, eqVals map[string]Expr) ([]byte, bool, error) {
		values := make([]projection.Value, len(cols))
		for i, col := range cols {
			expr, ok := eqVals[col]
			if !ok {
				return nil, false, nil
			}
			v, err := evalScalar(expr, nil, params)
			if err != nil {
				return nil, false, nil
			}
			cd, ok := table.FindColumn(col)
			if !ok {
				return nil, false, &ColumnNotFoundError{Table: table.Name, Column: col}
			}
			pv, err := toProjectionValue(cd.Type, v)
			if err != nil {
				return nil, false, nil
			}
			values[i] = pv
		}
		key, err := projection.EncodeKey(values)
		if err != nil {
			return nil, false, err
		}
		return key, true, nil
	}

	splan, err := planSelect(sel, table, indexes, boundKey)
	if err != nil {
		return nil, err
	}
	results, err := rowsFromPlan(splan, reader)
	if err != nil {
		return nil, err
	}
	if err := e.checkDeadline(); err != nil {
		return nil, err
	}

	var joined []map[string]any
	for _, r := range results {
		joined = append(joined, nativeRow(r.Row))
	}

	for _, j := range sel.Joins {
		joined, err = e.applyJoin(joined, j, reader)
		if err != nil {
			return nil, err
		}
		if err := e.checkDeadline(); err != nil {
			return nil, err
		}
	}

	if sel.Where != nil {
		filtered := joined[:0]
		for i, row := range joined {
			if i&1023 == 0 {
				if err := e.checkDeadline(); err != nil {
					return nil, err
				}
			}
			ok, err := evalPredicate(sel.Where, row, params)
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, row)
			}
		}
		joined = filtered
	}

	var out []map[string]any
	if len(sel.GroupBy) > 0 || hasAgg(sel.Items) {
		out, err = e.execAggregate(sel, joined, params)
		if err != nil {
			return nil, err
		}
	} else {
		for _, row := range joined {
			out = append(out, projectRow(sel.Items, row))
		}
	}

	if len(sel.OrderBy) > 0 {
		sortRows(out, sel.OrderBy)
	}
	if sel.Distinct {
		out = dedupeRows(out)
	}
	if sel.Limit != nil && int64(len(out)) > *sel.Limit {
		out = out[:*sel.Limit]
	}
	return out, nil
}

func (e *Engine) applyJoin(left []map[string]any, j Join, reader rowReader) ([]map[string]any, error) {
	table, ok := e.catalog.Table(j.Table)
	if !ok {
		return nil, ErrTableNotFound
	}
	var rightRows []map[string]any
	err := reader.Scan(table.TableId, nil, nil, false, 0, func(r projection.ScanResult) bool {
		rightRows = append(rightRows, nativeRow(r.Row))
		return true
	})
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for _, l := range left {
		matched := false
		lv, _ := lookupColumn(l, j.Left)
		for _, r := range rightRows {
			rv, _ := lookupColumn(r, j.Right)
			if cmp, ok := compareValues(lv, rv); ok && cmp == 0 {
				merged := make(map[string]any, len(l)+len(r))
				for k, v := range l {
					merged[k] = v
				}
				for k, v := range r {
					merged[k] = v
				}
				out = append(out, merged)
				matched = true
			}
		}
		if !matched && j.Kind == JoinLeft {
			merged := make(map[string]any, len(l))
			for k, v := range l {
				merged[k] = v
			}
			out = append(out, merged)
		}
	}
	return out, nil
}

func hasAgg(items []SelectItem) bool {
	for _, it := range items {
		if it.IsAgg {
			return true
		}
	}
	return false
}

func projectRow(items []SelectItem, row map[string]any) map[string]any {
	if len(items) == 1 && items[0].Star {
		return row
	}
	out := make(map[string]any, len(items))
	for _, it := range items {
		if it.Star {
			for k, v := range row {
				out[k] = v
			}
			continue
		}
		name := it.Alias
		if name == "" {
			name = it.Column.Name
		}
		v, _ := lookupColumn(row, it.Column)
		out[name] = v
	}
	return out
}

func sortRows(rows []map[string]any, terms []OrderTerm) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, t := range terms {
			a, _ := lookupColumn(rows[i], t.Column)
			b, _ := lookupColumn(rows[j], t.Column)
			cmp, ok := compareValues(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if t.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func dedupeRows(rows []map[string]any) []map[string]any {
	seen := map[string]bool{}
	var out []map[string]any
	for _, r := range rows {
		key := rowKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func rowKey(r map[string]any) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb []byte
	for _, k := range keys {
		sb = append(sb, k...)
		sb = append(sb, ':')
		sb = append(sb, []byte(formatAny(r[k]))...)
		sb = append(sb, '|')
	}
	return string(sb)
}

func formatAny(v any) string {
	if v == nil {
		return "<null>"
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
