package query

import (
	"kimberlite/internal/ids"
	"kimberlite/internal/projection"
	"kimberlite/internal/schema"
)

// PlanKind names the shapes the planner can choose between, in fixed
// priority order: primary-key lookup beats the
// narrowest available index range, which beats a full scan.
type PlanKind int

const (
	PlanPointLookup PlanKind = iota
	PlanRangeScan
	PlanIndexScan
	PlanTableScan
)

// ScanPlan is the leaf plan a SelectStmt compiles to before any
// aggregate wrapping.
type ScanPlan struct {
	Kind    PlanKind
	Table   *schema.TableMetadata
	Index   *schema.IndexMetadata
	Key     []byte // PointLookup
	From    []byte // RangeScan / IndexScan lower bound
	To      []byte // RangeScan upper bound
	Reverse bool
	Limit   int
}

// conjunct is one equality or range constraint the planner extracted
// from a flattened top-level AND chain in WHERE. OR predicates and
// anything beyond a simple column/param or column/literal comparison
// are never used for planning — they always fall through to the
// executor's residual filter, which re-evaluates the whole WHERE
// clause regardless of what the plan already narrowed.
type conjunct struct {
	column string
	op     CmpOp
	value  Expr
}

func flattenAnd(e Expr) []conjunct {
	var out []conjunct
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case BinaryExpr:
			if x.Op == OpAnd {
				walk(x.Left)
				walk(x.Right)
				return
			}
			if col, ok := x.Left.(ColumnRef); ok {
				out = append(out, conjunct{column: col.Name, op: x.Op, value: x.Right})
			}
		}
	}
	walk(e)
	return out
}

// planSelect chooses a ScanPlan for stmt against table, preferring a
// primary-key lookup, then the narrowest matching secondary index,
// then a full table scan.
func planSelect(stmt *SelectStmt, table *schema.TableMetadata, indexes []schema.IndexMetadata, boundKey func(cols []string, eqVals map[string]Expr) ([]byte, bool, error)) (ScanPlan, error) {
	// LIMIT pushes into the scan only when the scan already yields rows
	// in the requested order: no ORDER BY, or a single ORDER BY term on
	// the leading primary-key column. Otherwise the executor sorts and
	// limits after the fact, and truncating the scan early would drop
	// rows the sort should have surfaced.
	orderMatchesScan := len(stmt.OrderBy) == 0 ||
		(len(stmt.OrderBy) == 1 && len(table.PrimaryKey) > 0 && stmt.OrderBy[0].Column.Name == table.PrimaryKey[0])
	limit := 0
	if stmt.Limit != nil && orderMatchesScan {
		limit = int(*stmt.Limit)
	}
	reverse := false
	if orderMatchesScan && len(stmt.OrderBy) == 1 && stmt.OrderBy[0].Desc {
		reverse = true
	}

	if stmt.Where == nil {
		return ScanPlan{Kind: PlanTableScan, Table: table, Limit: limit, Reverse: reverse}, nil
	}
	// A residual WHERE filters rows after the scan, so a pushed-down
	// limit would truncate before filtering; the executor applies LIMIT
	// at the end regardless.
	limit = 0

	conjuncts := flattenAnd(stmt.Where)
	eqCols := map[string]bool{}
	eqVals := map[string]Expr{}
	for _, c := range conjuncts {
		if c.op == OpEQ {
			eqCols[c.column] = true
			eqVals[c.column] = c.value
		}
	}

	if len(table.PrimaryKey) > 0 {
		full := true
		for _, col := range table.PrimaryKey {
			if !eqCols[col] {
				full = false
				break
			}
		}
		if full {
			key, ok, err := boundKey(table.PrimaryKey, eqVals)
			if err != nil {
				return ScanPlan{}, err
			}
			if ok {
				return ScanPlan{Kind: PlanPointLookup, Table: table, Key: key}, nil
			}
		}
		if eqCols[table.PrimaryKey[0]] {
			from, ok, err := boundKey(table.PrimaryKey[:1], eqVals)
			if err != nil {
				return ScanPlan{}, err
			}
			if ok {
				return ScanPlan{Kind: PlanRangeScan, Table: table, From: from, To: prefixSuccessor(from), Limit: limit, Reverse: reverse}, nil
			}
		}
	}

	var best *schema.IndexMetadata
	for i := range indexes {
		idx := &indexes[i]
		covered := true
		for _, col := range idx.Columns {
			if !eqCols[col] {
				covered = false
				break
			}
		}
		if covered && (best == nil || len(idx.Columns) > len(best.Columns)) {
			best = idx
		}
	}
	if best != nil {
		key, ok, err := boundKey(best.Columns, eqVals)
		if err != nil {
			return ScanPlan{}, err
		}
		if ok {
			return ScanPlan{Kind: PlanIndexScan, Table: table, Index: best, From: key}, nil
		}
	}

	return ScanPlan{Kind: PlanTableScan, Table: table, Limit: limit, Reverse: reverse}, nil
}

// prefixSuccessor returns the smallest key strictly greater than every
// key having prefix as a prefix, for use as an exclusive scan upper
// bound. Returns nil (unbounded) when the prefix is all 0xFF bytes.
func prefixSuccessor(prefix []byte) []byte {
	out := append([]byte{}, prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

// rowsFromPlan executes a ScanPlan against a reader, yielding every row
// the plan selects without applying the residual filter, ORDER BY, or
// LIMIT — those are the executor's job once the full WHERE clause (not
// just the conjuncts the plan used) has been re-checked.
func rowsFromPlan(plan ScanPlan, reader rowReader) ([]projection.ScanResult, error) {
	var out []projection.ScanResult
	switch plan.Kind {
	case PlanPointLookup:
		row, ok, err := reader.Get(plan.Table.TableId, plan.Key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, projection.ScanResult{Key: string(plan.Key), Row: row})
		}
	case PlanRangeScan, PlanTableScan:
		var from, to []byte
		if plan.Kind == PlanRangeScan {
			from, to = plan.From, plan.To
		}
		err := reader.Scan(plan.Table.TableId, from, to, plan.Reverse, plan.Limit, func(r projection.ScanResult) bool {
			out = append(out, r)
			return true
		})
		if err != nil {
			return nil, err
		}
	case PlanIndexScan:
		ix, ok := reader.(indexReader)
		if !ok {
			return nil, &UnsupportedFeatureError{Msg: "index scan is not available on a point-in-time snapshot"}
		}
		keys, err := ix.ScanIndex(plan.Index.IndexId, plan.From)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			row, ok, err := reader.Get(plan.Table.TableId, []byte(k))
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, projection.ScanResult{Key: k, Row: row})
			}
		}
	}
	return out, nil
}

// rowReader is the subset of projection.Store and projection.Snapshot
// the executor needs; both types satisfy it structurally.
type rowReader interface {
	Get(tableId ids.TableId, key []byte) (projection.Row, bool, error)
	Scan(tableId ids.TableId, from, to []byte, reverse bool, limit int, fn func(projection.ScanResult) bool) error
}

// indexReader is implemented only by projection.Store: a point-in-time
// Snapshot has no index view, since the index itself is not versioned.
type indexReader interface {
	ScanIndex(indexId ids.IndexId, indexKey []byte) ([]string, error)
}
