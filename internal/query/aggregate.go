package query

import (
	"sort"
)

// aggKey gives a stable synthetic row key an AggCallExpr resolves
// against once a group's aggregates have been computed; it also names
// the output column when a SelectItem doesn't carry an explicit alias.
func aggKey(fn AggFunc, col ColumnRef) string {
	switch fn {
	case AggCountStar:
		return "count(*)"
	case AggCount:
		return "count(" + col.Name + ")"
	case AggSum:
		return "sum(" + col.Name + ")"
	case AggAvg:
		return "avg(" + col.Name + ")"
	case AggMin:
		return "min(" + col.Name + ")"
	case AggMax:
		return "max(" + col.Name + ")"
	default:
		return "agg(" + col.Name + ")"
	}
}

type aggAccumulator struct {
	count    int64
	sum      float64
	min, max any
	haveMM   bool
}

type group struct {
	row  map[string]any // representative row, for GROUP BY columns and plain projections
	accs map[string]*aggAccumulator
	rows int64
}

func groupRowKey(row map[string]any, cols []ColumnRef) string {
	var sb []byte
	for _, c := range cols {
		v, _ := lookupColumn(row, c)
		sb = append(sb, formatAny(v)...)
		sb = append(sb, '\x00')
	}
	return string(sb)
}

// collectAggCalls walks an expression tree for every AggCallExpr it
// contains, so HAVING can reference aggregates beyond what the SELECT
// list itself projects.
func collectAggCalls(e Expr, out map[string]AggCallExpr) {
	switch x := e.(type) {
	case nil:
		return
	case BinaryExpr:
		collectAggCalls(x.Left, out)
		collectAggCalls(x.Right, out)
	case IsNullExpr:
		collectAggCalls(x.Operand, out)
	case InExpr:
		collectAggCalls(x.Operand, out)
		for _, v := range x.List {
			collectAggCalls(v, out)
		}
	case LikeExpr:
		collectAggCalls(x.Operand, out)
		collectAggCalls(x.Pattern, out)
	case AggCallExpr:
		out[aggKey(x.Agg, x.Column)] = x
	}
}

func (e *Engine) execAggregate(sel *SelectStmt, rows []map[string]any, params []any) ([]map[string]any, error) {
	needed := map[string]AggCallExpr{}
	for _, it := range sel.Items {
		if it.IsAgg {
			needed[aggKey(it.Agg, it.Column)] = AggCallExpr{Agg: it.Agg, Column: it.Column}
		}
	}
	collectAggCalls(sel.Having, needed)

	order := []string{}
	groups := map[string]*group{}
	for _, row := range rows {
		key := groupRowKey(row, sel.GroupBy)
		g, ok := groups[key]
		if !ok {
			g = &group{row: row, accs: map[string]*aggAccumulator{}}
			for k := range needed {
				g.accs[k] = &aggAccumulator{}
			}
			groups[key] = g
			order = append(order, key)
		}
		g.rows++
		for k, call := range needed {
			acc := g.accs[k]
			if call.Agg == AggCountStar {
				acc.count++
				continue
			}
			v, ok := lookupColumn(row, call.Column)
			if !ok || v == nil {
				continue
			}
			acc.count++
			if f, ok := asFloat(v); ok {
				acc.sum += f
			}
			if !acc.haveMM {
				acc.min, acc.max = v, v
				acc.haveMM = true
			} else {
				if cmp, ok := compareValues(v, acc.min); ok && cmp < 0 {
					acc.min = v
				}
				if cmp, ok := compareValues(v, acc.max); ok && cmp > 0 {
					acc.max = v
				}
			}
		}
	}

	sort.Strings(order)

	var out []map[string]any
	for _, key := range order {
		g := groups[key]
		resolved := map[string]any{}
		for k, call := range needed {
			acc := g.accs[k]
			switch call.Agg {
			case AggCountStar, AggCount:
				resolved[k] = acc.count
			case AggSum:
				resolved[k] = acc.sum
			case AggAvg:
				if acc.count == 0 {
					resolved[k] = nil
				} else {
					resolved[k] = acc.sum / float64(acc.count)
				}
			case AggMin:
				resolved[k] = acc.min
			case AggMax:
				resolved[k] = acc.max
			}
		}

		if sel.Having != nil {
			ok, err := evalPredicate(sel.Having, resolved, params)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		outRow := map[string]any{}
		for _, it := range sel.Items {
			if it.Star {
				return nil, &UnsupportedFeatureError{Msg: "SELECT * with GROUP BY/aggregates"}
			}
			name := it.Alias
			if it.IsAgg {
				if name == "" {
					name = aggKey(it.Agg, it.Column)
				}
				outRow[name] = resolved[aggKey(it.Agg, it.Column)]
				continue
			}
			if name == "" {
				name = it.Column.Name
			}
			v, _ := lookupColumn(g.row, it.Column)
			outRow[name] = v
		}
		out = append(out, outRow)
	}
	return out, nil
}
