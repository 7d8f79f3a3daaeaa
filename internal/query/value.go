package query

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kimberlite/internal/projection"
	"kimberlite/internal/schema"
)

// toNative converts a stored projection.Value into the plain Go value
// the executor works with: nil for SQL NULL, otherwise the column's
// natural scalar type.
func toNative(v projection.Value) any {
	if v.Null {
		return nil
	}
	switch v.Type {
	case schema.DataTypeInt64, schema.DataTypeDate, schema.DataTypeTime, schema.DataTypeTimestamp:
		switch v.Type {
		case schema.DataTypeDate:
			return int64(v.Date)
		case schema.DataTypeTime:
			return v.TimeOfDay
		case schema.DataTypeTimestamp:
			return v.Timestamp
		default:
			return v.Int64
		}
	case schema.DataTypeFloat64:
		return v.Float64
	case schema.DataTypeDecimal:
		scale := 1.0
		for i := int32(0); i < v.DecimalScale; i++ {
			scale *= 10
		}
		return float64(v.DecimalMantissa) / scale
	case schema.DataTypeText:
		return v.Text
	case schema.DataTypeBytes:
		return v.Bytes
	case schema.DataTypeBoolean:
		return v.Bool
	case schema.DataTypeUUID:
		return v.UUID.String()
	case schema.DataTypeJSON:
		return string(v.JSON)
	default:
		return nil
	}
}

// nativeRow converts a full projection.Row into a plain map the
// executor and the caller-facing Query result operate on.
func nativeRow(row projection.Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = toNative(v)
	}
	return out
}

// toProjectionValue converts a native scalar (as produced by
// evalScalar from a literal or bound parameter) into the typed
// projection.Value a key encoding requires.
func toProjectionValue(t schema.DataType, v any) (projection.Value, error) {
	if v == nil {
		return projection.Value{Type: t, Null: true}, nil
	}
	switch t {
	case schema.DataTypeInt64, schema.DataTypeDate, schema.DataTypeTime, schema.DataTypeTimestamp:
		f, ok := asFloat(v)
		if !ok {
			return projection.Value{}, &TypeMismatchError{Expected: "integer", Actual: fmt.Sprintf("%T", v)}
		}
		switch t {
		case schema.DataTypeDate:
			return projection.Value{Type: t, Date: int32(f)}, nil
		case schema.DataTypeTime:
			return projection.Value{Type: t, TimeOfDay: int64(f)}, nil
		case schema.DataTypeTimestamp:
			return projection.Value{Type: t, Timestamp: int64(f)}, nil
		default:
			return projection.Value{Type: t, Int64: int64(f)}, nil
		}
	case schema.DataTypeFloat64:
		f, ok := asFloat(v)
		if !ok {
			return projection.Value{}, &TypeMismatchError{Expected: "float", Actual: fmt.Sprintf("%T", v)}
		}
		return projection.Value{Type: t, Float64: f}, nil
	case schema.DataTypeText, schema.DataTypeBytes:
		s, ok := v.(string)
		if !ok {
			return projection.Value{}, &TypeMismatchError{Expected: "text", Actual: fmt.Sprintf("%T", v)}
		}
		if t == schema.DataTypeBytes {
			return projection.Value{Type: t, Bytes: []byte(s)}, nil
		}
		return projection.Value{Type: t, Text: s}, nil
	case schema.DataTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return projection.Value{}, &TypeMismatchError{Expected: "boolean", Actual: fmt.Sprintf("%T", v)}
		}
		return projection.Value{Type: t, Bool: b}, nil
	case schema.DataTypeUUID:
		s, ok := v.(string)
		if !ok {
			return projection.Value{}, &TypeMismatchError{Expected: "uuid text", Actual: fmt.Sprintf("%T", v)}
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return projection.Value{}, &TypeMismatchError{Expected: "uuid", Actual: s}
		}
		return projection.Value{Type: t, UUID: id}, nil
	default:
		return projection.Value{}, &UnsupportedFeatureError{Msg: fmt.Sprintf("column type %s in a key position", t)}
	}
}

func lookupColumn(row map[string]any, ref ColumnRef) (any, bool) {
	v, ok := row[ref.Name]
	return v, ok
}

// evalScalar evaluates a ColumnRef/Param/Literal to a native value.
// Column lookups ignore ColumnRef.Table: joins merge rows into one flat
// map keyed by column name, so qualification is informational only
// (acceptable for a subset with no cross-table name collisions).
func evalScalar(e Expr, row map[string]any, params []any) (any, error) {
	switch x := e.(type) {
	case ColumnRef:
		v, ok := lookupColumn(row, x)
		if !ok {
			return nil, &ColumnNotFoundError{Column: x.Name}
		}
		return v, nil
	case Param:
		if x.Index < 1 || x.Index > len(params) {
			return nil, &ParameterNotFoundError{Index: x.Index}
		}
		return params[x.Index-1], nil
	case Literal:
		return x.Value, nil
	case AggCallExpr:
		v, ok := row[aggKey(x.Agg, x.Column)]
		if !ok {
			return nil, &UnsupportedFeatureError{Msg: "aggregate referenced outside GROUP BY/HAVING context"}
		}
		return v, nil
	default:
		return nil, &UnsupportedFeatureError{Msg: fmt.Sprintf("expression %T in scalar position", e)}
	}
}

// compareValues returns (-1, 0, 1) for a<b, a==b, a>b, or ok=false when
// either operand is NULL or the two are not comparable.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		if ab == bb {
			return 0, true
		}
		if !ab && bb {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// evalPredicate evaluates WHERE/HAVING boolean expressions under the
// SQL NULL semantics: a comparison against NULL filters the row
// rather than erroring, and NULL = NULL is false.
func evalPredicate(e Expr, row map[string]any, params []any) (bool, error) {
	switch x := e.(type) {
	case BinaryExpr:
		switch x.Op {
		case OpAnd:
			l, err := evalPredicate(x.Left, row, params)
			if err != nil {
				return false, err
			}
			if !l {
				return false, nil
			}
			return evalPredicate(x.Right, row, params)
		case OpOr:
			l, err := evalPredicate(x.Left, row, params)
			if err != nil {
				return false, err
			}
			if l {
				return true, nil
			}
			return evalPredicate(x.Right, row, params)
		default:
			lv, err := evalScalar(x.Left, row, params)
			if err != nil {
				return false, err
			}
			rv, err := evalScalar(x.Right, row, params)
			if err != nil {
				return false, err
			}
			cmp, ok := compareValues(lv, rv)
			if !ok {
				return false, nil
			}
			switch x.Op {
			case OpEQ:
				return cmp == 0, nil
			case OpNE:
				return cmp != 0, nil
			case OpLT:
				return cmp < 0, nil
			case OpLE:
				return cmp <= 0, nil
			case OpGT:
				return cmp > 0, nil
			case OpGE:
				return cmp >= 0, nil
			}
			return false, &UnsupportedFeatureError{Msg: "unknown comparison operator"}
		}

	case IsNullExpr:
		v, err := evalScalar(x.Operand, row, params)
		if err != nil {
			return false, err
		}
		if x.Not {
			return v != nil, nil
		}
		return v == nil, nil

	case InExpr:
		v, err := evalScalar(x.Operand, row, params)
		if err != nil {
			return false, err
		}
		if v == nil {
			return false, nil
		}
		for _, item := range x.List {
			iv, err := evalScalar(item, row, params)
			if err != nil {
				return false, err
			}
			if cmp, ok := compareValues(v, iv); ok && cmp == 0 {
				return true, nil
			}
		}
		return false, nil

	case LikeExpr:
		v, err := evalScalar(x.Operand, row, params)
		if err != nil {
			return false, err
		}
		p, err := evalScalar(x.Pattern, row, params)
		if err != nil {
			return false, err
		}
		if v == nil || p == nil {
			return false, nil
		}
		vs, ok1 := v.(string)
		ps, ok2 := p.(string)
		if !ok1 || !ok2 {
			return false, &TypeMismatchError{Expected: "text", Actual: "non-text"}
		}
		return likeMatch(vs, ps), nil

	default:
		return false, &UnsupportedFeatureError{Msg: fmt.Sprintf("expression %T in predicate position", e)}
	}
}

// likeMatch implements the LIKE subset: `%` matches any run of
// characters, `_` matches exactly one, and `\%`/`\_` are literal.
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '\\' && len(p) > 1 && (p[1] == '%' || p[1] == '_') {
		if len(s) == 0 || s[0] != p[1] {
			return false
		}
		return likeMatchRunes(s[1:], p[2:])
	}
	switch p[0] {
	case '%':
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatchRunes(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}
