package query

import (
	"encoding/json"
	"fmt"

	"kimberlite/internal/schema"
)

// RowOp mirrors the op byte convention the kernel and projection
// packages already share for a table's backing-stream events; the
// query engine never appends to a stream itself, but CompileWrite
// reports which op the runtime should wrap into a kernel.MutateRow.
type RowOp byte

const (
	RowInsert RowOp = 0
	RowUpdate RowOp = 1
	RowDelete RowOp = 2
)

// WriteIntent is one row-level mutation CompileWrite produces: the
// runtime turns each into a kernel.MutateRow command.
type WriteIntent struct {
	Table *schema.TableMetadata
	Op    RowOp
	Row   []byte // JSON row payload, matching projection.DecodeRow's expected shape
}

// jsonEncodeValue renders a native scalar into the JSON shape
// projection.DecodeRow expects for colType.
func jsonEncodeValue(colType schema.DataType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch colType {
	case schema.DataTypeInt64, schema.DataTypeDate, schema.DataTypeTime, schema.DataTypeTimestamp:
		f, ok := asFloat(v)
		if !ok {
			return nil, &TypeMismatchError{Expected: "integer", Actual: fmt.Sprintf("%T", v)}
		}
		return int64(f), nil
	case schema.DataTypeFloat64:
		f, ok := asFloat(v)
		if !ok {
			return nil, &TypeMismatchError{Expected: "float", Actual: fmt.Sprintf("%T", v)}
		}
		return f, nil
	case schema.DataTypeText, schema.DataTypeBytes, schema.DataTypeUUID:
		s, ok := v.(string)
		if !ok {
			return nil, &TypeMismatchError{Expected: "text", Actual: fmt.Sprintf("%T", v)}
		}
		return s, nil
	case schema.DataTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, &TypeMismatchError{Expected: "boolean", Actual: fmt.Sprintf("%T", v)}
		}
		return b, nil
	case schema.DataTypeJSON:
		s, ok := v.(string)
		if !ok {
			return nil, &TypeMismatchError{Expected: "json text", Actual: fmt.Sprintf("%T", v)}
		}
		return json.RawMessage(s), nil
	case schema.DataTypeDecimal:
		return nil, &UnsupportedFeatureError{Msg: "decimal literals in INSERT/UPDATE"}
	default:
		return nil, &UnsupportedFeatureError{Msg: fmt.Sprintf("column type %s", colType)}
	}
}

// encodeFullRow renders values (keyed by column name, already resolved
// to native Go scalars) as the JSON payload a MutateRow command
// carries, validating nullability against table's declared columns.
func encodeFullRow(table *schema.TableMetadata, values map[string]any) ([]byte, error) {
	out := make(map[string]any, len(table.Columns))
	for _, col := range table.Columns {
		v, present := values[col.Name]
		if !present || v == nil {
			if present && !col.Nullable {
				return nil, &TypeMismatchError{Expected: col.Name + " NOT NULL", Actual: "NULL"}
			}
			out[col.Name] = nil
			continue
		}
		encoded, err := jsonEncodeValue(col.Type, v)
		if err != nil {
			return nil, err
		}
		out[col.Name] = encoded
	}
	return json.Marshal(out)
}
