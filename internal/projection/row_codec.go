package projection

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"kimberlite/internal/schema"
)

// DecodeRow parses the JSON row payload a MutateRow command appends to
// a table's backing stream into a typed Row, coercing every declared
// column to its DataType. Columns absent from the payload, or present
// as JSON null, decode to a NULL Value. An explicit JSON null on a
// non-nullable column is an error; an absent non-nullable column is
// not checked and decodes to NULL.
func DecodeRow(table *schema.TableMetadata, data []byte) (Row, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("projection: decode row for table %q: %w", table.Name, err)
	}

	row := make(Row, len(table.Columns))
	for _, col := range table.Columns {
		field, present := raw[col.Name]
		if !present || string(field) == "null" {
			if present && !col.Nullable {
				return nil, fmt.Errorf("projection: column %q is not nullable", col.Name)
			}
			row[col.Name] = Value{Type: col.Type, Null: true}
			continue
		}
		v, err := decodeValue(col.Type, field)
		if err != nil {
			return nil, fmt.Errorf("projection: column %q: %w", col.Name, err)
		}
		row[col.Name] = v
	}
	return row, nil
}

func decodeValue(t schema.DataType, raw json.RawMessage) (Value, error) {
	switch t {
	case schema.DataTypeInt64:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, err
		}
		return Value{Type: t, Int64: n}, nil
	case schema.DataTypeFloat64:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Value{}, err
		}
		return Value{Type: t, Float64: f}, nil
	case schema.DataTypeDecimal:
		var d struct {
			Mantissa int64 `json:"mantissa"`
			Scale    int32 `json:"scale"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return Value{}, err
		}
		return Value{Type: t, DecimalMantissa: d.Mantissa, DecimalScale: d.Scale}, nil
	case schema.DataTypeText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return Value{Type: t, Text: s}, nil
	case schema.DataTypeBytes:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("bytes column must be base64: %w", err)
		}
		return Value{Type: t, Bytes: decoded}, nil
	case schema.DataTypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return Value{Type: t, Bool: b}, nil
	case schema.DataTypeDate:
		var d int32
		if err := json.Unmarshal(raw, &d); err != nil {
			return Value{}, err
		}
		return Value{Type: t, Date: d}, nil
	case schema.DataTypeTime:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, err
		}
		return Value{Type: t, TimeOfDay: n}, nil
	case schema.DataTypeTimestamp:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, err
		}
		return Value{Type: t, Timestamp: n}, nil
	case schema.DataTypeUUID:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return Value{}, fmt.Errorf("invalid uuid: %w", err)
		}
		return Value{Type: t, UUID: id}, nil
	case schema.DataTypeJSON:
		return Value{Type: t, JSON: append([]byte(nil), raw...)}, nil
	default:
		return Value{}, fmt.Errorf("unsupported column type %s", t)
	}
}
