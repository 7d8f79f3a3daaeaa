// Package projection implements the persistent, ordered, MVCC
// key-value store that materializes table rows and secondary indexes
// from the committed record log. It is a pure consumer of kernel
// effects: apply() decodes and writes, everything else only reads.
package projection

import (
	"github.com/google/uuid"

	"kimberlite/internal/schema"
)

// Value is a single typed column value. Exactly one payload field is
// meaningful, selected by Type; Null overrides all of them.
type Value struct {
	Type   schema.DataType
	Null   bool
	Int64  int64
	Float64         float64
	DecimalMantissa int64
	DecimalScale    int32
	Text            string
	Bytes           []byte
	Bool            bool
	Date            int32 // days since the Unix epoch
	TimeOfDay       int64 // nanoseconds since midnight
	Timestamp       int64 // nanoseconds since the Unix epoch
	UUID            uuid.UUID
	JSON            []byte
}

// Row is a decoded table row keyed by column name.
type Row map[string]Value

// ColumnValues projects row onto cols, in the given order, for key
// encoding or comparison.
func ColumnValues(row Row, cols []string) []Value {
	values := make([]Value, len(cols))
	for i, c := range cols {
		values[i] = row[c]
	}
	return values
}

// Clone returns a shallow copy of row; since Value is itself copied by
// value (its slice/array fields are never mutated in place after
// decode), this is sufficient to let callers hold an independent
// version without aliasing the original map.
func (r Row) Clone() Row {
	next := make(Row, len(r))
	for k, v := range r {
		next[k] = v
	}
	return next
}
