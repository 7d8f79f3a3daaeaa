package projection

import (
	"encoding/binary"
	"fmt"
	"math"

	"kimberlite/internal/schema"
)

// The integer, float, boolean, date, time, timestamp and UUID key
// encodings below are order-preserving: comparing two encoded byte
// strings with bytes.Compare gives the same answer as comparing the
// original typed values. Decimals are encoded as their scale followed
// by their mantissa, so they compare by scale first. Text and bytes
// are encoded as a length prefix followed by the raw bytes, so they
// compare by length first and bytewise only among equal lengths.
// Composite keys are built by concatenating per-column encodings in
// column order.

func flipInt64(v int64) uint64 {
	return uint64(v) ^ 0x8000000000000000
}

func flipInt32(v int32) uint32 {
	return uint32(v) ^ 0x80000000
}

// flipFloat64 applies the standard IEEE-754 sign-flip trick: for
// non-negative floats it flips only the sign bit, for negative floats
// it flips every bit. This turns the bit pattern's natural unsigned
// order into the float's numeric total order, with negative zero
// sorting immediately before positive zero and NaN landing at a stable,
// if not numerically meaningful, position.
func flipFloat64(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&0x8000000000000000 != 0 {
		return ^bits
	}
	return bits ^ 0x8000000000000000
}

// AppendKeyColumn appends the order-preserving encoding of v to buf: a
// type tag byte, a presence byte (0 = NULL, sorts first; 1 = present),
// then a type-specific payload. JSON may never appear in a key.
func AppendKeyColumn(buf []byte, v Value) ([]byte, error) {
	buf = append(buf, byte(v.Type))
	if v.Null {
		return append(buf, 0), nil
	}
	buf = append(buf, 1)

	switch v.Type {
	case schema.DataTypeInt64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], flipInt64(v.Int64))
		buf = append(buf, tmp[:]...)
	case schema.DataTypeFloat64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], flipFloat64(v.Float64))
		buf = append(buf, tmp[:]...)
	case schema.DataTypeDecimal:
		buf = append(buf, byte(v.DecimalScale))
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], flipInt64(v.DecimalMantissa))
		buf = append(buf, tmp[:]...)
	case schema.DataTypeText:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(len(v.Text)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, v.Text...)
	case schema.DataTypeBytes:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(len(v.Bytes)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, v.Bytes...)
	case schema.DataTypeBoolean:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case schema.DataTypeDate:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], flipInt32(v.Date))
		buf = append(buf, tmp[:]...)
	case schema.DataTypeTime:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], flipInt64(v.TimeOfDay))
		buf = append(buf, tmp[:]...)
	case schema.DataTypeTimestamp:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], flipInt64(v.Timestamp))
		buf = append(buf, tmp[:]...)
	case schema.DataTypeUUID:
		raw, err := v.UUID.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("projection: marshal uuid key: %w", err)
		}
		buf = append(buf, raw...)
	case schema.DataTypeJSON:
		return nil, fmt.Errorf("projection: JSON is not a permitted key component")
	default:
		return nil, fmt.Errorf("projection: unrecognized key column type %s", v.Type)
	}
	return buf, nil
}

// EncodeKey concatenates the per-column encodings of values, in order,
// into one composite key.
func EncodeKey(values []Value) ([]byte, error) {
	var buf []byte
	var err error
	for _, v := range values {
		buf, err = AppendKeyColumn(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}
