package schema

import "encoding/binary"

// The Append* helpers below build the fixed-order, type-tagged byte
// encoding that feeds kernel.ComputeStateHash. Every encoding is
// self-delimiting (fixed width or length-prefixed) so concatenation
// never creates ambiguity between adjacent fields.

func AppendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func AppendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func AppendByte(buf []byte, v byte) []byte {
	return append(buf, v)
}

func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// AppendString length-prefixes s with a little-endian u32 length so the
// next field can never be mistaken for trailing string bytes.
func AppendString(buf []byte, s string) []byte {
	buf = AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// AppendRegion encodes a Region as its tag byte followed by its name
// (empty for the fixed named regions).
func AppendRegion(buf []byte, r Region) []byte {
	buf = AppendByte(buf, byte(r.Tag))
	if r.Tag == RegionCustom {
		buf = AppendString(buf, r.Name)
	}
	return buf
}

// AppendPlacement encodes a Placement as its kind tag followed by its
// Region when the kind is PlacementRegion.
func AppendPlacement(buf []byte, p Placement) []byte {
	buf = AppendByte(buf, byte(p.Kind))
	if p.Kind == PlacementRegion {
		buf = AppendRegion(buf, p.Region)
	}
	return buf
}

// AppendStreamMetadata encodes every StreamMetadata field in
// declaration order: stream_id, stream_name, data_class, placement,
// current_offset.
func AppendStreamMetadata(buf []byte, m StreamMetadata) []byte {
	buf = AppendUint64(buf, uint64(m.StreamId))
	buf = AppendString(buf, m.StreamName)
	buf = AppendByte(buf, byte(m.DataClass))
	buf = AppendPlacement(buf, m.Placement)
	buf = AppendUint64(buf, uint64(m.CurrentOffset))
	return buf
}

// AppendColumnDef encodes a column's name, type tag, and nullability.
func AppendColumnDef(buf []byte, c ColumnDef) []byte {
	buf = AppendString(buf, c.Name)
	buf = AppendByte(buf, byte(c.Type))
	buf = AppendBool(buf, c.Nullable)
	return buf
}

// AppendTableMetadata encodes every TableMetadata field in declaration
// order: table_id, name, columns, primary_key, stream_id.
func AppendTableMetadata(buf []byte, t TableMetadata) []byte {
	buf = AppendUint64(buf, uint64(t.TableId))
	buf = AppendString(buf, t.Name)
	buf = AppendUint32(buf, uint32(len(t.Columns)))
	for _, c := range t.Columns {
		buf = AppendColumnDef(buf, c)
	}
	buf = AppendUint32(buf, uint32(len(t.PrimaryKey)))
	for _, pk := range t.PrimaryKey {
		buf = AppendString(buf, pk)
	}
	buf = AppendUint64(buf, uint64(t.StreamId))
	return buf
}

// AppendIndexMetadata encodes every IndexMetadata field in declaration
// order: index_id, name, table_id, columns.
func AppendIndexMetadata(buf []byte, idx IndexMetadata) []byte {
	buf = AppendUint64(buf, uint64(idx.IndexId))
	buf = AppendString(buf, idx.Name)
	buf = AppendUint64(buf, uint64(idx.TableId))
	buf = AppendUint32(buf, uint32(len(idx.Columns)))
	for _, col := range idx.Columns {
		buf = AppendString(buf, col)
	}
	return buf
}
