package kernel

import (
	"kimberlite/internal/cryptoprim"
	"kimberlite/internal/ids"
	"kimberlite/internal/schema"
)

// ComputeStateHash folds state's catalog into one deterministic
// fingerprint, in a fixed order: streams sorted by id, tables sorted
// by id, the table-name index sorted by name, then indexes sorted by
// id. The next-id counters are not folded in. Two states built from the same set of commands in different
// orders hash equal only if they carry identical content; since
// auto-assigned ids depend on application order, reordering
// id-assigning commands almost always changes the hash too.
func ComputeStateHash(state *State) cryptoprim.Hash32 {
	var buf []byte

	buf = schema.AppendUint32(buf, uint32(state.Streams.Len()))
	state.Streams.Ascend(func(_ ids.StreamId, meta schema.StreamMetadata) bool {
		buf = schema.AppendStreamMetadata(buf, meta)
		return true
	})

	buf = schema.AppendUint32(buf, uint32(state.Tables.Len()))
	state.Tables.Ascend(func(_ ids.TableId, table schema.TableMetadata) bool {
		buf = schema.AppendTableMetadata(buf, table)
		return true
	})

	buf = schema.AppendUint32(buf, uint32(state.TableNameIndex.Len()))
	state.TableNameIndex.Ascend(func(name string, id ids.TableId) bool {
		buf = schema.AppendString(buf, name)
		buf = schema.AppendUint64(buf, uint64(id))
		return true
	})

	buf = schema.AppendUint32(buf, uint32(state.Indexes.Len()))
	state.Indexes.Ascend(func(_ ids.IndexId, idx schema.IndexMetadata) bool {
		buf = schema.AppendIndexMetadata(buf, idx)
		return true
	})

	return cryptoprim.HashBytes(buf)
}
