// Package kernel implements the deterministic, side-effect-free state
// machine at the heart of a Kimberlite replica: apply(state, command)
// produces the next state and the effects the runtime must carry out.
// Nothing in this package touches the clock, performs I/O, or reads
// from a random source; every replica that applies the same commands
// in the same order reaches bit-identical state.
package kernel

import (
	"kimberlite/internal/collections"
	"kimberlite/internal/ids"
	"kimberlite/internal/schema"
)

// State is the kernel's entire catalog: every stream, table, and index
// Kimberlite knows about, plus the counters used to assign ids to
// auto-numbered streams, tables, and indexes. It is value-semantic:
// every mutation returns a new State, the old one is left untouched.
type State struct {
	Streams      *collections.OrderedMap[ids.StreamId, schema.StreamMetadata]
	NextStreamId uint32

	Tables         *collections.OrderedMap[ids.TableId, schema.TableMetadata]
	TableNameIndex *collections.OrderedMap[string, ids.TableId]
	NextTableId    uint64

	Indexes     *collections.OrderedMap[ids.IndexId, schema.IndexMetadata]
	NextIndexId uint64
}

// NewState returns the empty catalog a fresh replica starts from.
func NewState() *State {
	return &State{
		Streams:        collections.New[ids.StreamId, schema.StreamMetadata](lessStreamId),
		NextStreamId:   1,
		Tables:         collections.New[ids.TableId, schema.TableMetadata](lessTableId),
		TableNameIndex: collections.New[string, ids.TableId](lessString),
		NextTableId:    1,
		Indexes:        collections.New[ids.IndexId, schema.IndexMetadata](lessIndexId),
		NextIndexId:    1,
	}
}

func lessStreamId(a, b ids.StreamId) bool { return a < b }
func lessTableId(a, b ids.TableId) bool   { return a < b }
func lessIndexId(a, b ids.IndexId) bool   { return a < b }
func lessString(a, b string) bool         { return a < b }

func (s *State) withStreams(m *collections.OrderedMap[ids.StreamId, schema.StreamMetadata]) *State {
	next := *s
	next.Streams = m
	return &next
}

func (s *State) withIndexes(m *collections.OrderedMap[ids.IndexId, schema.IndexMetadata]) *State {
	next := *s
	next.Indexes = m
	return &next
}

func (s *State) withTables(
	tables *collections.OrderedMap[ids.TableId, schema.TableMetadata],
	nameIndex *collections.OrderedMap[string, ids.TableId],
) *State {
	next := *s
	next.Tables = tables
	next.TableNameIndex = nameIndex
	return &next
}

func (s *State) streamNameTaken(tenant ids.TenantId, name string) bool {
	taken := false
	s.Streams.Ascend(func(id ids.StreamId, meta schema.StreamMetadata) bool {
		if id.Tenant() == tenant && meta.StreamName == name {
			taken = true
			return false
		}
		return true
	})
	return taken
}
