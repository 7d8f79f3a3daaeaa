package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/ids"
	"kimberlite/internal/schema"
)

const tenant ids.TenantId = 1

func countEffects[T Effect](effects []Effect) int {
	n := 0
	for _, e := range effects {
		if _, ok := e.(T); ok {
			n++
		}
	}
	return n
}

func TestCreateStreamThenAppendBatchProducesExpectedEffects(t *testing.T) {
	state := NewState()

	streamId := ids.NewStreamId(tenant, 1)
	state, createEffects, err := Apply(state, tenant, CreateStream{
		StreamId:  streamId,
		Name:      "events",
		DataClass: schema.DataClassPublic,
		Placement: schema.GlobalPlacement(),
	})
	require.NoError(t, err)

	state, appendEffects, err := Apply(state, tenant, AppendBatch{
		StreamId:       streamId,
		Events:         [][]byte{[]byte("e1"), []byte("e2"), []byte("e3")},
		ExpectedOffset: ids.ZeroOffset,
	})
	require.NoError(t, err)

	all := append(append([]Effect{}, createEffects...), appendEffects...)
	assert.Equal(t, 1, countEffects[StreamMetadataWrite](all))
	assert.Equal(t, 1, countEffects[StorageAppend](all))
	assert.Equal(t, 1, countEffects[WakeProjection](all))
	assert.Equal(t, 2, countEffects[AuditLogAppend](all))

	for _, e := range all {
		if sa, ok := e.(StorageAppend); ok {
			assert.Equal(t, streamId, sa.StreamId)
			assert.Equal(t, ids.ZeroOffset, sa.Base)
			assert.Equal(t, [][]byte{[]byte("e1"), []byte("e2"), []byte("e3")}, sa.Events)
		}
		if wp, ok := e.(WakeProjection); ok {
			assert.Equal(t, ids.Offset(0), wp.From)
			assert.Equal(t, ids.Offset(3), wp.To)
		}
	}

	meta, ok := state.Streams.Get(streamId)
	require.True(t, ok)
	assert.Equal(t, ids.Offset(3), meta.CurrentOffset)
}

func TestAppendBatchRejectsStaleExpectedOffsetWithoutEffect(t *testing.T) {
	state := NewState()
	streamId := ids.NewStreamId(tenant, 1)
	state, _, err := Apply(state, tenant, CreateStream{
		StreamId:  streamId,
		Name:      "events",
		DataClass: schema.DataClassPublic,
		Placement: schema.GlobalPlacement(),
	})
	require.NoError(t, err)

	state, _, err = Apply(state, tenant, AppendBatch{
		StreamId:       streamId,
		Events:         [][]byte{[]byte("e1"), []byte("e2"), []byte("e3")},
		ExpectedOffset: ids.ZeroOffset,
	})
	require.NoError(t, err)

	before := state
	after, effects, err := Apply(state, tenant, AppendBatch{
		StreamId:       streamId,
		Events:         [][]byte{[]byte("e4")},
		ExpectedOffset: ids.Offset(2),
	})
	var offsetErr *UnexpectedStreamOffsetError
	require.True(t, errors.As(err, &offsetErr))
	assert.Equal(t, uint64(2), offsetErr.Expected)
	assert.Equal(t, uint64(3), offsetErr.Actual)
	assert.Nil(t, after)
	assert.Nil(t, effects)

	meta, ok := before.Streams.Get(streamId)
	require.True(t, ok)
	assert.Equal(t, ids.Offset(3), meta.CurrentOffset, "rejected command must not advance the stream offset")
}

func TestStateHashIsDeterministicForIdenticalCommandOrder(t *testing.T) {
	build := func() *State {
		state := NewState()
		state, _, err := Apply(state, tenant, CreateStreamWithAutoId{
			Name: "alice", DataClass: schema.DataClassPII, Placement: schema.GlobalPlacement(),
		})
		require.NoError(t, err)
		state, _, err = Apply(state, tenant, CreateStreamWithAutoId{
			Name: "bob", DataClass: schema.DataClassPII, Placement: schema.GlobalPlacement(),
		})
		require.NoError(t, err)
		return state
	}

	a := ComputeStateHash(build())
	b := ComputeStateHash(build())
	assert.Equal(t, a, b)
}

func TestStateHashDiffersWhenAutoIdAssignmentOrderReverses(t *testing.T) {
	forward := NewState()
	forward, _, err := Apply(forward, tenant, CreateStreamWithAutoId{Name: "alice", Placement: schema.GlobalPlacement()})
	require.NoError(t, err)
	forward, _, err = Apply(forward, tenant, CreateStreamWithAutoId{Name: "bob", Placement: schema.GlobalPlacement()})
	require.NoError(t, err)

	reversed := NewState()
	reversed, _, err = Apply(reversed, tenant, CreateStreamWithAutoId{Name: "bob", Placement: schema.GlobalPlacement()})
	require.NoError(t, err)
	reversed, _, err = Apply(reversed, tenant, CreateStreamWithAutoId{Name: "alice", Placement: schema.GlobalPlacement()})
	require.NoError(t, err)

	assert.NotEqual(t, ComputeStateHash(forward), ComputeStateHash(reversed),
		"whichever name is applied first gets the lower auto-assigned id, so the two catalogs differ in content")
}

func TestCreateTableAtomicallyCreatesBackingStream(t *testing.T) {
	state := NewState()
	state, effects, err := Apply(state, tenant, CreateTable{
		TableId: 1,
		Name:    "accounts",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.DataTypeInt64},
			{Name: "balance", Type: schema.DataTypeDecimal},
		},
		PrimaryKey: []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countEffects[StreamMetadataWrite](effects))
	assert.Equal(t, 1, countEffects[TableMetadataWrite](effects))
	assert.Equal(t, 1, countEffects[AuditLogAppend](effects))

	table, ok := state.Tables.Get(1)
	require.True(t, ok)
	assert.Equal(t, schema.BackingStreamName("accounts"), func() string {
		meta, _ := state.Streams.Get(table.StreamId)
		return meta.StreamName
	}())
}

func TestDropTableCascadesIndexesButKeepsBackingStream(t *testing.T) {
	state := NewState()
	state, _, err := Apply(state, tenant, CreateTable{
		TableId: 1,
		Name:    "accounts",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.DataTypeInt64},
		},
		PrimaryKey: []string{"id"},
	})
	require.NoError(t, err)
	tableBefore, _ := state.Tables.Get(1)

	state, _, err = Apply(state, tenant, CreateIndex{
		IndexId: 1, TableId: 1, Name: "by_id", Columns: []string{"id"},
	})
	require.NoError(t, err)

	state, effects, err := Apply(state, tenant, DropTable{TableId: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, countEffects[TableMetadataDrop](effects))
	assert.Equal(t, 1, countEffects[AuditLogAppend](effects))

	_, ok := state.Tables.Get(1)
	assert.False(t, ok)
	_, ok = state.Indexes.Get(1)
	assert.False(t, ok, "indexes over a dropped table must not dangle")
	_, ok = state.Streams.Get(tableBefore.StreamId)
	assert.True(t, ok, "the backing stream must survive a DropTable")
}

func TestMutateRowAppendsToBackingStreamAndUpdatesProjection(t *testing.T) {
	state := NewState()
	state, _, err := Apply(state, tenant, CreateTable{
		TableId: 1,
		Name:    "widgets",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.DataTypeInt64},
		},
		PrimaryKey: []string{"id"},
	})
	require.NoError(t, err)

	state, effects, err := Apply(state, tenant, MutateRow{
		TableId: 1, Op: RowInsert, RowData: []byte(`{"id":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countEffects[StorageAppend](effects))
	assert.Equal(t, 1, countEffects[UpdateProjection](effects))
	assert.Equal(t, 1, countEffects[AuditLogAppend](effects))

	for _, e := range effects {
		if up, ok := e.(UpdateProjection); ok {
			assert.Equal(t, ids.Offset(0), up.From)
			assert.Equal(t, ids.Offset(1), up.To)
		}
	}
}

func TestCreateStreamRejectsDuplicateIdAndName(t *testing.T) {
	state := NewState()
	streamId := ids.NewStreamId(tenant, 1)
	state, _, err := Apply(state, tenant, CreateStream{
		StreamId: streamId, Name: "events", Placement: schema.GlobalPlacement(),
	})
	require.NoError(t, err)

	_, _, err = Apply(state, tenant, CreateStream{
		StreamId: streamId, Name: "other", Placement: schema.GlobalPlacement(),
	})
	assert.ErrorIs(t, err, ErrStreamIdExists)

	_, _, err = Apply(state, tenant, CreateStream{
		StreamId: ids.NewStreamId(tenant, 2), Name: "events", Placement: schema.GlobalPlacement(),
	})
	assert.ErrorIs(t, err, ErrStreamNameExists)
}

func TestCreateIndexRejectsUnknownTableAndNonKeyEligibleColumn(t *testing.T) {
	state := NewState()
	_, _, err := Apply(state, tenant, CreateIndex{IndexId: 1, TableId: 99, Name: "idx", Columns: []string{"id"}})
	assert.ErrorIs(t, err, ErrTableNotFound)

	state, _, err = Apply(state, tenant, CreateTable{
		TableId: 1,
		Name:    "events",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.DataTypeInt64},
			{Name: "payload", Type: schema.DataTypeJSON},
		},
		PrimaryKey: []string{"id"},
	})
	require.NoError(t, err)

	_, _, err = Apply(state, tenant, CreateIndex{IndexId: 1, TableId: 1, Name: "by_payload", Columns: []string{"payload"}})
	assert.Error(t, err, "JSON columns must never be index-eligible")
}
