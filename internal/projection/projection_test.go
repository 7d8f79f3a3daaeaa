package projection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/ids"
	"kimberlite/internal/schema"
)

func usersTable() schema.TableMetadata {
	return schema.TableMetadata{
		TableId: 1,
		Name:    "users",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.DataTypeInt64},
			{Name: "name", Type: schema.DataTypeText, Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}
}

func insertEvent(id int64, name string) []byte {
	return append([]byte{byte(RowInsert)}, []byte(fmt.Sprintf(`{"id":%d,"name":%q}`, id, name))...)
}

func deleteEvent(id int64) []byte {
	return append([]byte{byte(RowDelete)}, []byte(fmt.Sprintf(`{"id":%d}`, id))...)
}

func keyFor(t *testing.T, id int64) []byte {
	t.Helper()
	key, err := EncodeKey([]Value{{Type: schema.DataTypeInt64, Int64: id}})
	require.NoError(t, err)
	return key
}

func TestPointInTimeReadAcrossInsertsAndDelete(t *testing.T) {
	store := NewStore()
	table := usersTable()
	store.RegisterTable(table)

	require.NoError(t, store.ApplyRowAppend(table.TableId, ids.Offset(100), [][]byte{insertEvent(1, "Alice")}))
	require.NoError(t, store.ApplyRowAppend(table.TableId, ids.Offset(200), [][]byte{insertEvent(2, "Bob")}))
	require.NoError(t, store.ApplyRowAppend(table.TableId, ids.Offset(300), [][]byte{deleteEvent(1)}))

	collect := func(snap *Snapshot) []int64 {
		var ids []int64
		err := snap.Scan(table.TableId, nil, nil, false, 0, func(r ScanResult) bool {
			ids = append(ids, r.Row["id"].Int64)
			return true
		})
		require.NoError(t, err)
		return ids
	}

	snap150, err := store.SnapshotAt(table.TableId, 150)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, collect(snap150))

	snap250, err := store.SnapshotAt(table.TableId, 250)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, collect(snap250))

	snap350, err := store.SnapshotAt(table.TableId, 350)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, collect(snap350))
}

func TestSnapshotAtIsMonotonicInRowVisibility(t *testing.T) {
	store := NewStore()
	table := usersTable()
	store.RegisterTable(table)

	require.NoError(t, store.ApplyRowAppend(table.TableId, ids.Offset(0), [][]byte{insertEvent(1, "Alice")}))
	require.NoError(t, store.ApplyRowAppend(table.TableId, ids.Offset(1), [][]byte{insertEvent(2, "Bob")}))

	snapBefore, err := store.SnapshotAt(table.TableId, 0)
	require.NoError(t, err)
	snapAfter, err := store.SnapshotAt(table.TableId, 1)
	require.NoError(t, err)

	_, ok, err := snapBefore.Get(table.TableId, keyFor(t, 2))
	require.NoError(t, err)
	assert.False(t, ok, "row visible at offset 1 must not be visible at offset 0")

	row, ok, err := snapAfter.Get(table.TableId, keyFor(t, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Bob", row["name"].Text)
}

func TestGetReflectsLatestWriteWins(t *testing.T) {
	store := NewStore()
	table := usersTable()
	store.RegisterTable(table)

	require.NoError(t, store.ApplyRowAppend(table.TableId, ids.Offset(0), [][]byte{insertEvent(1, "Alice")}))
	require.NoError(t, store.ApplyRowAppend(table.TableId, ids.Offset(1), [][]byte{insertEvent(1, "Alicia")}))

	row, ok, err := store.Get(table.TableId, keyFor(t, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alicia", row["name"].Text)
}

func TestScanIndexTracksLiveRowsUnderASharedKey(t *testing.T) {
	store := NewStore()
	table := schema.TableMetadata{
		TableId: 1,
		Name:    "events",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.DataTypeInt64},
			{Name: "kind", Type: schema.DataTypeText},
		},
		PrimaryKey: []string{"id"},
	}
	store.RegisterTable(table)
	index := schema.IndexMetadata{IndexId: 1, Name: "by_kind", TableId: table.TableId, Columns: []string{"kind"}}
	require.NoError(t, store.RegisterIndex(index))

	event := func(id int64, kind string) []byte {
		return append([]byte{byte(RowInsert)}, []byte(fmt.Sprintf(`{"id":%d,"kind":%q}`, id, kind))...)
	}
	require.NoError(t, store.ApplyRowAppend(table.TableId, 0, [][]byte{event(1, "login")}))
	require.NoError(t, store.ApplyRowAppend(table.TableId, 1, [][]byte{event(2, "login")}))

	indexKey, err := EncodeKey([]Value{{Type: schema.DataTypeText, Text: "login"}})
	require.NoError(t, err)
	live, err := store.ScanIndex(index.IndexId, indexKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{string(keyFor(t, 1)), string(keyFor(t, 2))}, live)
}

func TestApplyRowAppendIsIdempotentAtOrBelowAppliedPosition(t *testing.T) {
	store := NewStore()
	table := usersTable()
	store.RegisterTable(table)

	require.NoError(t, store.ApplyRowAppend(table.TableId, 0, [][]byte{insertEvent(1, "Alice")}))
	applied, ok := store.AppliedPosition(table.TableId)
	require.True(t, ok)
	assert.Equal(t, ids.Offset(0), applied)

	require.NoError(t, store.ApplyRowAppend(table.TableId, 0, [][]byte{insertEvent(1, "Replayed")}))
	row, ok, err := store.Get(table.TableId, keyFor(t, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", row["name"].Text, "re-delivering an already-applied offset must not overwrite state")
}

func TestKeyEncodingPreservesIntegerAndFloatOrder(t *testing.T) {
	ints := []int64{-100, -1, 0, 1, 100}
	for i := 0; i < len(ints)-1; i++ {
		a, err := EncodeKey([]Value{{Type: schema.DataTypeInt64, Int64: ints[i]}})
		require.NoError(t, err)
		b, err := EncodeKey([]Value{{Type: schema.DataTypeInt64, Int64: ints[i+1]}})
		require.NoError(t, err)
		assert.Less(t, string(a), string(b))
	}

	floats := []float64{-1.5, -0.0, 0.0, 0.5, 10.25}
	for i := 0; i < len(floats)-1; i++ {
		a, err := EncodeKey([]Value{{Type: schema.DataTypeFloat64, Float64: floats[i]}})
		require.NoError(t, err)
		b, err := EncodeKey([]Value{{Type: schema.DataTypeFloat64, Float64: floats[i+1]}})
		require.NoError(t, err)
		assert.LessOrEqual(t, string(a), string(b))
	}
}

func TestKeyEncodingRejectsJSONColumn(t *testing.T) {
	_, err := EncodeKey([]Value{{Type: schema.DataTypeJSON, JSON: []byte(`{}`)}})
	assert.Error(t, err)
}

func TestNullSortsBeforeAnyPresentValueOfTheSameType(t *testing.T) {
	nullKey, err := EncodeKey([]Value{{Type: schema.DataTypeInt64, Null: true}})
	require.NoError(t, err)
	presentKey, err := EncodeKey([]Value{{Type: schema.DataTypeInt64, Int64: -100}})
	require.NoError(t, err)
	assert.Less(t, string(nullKey), string(presentKey))
}
