package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/ids"
)

func TestDataClassOrderingIsRestrictivenessOrder(t *testing.T) {
	assert.True(t, DataClassPHI.AtLeastAsRestrictiveAs(DataClassPublic))
	assert.True(t, DataClassPII.AtLeastAsRestrictiveAs(DataClassDeidentified))
	assert.False(t, DataClassPublic.AtLeastAsRestrictiveAs(DataClassPHI))
	assert.True(t, DataClassPCI.AtLeastAsRestrictiveAs(DataClassPCI))
}

func TestStreamMetadataValidateRejectsBadNames(t *testing.T) {
	m := StreamMetadata{StreamName: "Events", DataClass: DataClassPublic, Placement: GlobalPlacement()}
	assert.Error(t, m.Validate())

	m.StreamName = "events"
	assert.NoError(t, m.Validate())

	m.DataClass = DataClass(200)
	assert.Error(t, m.Validate())
}

func TestTableMetadataValidatePrimaryKeyMustExistAndBeKeyEligible(t *testing.T) {
	tbl := TableMetadata{
		Name: "accounts",
		Columns: []ColumnDef{
			{Name: "id", Type: DataTypeInt64},
			{Name: "profile", Type: DataTypeJSON},
		},
		PrimaryKey: []string{"id"},
	}
	require.NoError(t, tbl.Validate())

	tbl.PrimaryKey = []string{"missing"}
	assert.Error(t, tbl.Validate())

	tbl.PrimaryKey = []string{"profile"}
	assert.Error(t, tbl.Validate(), "JSON columns must never be key-eligible")

	tbl.PrimaryKey = []string{"id", "id"}
	assert.Error(t, tbl.Validate(), "repeated primary key columns are rejected")
}

func TestTableMetadataValidateRejectsDuplicateColumns(t *testing.T) {
	tbl := TableMetadata{
		Name: "widgets",
		Columns: []ColumnDef{
			{Name: "id", Type: DataTypeInt64},
			{Name: "id", Type: DataTypeInt64},
		},
		PrimaryKey: []string{"id"},
	}
	assert.Error(t, tbl.Validate())
}

func TestIndexMetadataValidateRequiresKeyEligibleColumns(t *testing.T) {
	tbl := &TableMetadata{
		Name: "events",
		Columns: []ColumnDef{
			{Name: "id", Type: DataTypeInt64},
			{Name: "payload", Type: DataTypeJSON},
		},
		PrimaryKey: []string{"id"},
	}
	idx := IndexMetadata{Name: "by_id", TableId: 1, Columns: []string{"id"}}
	assert.NoError(t, idx.Validate(tbl))

	idx.Columns = []string{"payload"}
	assert.Error(t, idx.Validate(tbl))

	idx.Columns = []string{"nope"}
	assert.Error(t, idx.Validate(tbl))

	assert.Error(t, idx.Validate(nil))
}

func TestAppendStreamMetadataIsDeterministicAndOrderSensitive(t *testing.T) {
	a := StreamMetadata{
		StreamId:      ids.NewStreamId(1, 1),
		StreamName:    "events",
		DataClass:     DataClassPHI,
		Placement:     RegionPlacement(Region{Tag: RegionUSEast1}),
		CurrentOffset: 3,
	}
	b := a
	b.CurrentOffset = 4

	encA := AppendStreamMetadata(nil, a)
	encA2 := AppendStreamMetadata(nil, a)
	encB := AppendStreamMetadata(nil, b)

	assert.Equal(t, encA, encA2)
	assert.NotEqual(t, encA, encB, "a semantic change must change the encoding")
}

func TestAppendPlacementDistinguishesGlobalFromCustomRegion(t *testing.T) {
	global := AppendPlacement(nil, GlobalPlacement())
	custom := AppendPlacement(nil, RegionPlacement(Region{Tag: RegionCustom, Name: "eu-central-2"}))
	named := AppendPlacement(nil, RegionPlacement(Region{Tag: RegionUSEast1}))

	assert.NotEqual(t, global, custom)
	assert.NotEqual(t, global, named)
	assert.NotEqual(t, custom, named)
}
