package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/schema"
)

func table(cols ...schema.ColumnDef) *schema.TableMetadata {
	return &schema.TableMetadata{TableId: 1, Name: "patients", Columns: cols, PrimaryKey: []string{"id"}}
}

func TestDiffAddsAndDropsColumns(t *testing.T) {
	current := table(
		schema.ColumnDef{Name: "id", Type: schema.DataTypeUUID},
		schema.ColumnDef{Name: "legacy_flag", Type: schema.DataTypeBoolean, Nullable: true},
	)
	desired := table(
		schema.ColumnDef{Name: "id", Type: schema.DataTypeUUID},
		schema.ColumnDef{Name: "mrn", Type: schema.DataTypeText, Nullable: true},
	)

	plan, err := Diff(current, desired)
	require.NoError(t, err)
	assert.Equal(t, []string{"mrn"}, plan.AddedNames)
	assert.Equal(t, []string{"legacy_flag"}, plan.DroppedNames)

	cmd := plan.Command()
	assert.Equal(t, current.TableId, cmd.TableId)
	require.Len(t, cmd.AddColumns, 1)
	assert.Equal(t, "mrn", cmd.AddColumns[0].Name)
	assert.Equal(t, []string{"legacy_flag"}, cmd.DropColumns)
}

func TestDiffNoChangesReportsClean(t *testing.T) {
	tbl := table(schema.ColumnDef{Name: "id", Type: schema.DataTypeUUID})
	plan, err := Diff(tbl, tbl)
	require.NoError(t, err)
	assert.Empty(t, plan.AddedNames)
	assert.Empty(t, plan.DroppedNames)
	assert.Equal(t, "no changes", plan.String())
}

func TestDiffRejectsPrimaryKeyChange(t *testing.T) {
	current := table(schema.ColumnDef{Name: "id", Type: schema.DataTypeUUID})
	desired := &schema.TableMetadata{
		TableId:    1,
		Name:       "patients",
		Columns:    current.Columns,
		PrimaryKey: []string{"mrn"},
	}
	_, err := Diff(current, desired)
	assert.Error(t, err)
}

func TestDiffRejectsInPlaceTypeChange(t *testing.T) {
	current := table(schema.ColumnDef{Name: "id", Type: schema.DataTypeUUID})
	desired := table(schema.ColumnDef{Name: "id", Type: schema.DataTypeText})
	_, err := Diff(current, desired)
	assert.Error(t, err)
}

func TestPlanStringAndRollbackRenderChanges(t *testing.T) {
	current := table(schema.ColumnDef{Name: "id", Type: schema.DataTypeUUID})
	desired := table(
		schema.ColumnDef{Name: "id", Type: schema.DataTypeUUID},
		schema.ColumnDef{Name: "mrn", Type: schema.DataTypeText, Nullable: true},
	)
	plan, err := Diff(current, desired)
	require.NoError(t, err)
	assert.Contains(t, plan.String(), "add column mrn")
	assert.Contains(t, plan.Rollback(), "drop column mrn")
}
