package schemaload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/kernel"
	"kimberlite/internal/schema"
)

const doc = `
[[tables]]
name = "patients"
primary_key = ["id"]

  [[tables.columns]]
  name = "id"
  type = "uuid"

  [[tables.columns]]
  name = "mrn"
  type = "text"

  [[tables.indexes]]
  name = "by_mrn"
  columns = ["mrn"]

[[tables]]
name = "visits"
primary_key = ["id"]

  [[tables.columns]]
  name = "id"
  type = "int64"
`

func TestLoadCompilesTablesAndIndexesInOrder(t *testing.T) {
	plan, err := Load(strings.NewReader(doc), &IdAllocator{NextTableId: 1, NextIndexId: 1})
	require.NoError(t, err)
	require.Len(t, plan.Commands, 3)

	patients, ok := plan.Commands[0].(kernel.CreateTable)
	require.True(t, ok)
	assert.Equal(t, "patients", patients.Name)
	assert.Equal(t, []string{"id"}, patients.PrimaryKey)
	assert.Equal(t, schema.DataTypeUUID, patients.Columns[0].Type)

	idx, ok := plan.Commands[1].(kernel.CreateIndex)
	require.True(t, ok)
	assert.Equal(t, "by_mrn", idx.Name)
	assert.Equal(t, patients.TableId, idx.TableId)

	visits, ok := plan.Commands[2].(kernel.CreateTable)
	require.True(t, ok)
	assert.NotEqual(t, patients.TableId, visits.TableId)
}

func TestLoadRejectsDuplicateTableNames(t *testing.T) {
	dup := `
[[tables]]
name = "patients"
primary_key = ["id"]
  [[tables.columns]]
  name = "id"
  type = "uuid"

[[tables]]
name = "patients"
primary_key = ["id"]
  [[tables.columns]]
  name = "id"
  type = "uuid"
`
	_, err := Load(strings.NewReader(dup), &IdAllocator{NextTableId: 1, NextIndexId: 1})
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDataType(t *testing.T) {
	bad := `
[[tables]]
name = "patients"
primary_key = ["id"]
  [[tables.columns]]
  name = "id"
  type = "imaginary"
`
	_, err := Load(strings.NewReader(bad), &IdAllocator{NextTableId: 1, NextIndexId: 1})
	assert.Error(t, err)
}

func TestDataClassNameParsesCaseInsensitively(t *testing.T) {
	c, ok := DataClassName("phi")
	require.True(t, ok)
	assert.Equal(t, schema.DataClassPHI, c)

	_, ok = DataClassName("not-a-class")
	assert.False(t, ok)
}
