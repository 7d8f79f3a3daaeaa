package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/migrate"
	"kimberlite/internal/schema"
)

func sampleResult() QueryResult {
	return NewQueryResult([]map[string]any{
		{"id": int64(1), "name": "Alice"},
		{"id": int64(2), "name": nil},
	})
}

func TestNewQueryResultSortsColumnsAlphabetically(t *testing.T) {
	r := sampleResult()
	assert.Equal(t, []string{"id", "name"}, r.Columns)
}

func TestTableFormatterRendersNullAndRowCount(t *testing.T) {
	f, err := NewFormatter("table")
	require.NoError(t, err)
	out, err := f.FormatQuery(sampleResult())
	require.NoError(t, err)
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "(2 rows)")
}

func TestJSONFormatterRoundTripsColumnsAndRows(t *testing.T) {
	f, err := NewFormatter("json")
	require.NoError(t, err)
	out, err := f.FormatQuery(sampleResult())
	require.NoError(t, err)
	assert.Contains(t, out, `"columns"`)
	assert.Contains(t, out, `"Alice"`)
}

func TestSummaryFormatterCountsColumnsAndRows(t *testing.T) {
	f, err := NewFormatter("summary")
	require.NoError(t, err)
	out, err := f.FormatQuery(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "2 column(s), 2 row(s)\n", out)
}

func TestNewFormatterRejectsUnknownName(t *testing.T) {
	_, err := NewFormatter("xml")
	assert.Error(t, err)
}

func TestFormatMigrationAcrossFormats(t *testing.T) {
	current := &schema.TableMetadata{TableId: 1, Name: "t", PrimaryKey: []string{"id"},
		Columns: []schema.ColumnDef{{Name: "id", Type: schema.DataTypeUUID}}}
	desired := &schema.TableMetadata{TableId: 1, Name: "t", PrimaryKey: []string{"id"},
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.DataTypeUUID},
			{Name: "mrn", Type: schema.DataTypeText, Nullable: true},
		}}
	plan, err := migrate.Diff(current, desired)
	require.NoError(t, err)

	for _, name := range []string{"table", "json", "summary"} {
		f, err := NewFormatter(name)
		require.NoError(t, err)
		out, err := f.FormatMigration(plan)
		require.NoError(t, err)
		assert.NotEmpty(t, out)
	}
}
