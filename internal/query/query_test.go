package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/ids"
	"kimberlite/internal/projection"
	"kimberlite/internal/schema"
)

type fakeCatalog struct {
	tables  map[string]*schema.TableMetadata
	indexes map[ids.TableId][]schema.IndexMetadata
}

func (c *fakeCatalog) Table(name string) (*schema.TableMetadata, bool) {
	t, ok := c.tables[name]
	return t, ok
}

func (c *fakeCatalog) IndexesFor(tableId ids.TableId) []schema.IndexMetadata {
	return c.indexes[tableId]
}

func newTestEngine(t *testing.T) (*Engine, *fakeCatalog, *projection.Store) {
	t.Helper()
	table := schema.TableMetadata{
		TableId: 1,
		Name:    "users",
		Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.DataTypeInt64},
			{Name: "name", Type: schema.DataTypeText},
			{Name: "age", Type: schema.DataTypeInt64, Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}
	catalog := &fakeCatalog{
		tables:  map[string]*schema.TableMetadata{"users": &table},
		indexes: map[ids.TableId][]schema.IndexMetadata{},
	}
	store := projection.NewStore()
	store.RegisterTable(table)

	event := func(id int64, name string, age any) []byte {
		ageJSON := "null"
		if age != nil {
			ageJSON = fmt.Sprintf("%v", age)
		}
		return append([]byte{byte(projection.RowInsert)},
			[]byte(fmt.Sprintf(`{"id":%d,"name":%q,"age":%s}`, id, name, ageJSON))...)
	}
	require.NoError(t, store.ApplyRowAppend(table.TableId, 0, [][]byte{
		event(1, "Alice", 30),
		event(2, "Bob", 25),
		event(3, "Carol", nil),
	}))

	return NewEngine(catalog, store), catalog, store
}

func TestQueryPointLookupByPrimaryKey(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rows, err := engine.Query("SELECT * FROM users WHERE id = $1", []any{int64(2)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0]["name"])
}

func TestQueryFiltersNullComparisonsAsFalse(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rows, err := engine.Query("SELECT id FROM users WHERE age > $1", []any{float64(20)})
	require.NoError(t, err)
	var ids []any
	for _, r := range rows {
		ids = append(ids, r["id"])
	}
	assert.ElementsMatch(t, []any{int64(1), int64(2)}, ids)
}

func TestQueryLikeWithWildcardsAndEscapes(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rows, err := engine.Query("SELECT id FROM users WHERE name LIKE $1", []any{"A%"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])

	rows, err = engine.Query("SELECT id FROM users WHERE name LIKE $1", []any{"_ob"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["id"])

	rows, err = engine.Query("SELECT id FROM users WHERE name LIKE $1", []any{`A\%`})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQueryOrderByAndLimit(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rows, err := engine.Query("SELECT id FROM users ORDER BY id DESC LIMIT 2", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0]["id"])
	assert.Equal(t, int64(2), rows[1]["id"])
}

func TestQueryLimitAppliesAfterResidualFilter(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	// Alice (age 30) is scanned first but filtered out; the limit must
	// not truncate the scan before the filter has seen Bob.
	rows, err := engine.Query("SELECT id FROM users WHERE age < $1 LIMIT 1", []any{float64(29)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["id"])
}

func TestQueryLimitAppliesAfterOrderByOnNonKeyColumn(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rows, err := engine.Query("SELECT id, name FROM users ORDER BY name DESC LIMIT 1", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Carol", rows[0]["name"])
}

func TestQueryCountStarAggregate(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rows, err := engine.Query("SELECT COUNT(*) FROM users WHERE age IS NOT NULL", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["count(*)"])
}

func TestQueryUnionDeduplicatesRows(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rows, err := engine.Query(
		"SELECT id FROM users WHERE id = $1 UNION SELECT id FROM users WHERE id = $1", []any{int64(1)})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestQueryAtRejectsUnion(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.QueryAt("SELECT id FROM users UNION SELECT id FROM users", nil, ids.Offset(10))
	require.Error(t, err)
	assert.IsType(t, &UnsupportedFeatureError{}, err)
}

func TestQueryAtReflectsOnlyOffsetsAtOrBeforeAsOf(t *testing.T) {
	engine, _, store := newTestEngine(t)
	table, _ := engine.catalog.Table("users")
	require.NoError(t, store.ApplyRowAppend(table.TableId, 3, [][]byte{
		append([]byte{byte(projection.RowInsert)}, []byte(`{"id":4,"name":"Dave","age":40}`)...),
	}))

	rowsBefore, err := engine.QueryAt("SELECT id FROM users", nil, 2)
	require.NoError(t, err)
	rowsAfter, err := engine.QueryAt("SELECT id FROM users", nil, 3)
	require.NoError(t, err)
	assert.Len(t, rowsBefore, 3)
	assert.Len(t, rowsAfter, 4)
}

func addOrdersTable(t *testing.T, catalog *fakeCatalog, store *projection.Store) {
	t.Helper()
	orders := schema.TableMetadata{
		TableId: 2,
		Name:    "orders",
		Columns: []schema.ColumnDef{
			{Name: "order_id", Type: schema.DataTypeInt64},
			{Name: "user_id", Type: schema.DataTypeInt64},
			{Name: "total", Type: schema.DataTypeInt64},
		},
		PrimaryKey: []string{"order_id"},
	}
	catalog.tables["orders"] = &orders
	store.RegisterTable(orders)

	event := func(orderId, userId, total int64) []byte {
		return append([]byte{byte(projection.RowInsert)},
			[]byte(fmt.Sprintf(`{"order_id":%d,"user_id":%d,"total":%d}`, orderId, userId, total))...)
	}
	require.NoError(t, store.ApplyRowAppend(orders.TableId, 0, [][]byte{
		event(10, 1, 100),
		event(11, 1, 250),
		event(12, 2, 75),
	}))
}

func TestQueryInnerJoinOnEquality(t *testing.T) {
	engine, catalog, store := newTestEngine(t)
	addOrdersTable(t, catalog, store)

	rows, err := engine.Query(
		"SELECT name, total FROM users INNER JOIN orders ON id = user_id ORDER BY total", nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Bob", rows[0]["name"])
	assert.Equal(t, int64(75), rows[0]["total"])
	assert.Equal(t, "Alice", rows[2]["name"])
	assert.Equal(t, int64(250), rows[2]["total"])
}

func TestQueryLeftJoinKeepsUnmatchedLeftRows(t *testing.T) {
	engine, catalog, store := newTestEngine(t)
	addOrdersTable(t, catalog, store)

	rows, err := engine.Query(
		"SELECT id, total FROM users LEFT JOIN orders ON id = user_id", nil)
	require.NoError(t, err)
	// Carol (id=3) has no orders but survives the join with a NULL total.
	require.Len(t, rows, 4)
	var carol map[string]any
	for _, r := range rows {
		if r["id"] == int64(3) {
			carol = r
		}
	}
	require.NotNil(t, carol)
	assert.Nil(t, carol["total"])
}

func TestQueryGroupByWithHaving(t *testing.T) {
	engine, catalog, store := newTestEngine(t)
	addOrdersTable(t, catalog, store)

	rows, err := engine.Query(
		"SELECT user_id, SUM(total) FROM orders GROUP BY user_id HAVING COUNT(*) > $1", []any{int64(1)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["user_id"])
	assert.Equal(t, float64(350), rows[0]["sum(total)"])
}

func TestQueryInPredicate(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	rows, err := engine.Query("SELECT id FROM users WHERE id IN ($1, $2)", []any{int64(1), int64(3)})
	require.NoError(t, err)
	var got []any
	for _, r := range rows {
		got = append(got, r["id"])
	}
	assert.ElementsMatch(t, []any{int64(1), int64(3)}, got)
}

func TestQueryDistinctCollapsesDuplicates(t *testing.T) {
	engine, catalog, store := newTestEngine(t)
	addOrdersTable(t, catalog, store)

	rows, err := engine.Query("SELECT DISTINCT user_id FROM orders", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCompileWriteInsertProducesOneIntentPerRow(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	intents, err := engine.CompileWrite(
		"INSERT INTO users (id, name, age) VALUES ($1, $2, $3)", []any{int64(9), "Eve", float64(22)})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, RowInsert, intents[0].Op)
}

func TestCompileWriteUpdateMergesExistingRow(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	intents, err := engine.CompileWrite("UPDATE users SET age = $1 WHERE id = $2", []any{float64(31), int64(1)})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, RowUpdate, intents[0].Op)
	assert.Contains(t, string(intents[0].Row), `"name":"Alice"`)
}

func TestCompileWriteDeleteMatchesWhereClause(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	intents, err := engine.CompileWrite("DELETE FROM users WHERE id = $1", []any{int64(3)})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, RowDelete, intents[0].Op)
}

func TestCompileDDLParsesCreateTable(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	stmt, err := engine.CompileDDL("CREATE TABLE orders (id BIGINT PRIMARY KEY, total DECIMAL(10,2))")
	require.NoError(t, err)
	create, ok := stmt.(*CreateTableStmt)
	require.True(t, ok)
	assert.Equal(t, "orders", create.Name)
	assert.Equal(t, []string{"id"}, create.PrimaryKey)
}

func TestCompileDDLParsesAlterTableAddDropColumn(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	stmt, err := engine.CompileDDL("ALTER TABLE users ADD COLUMN nickname VARCHAR(40), DROP COLUMN age")
	require.NoError(t, err)
	alter, ok := stmt.(*AlterTableStmt)
	require.True(t, ok)
	assert.Equal(t, "users", alter.Table)
	require.Len(t, alter.AddColumns, 1)
	assert.Equal(t, "nickname", alter.AddColumns[0].Name)
	assert.Equal(t, []string{"age"}, alter.DropColumns)
}

func TestCompileDDLRejectsAlterTableRename(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.CompileDDL("ALTER TABLE users RENAME COLUMN name TO full_name")
	require.Error(t, err)
	assert.IsType(t, &UnsupportedFeatureError{}, err)
}

func TestQueryWithExpiredDeadlineReturnsTimeout(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mock := clock.NewMock()
	bound := engine.WithClock(mock).WithDeadline(mock.Now().Add(-time.Millisecond))
	_, err := bound.Query("SELECT * FROM users", nil)
	require.Error(t, err)
	assert.IsType(t, &QueryTimeoutError{}, err)
}

func TestQueryWithFutureDeadlineSucceeds(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mock := clock.NewMock()
	bound := engine.WithClock(mock).WithDeadline(mock.Now().Add(time.Hour))
	rows, err := bound.Query("SELECT * FROM users", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
