package query

import (
	"kimberlite/internal/projection"
	"kimberlite/internal/schema"
)

// CompileDDL parses a CREATE TABLE/DROP TABLE/CREATE INDEX/ALTER TABLE
// statement into its portable Statement shape. The caller (the runtime
// layer) is responsible for allocating ids and building the matching
// kernel.Command: the query engine has no notion of the kernel's
// identifier space.
func (e *Engine) CompileDDL(sql string) (Statement, error) {
	stmt, err := e.parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	switch stmt.(type) {
	case *CreateTableStmt, *DropTableStmt, *CreateIndexStmt, *AlterTableStmt:
		return stmt, nil
	default:
		return nil, &UnsupportedFeatureError{Msg: "CompileDDL only accepts DDL statements"}
	}
}

// CompileWrite parses an INSERT/UPDATE/DELETE statement and resolves
// it, against the engine's live store, into one WriteIntent per
// affected row. The runtime wraps each into a kernel.MutateRow command
// and applies them in order; the engine itself never appends to a
// stream.
func (e *Engine) CompileWrite(sql string, params []any) ([]WriteIntent, error) {
	stmt, err := e.parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	switch s := stmt.(type) {
	case *InsertStmt:
		return e.compileInsert(s, params)
	case *UpdateStmt:
		return e.compileUpdate(s, params)
	case *DeleteStmt:
		return e.compileDelete(s, params)
	default:
		return nil, &UnsupportedFeatureError{Msg: "CompileWrite only accepts INSERT/UPDATE/DELETE"}
	}
}

func (e *Engine) compileInsert(stmt *InsertStmt, params []any) ([]WriteIntent, error) {
	table, ok := e.catalog.Table(stmt.Table)
	if !ok {
		return nil, ErrTableNotFound
	}
	var out []WriteIntent
	for _, row := range stmt.Rows {
		values := make(map[string]any, len(stmt.Columns))
		for i, col := range stmt.Columns {
			v, err := evalScalar(row[i], nil, params)
			if err != nil {
				return nil, err
			}
			values[col] = v
		}
		payload, err := encodeFullRow(table, values)
		if err != nil {
			return nil, err
		}
		out = append(out, WriteIntent{Table: table, Op: RowInsert, Row: payload})
	}
	return out, nil
}

func (e *Engine) matchingRows(table *schema.TableMetadata, where Expr, params []any) ([]projection.ScanResult, error) {
	var matches []projection.ScanResult
	err := e.store.Scan(table.TableId, nil, nil, false, 0, func(r projection.ScanResult) bool {
		if where == nil {
			matches = append(matches, r)
			return true
		}
		ok, evalErr := evalPredicate(where, nativeRow(r.Row), params)
		if evalErr != nil {
			return false
		}
		if ok {
			matches = append(matches, r)
		}
		return true
	})
	return matches, err
}

func (e *Engine) compileUpdate(stmt *UpdateStmt, params []any) ([]WriteIntent, error) {
	table, ok := e.catalog.Table(stmt.Table)
	if !ok {
		return nil, ErrTableNotFound
	}
	matches, err := e.matchingRows(table, stmt.Where, params)
	if err != nil {
		return nil, err
	}

	var out []WriteIntent
	for _, m := range matches {
		values := nativeRow(m.Row)
		for _, a := range stmt.Assignments {
			v, err := evalScalar(a.Value, values, params)
			if err != nil {
				return nil, err
			}
			values[a.Column] = v
		}
		payload, err := encodeFullRow(table, values)
		if err != nil {
			return nil, err
		}
		out = append(out, WriteIntent{Table: table, Op: RowUpdate, Row: payload})
	}
	return out, nil
}

func (e *Engine) compileDelete(stmt *DeleteStmt, params []any) ([]WriteIntent, error) {
	table, ok := e.catalog.Table(stmt.Table)
	if !ok {
		return nil, ErrTableNotFound
	}
	matches, err := e.matchingRows(table, stmt.Where, params)
	if err != nil {
		return nil, err
	}

	var out []WriteIntent
	for _, m := range matches {
		payload, err := encodeFullRow(table, nativeRow(m.Row))
		if err != nil {
			return nil, err
		}
		out = append(out, WriteIntent{Table: table, Op: RowDelete, Row: payload})
	}
	return out, nil
}
