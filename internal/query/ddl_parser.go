package query

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"kimberlite/internal/schema"
)

// ddlParser wraps TiDB's AST parser to translate the supported DDL subset
// (CREATE TABLE, DROP TABLE, CREATE INDEX, ALTER TABLE) into this
// package's portable Statement shapes. DML is handled separately by
// dmlParser: the TiDB AST's expression nodes aren't exercised anywhere
// anywhere else in this module, so WHERE/SELECT-list parsing is
// hand-rolled instead (see dmlParser).
type ddlParser struct {
	p *parser.Parser
}

func newDDLParser() *ddlParser {
	return &ddlParser{p: parser.New()}
}

func (d *ddlParser) parse(sql string) (Statement, error) {
	stmtNodes, _, err := d.p.Parse(sql, "", "")
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	if len(stmtNodes) == 0 {
		return nil, &ParseError{Msg: "empty statement"}
	}

	switch stmt := stmtNodes[0].(type) {
	case *ast.CreateTableStmt:
		return d.convertCreateTable(stmt)
	case *ast.DropTableStmt:
		return d.convertDropTable(stmt)
	case *ast.CreateIndexStmt:
		return d.convertCreateIndex(stmt)
	case *ast.AlterTableStmt:
		return d.convertAlterTable(stmt)
	default:
		return nil, &UnsupportedFeatureError{Msg: fmt.Sprintf("statement kind %T", stmt)}
	}
}

func (d *ddlParser) convertCreateTable(stmt *ast.CreateTableStmt) (*CreateTableStmt, error) {
	out := &CreateTableStmt{Name: stmt.Table.Name.O}

	for _, colDef := range stmt.Cols {
		col := schema.ColumnDef{
			Name:     colDef.Name.Name.O,
			Type:     normalizeDataType(colDef.Tp.String()),
			Nullable: true,
		}
		for _, opt := range colDef.Options {
			switch opt.Tp {
			case ast.ColumnOptionNotNull:
				col.Nullable = false
			case ast.ColumnOptionNull:
				col.Nullable = true
			case ast.ColumnOptionPrimaryKey:
				col.Nullable = false
				out.PrimaryKey = append(out.PrimaryKey, col.Name)
			}
		}
		out.Columns = append(out.Columns, col)
	}

	for _, constraint := range stmt.Constraints {
		if constraint.Tp != ast.ConstraintPrimaryKey {
			continue
		}
		out.PrimaryKey = out.PrimaryKey[:0]
		for _, key := range constraint.Keys {
			out.PrimaryKey = append(out.PrimaryKey, key.Column.Name.O)
		}
	}

	if len(out.PrimaryKey) == 0 {
		return nil, &ParseError{Msg: fmt.Sprintf("table %q declares no primary key", out.Name)}
	}
	return out, nil
}

func (d *ddlParser) convertDropTable(stmt *ast.DropTableStmt) (*DropTableStmt, error) {
	if len(stmt.Tables) != 1 {
		return nil, &UnsupportedFeatureError{Msg: "DROP TABLE with more than one table"}
	}
	return &DropTableStmt{Name: stmt.Tables[0].Name.O}, nil
}

// convertAlterTable supports exactly ADD COLUMN and DROP COLUMN specs;
// anything else (RENAME, MODIFY, constraint changes) is rejected with
// UnsupportedFeatureError rather than silently dropped.
func (d *ddlParser) convertAlterTable(stmt *ast.AlterTableStmt) (*AlterTableStmt, error) {
	out := &AlterTableStmt{Table: stmt.Table.Name.O}
	for _, spec := range stmt.Specs {
		switch spec.Tp {
		case ast.AlterTableAddColumns:
			for _, colDef := range spec.NewColumns {
				col := schema.ColumnDef{
					Name:     colDef.Name.Name.O,
					Type:     normalizeDataType(colDef.Tp.String()),
					Nullable: true,
				}
				for _, opt := range colDef.Options {
					switch opt.Tp {
					case ast.ColumnOptionNotNull:
						col.Nullable = false
					case ast.ColumnOptionNull:
						col.Nullable = true
					}
				}
				out.AddColumns = append(out.AddColumns, col)
			}
		case ast.AlterTableDropColumn:
			out.DropColumns = append(out.DropColumns, spec.OldColumnName.Name.O)
		default:
			return nil, &UnsupportedFeatureError{Msg: "ALTER TABLE only supports ADD COLUMN and DROP COLUMN"}
		}
	}
	if len(out.AddColumns) == 0 && len(out.DropColumns) == 0 {
		return nil, &UnsupportedFeatureError{Msg: "ALTER TABLE with no recognized ADD/DROP COLUMN clause"}
	}
	return out, nil
}

func (d *ddlParser) convertCreateIndex(stmt *ast.CreateIndexStmt) (*CreateIndexStmt, error) {
	out := &CreateIndexStmt{Name: stmt.IndexName, Table: stmt.Table.Name.O}
	for _, spec := range stmt.IndexPartSpecifications {
		out.Columns = append(out.Columns, spec.Column.Name.O)
	}
	return out, nil
}

// normalizeDataType maps a TiDB column type's rendered string onto the
// portable DataType enum by substring match on the lowercased type
// string.
func normalizeDataType(raw string) schema.DataType {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lower, "bool"):
		return schema.DataTypeBoolean
	case strings.Contains(lower, "bigint"), strings.Contains(lower, "int"):
		return schema.DataTypeInt64
	case strings.Contains(lower, "decimal"), strings.Contains(lower, "numeric"):
		return schema.DataTypeDecimal
	case strings.Contains(lower, "float"), strings.Contains(lower, "double"), strings.Contains(lower, "real"):
		return schema.DataTypeFloat64
	case strings.Contains(lower, "timestamp"):
		return schema.DataTypeTimestamp
	case strings.Contains(lower, "datetime"):
		return schema.DataTypeTimestamp
	case strings.Contains(lower, "date"):
		return schema.DataTypeDate
	case strings.Contains(lower, "time"):
		return schema.DataTypeTime
	case strings.Contains(lower, "uuid"):
		return schema.DataTypeUUID
	case strings.Contains(lower, "json"):
		return schema.DataTypeJSON
	case strings.Contains(lower, "blob"), strings.Contains(lower, "binary"), strings.Contains(lower, "varbinary"):
		return schema.DataTypeBytes
	default:
		return schema.DataTypeText
	}
}
