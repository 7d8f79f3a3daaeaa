package query

import "strings"

// Parser compiles SQL text in the supported closed subset into a
// Statement. DML (SELECT/INSERT/UPDATE/DELETE) is recognized by a
// hand-rolled recursive-descent parser; everything else falls through
// to TiDB's AST parser for DDL.
type Parser struct {
	ddl *ddlParser
}

func NewParser() *Parser {
	return &Parser{ddl: newDDLParser()}
}

func (p *Parser) Parse(sql string) (Statement, error) {
	sql = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	stmt, err := parseDML(sql)
	if err != nil {
		return nil, err
	}
	if stmt != nil {
		return stmt, nil
	}
	return p.ddl.parse(sql)
}
