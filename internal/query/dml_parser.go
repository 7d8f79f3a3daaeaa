package query

import (
	"fmt"
	"strings"
)

// dmlParser is a small hand-rolled recursive-descent parser over the
// closed SELECT/INSERT/UPDATE/DELETE subset. TiDB's AST exposes this
// surface too, but only its statement-level shapes are walked here
// (see ddl_parser.go); expression trees stay in our own lexer so the
// subset boundary is enforced by construction rather than by filtering
// a much larger grammar after the fact.
type dmlParser struct {
	toks []token
	pos  int
}

func parseDML(sql string) (Statement, error) {
	toks, err := lex(sql)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	p := &dmlParser{toks: toks}
	if !p.isKeyword("SELECT") && !p.isKeyword("INSERT") && !p.isKeyword("UPDATE") && !p.isKeyword("DELETE") {
		return nil, nil // not DML; caller falls back to the DDL parser
	}

	var stmt Statement
	switch {
	case p.isKeyword("SELECT"):
		stmt, err = p.parseSelect()
	case p.isKeyword("INSERT"):
		stmt, err = p.parseInsert()
	case p.isKeyword("UPDATE"):
		stmt, err = p.parseUpdate()
	case p.isKeyword("DELETE"):
		stmt, err = p.parseDelete()
	}
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	if p.cur().kind != tokEOF {
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected trailing input near %q", p.cur().text)}
	}
	return stmt, nil
}

func (p *dmlParser) cur() token { return p.toks[p.pos] }

func (p *dmlParser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *dmlParser) isKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (p *dmlParser) eatKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *dmlParser) expectKeyword(kw string) error {
	if !p.eatKeyword(kw) {
		return fmt.Errorf("expected %s near %q", kw, p.cur().text)
	}
	return nil
}

func (p *dmlParser) expectPunct(s string) error {
	if p.cur().kind == tokPunct && p.cur().text == s {
		p.advance()
		return nil
	}
	return fmt.Errorf("expected %q near %q", s, p.cur().text)
}

func (p *dmlParser) eatPunct(s string) bool {
	if p.cur().kind == tokPunct && p.cur().text == s {
		p.advance()
		return true
	}
	return false
}

func (p *dmlParser) ident() (string, error) {
	if p.cur().kind != tokIdent {
		return "", fmt.Errorf("expected identifier near %q", p.cur().text)
	}
	return p.advance().text, nil
}

// columnRef reads `name` or `table.name`.
func (p *dmlParser) columnRef() (ColumnRef, error) {
	first, err := p.ident()
	if err != nil {
		return ColumnRef{}, err
	}
	if p.eatPunct(".") {
		second, err := p.ident()
		if err != nil {
			return ColumnRef{}, err
		}
		return ColumnRef{Table: first, Name: second}, nil
	}
	return ColumnRef{Name: first}, nil
}

// ---- SELECT ----

func (p *dmlParser) parseSelect() (*SelectStmt, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStmt{}
	if p.eatKeyword("DISTINCT") {
		stmt.Distinct = true
	}

	items, err := p.parseSelectItems()
	if err != nil {
		return nil, err
	}
	stmt.Items = items

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.ident()
	if err != nil {
		return nil, err
	}
	stmt.Table = table
	if p.cur().kind == tokIdent && !isReservedClauseKeyword(p.cur().text) {
		alias, err := p.ident()
		if err != nil {
			return nil, err
		}
		stmt.Alias = alias
	}

	for p.isKeyword("INNER") || p.isKeyword("LEFT") || p.isKeyword("JOIN") {
		join, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, join)
	}

	if p.eatKeyword("WHERE") {
		where, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.eatKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.columnRef()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, col)
			if !p.eatPunct(",") {
				break
			}
		}
	}

	if p.eatKeyword("HAVING") {
		having, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = having
	}

	if p.eatKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.columnRef()
			if err != nil {
				return nil, err
			}
			term := OrderTerm{Column: col}
			if p.eatKeyword("DESC") {
				term.Desc = true
			} else {
				p.eatKeyword("ASC")
			}
			stmt.OrderBy = append(stmt.OrderBy, term)
			if !p.eatPunct(",") {
				break
			}
		}
	}

	if p.eatKeyword("LIMIT") {
		if p.cur().kind != tokNumber {
			return nil, fmt.Errorf("expected number after LIMIT")
		}
		n := int64(p.advance().num)
		stmt.Limit = &n
	}

	if p.eatKeyword("UNION") {
		all := p.eatKeyword("ALL")
		next, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		stmt.Union = next
		stmt.UnionAll = all
	}

	return stmt, nil
}

func isReservedClauseKeyword(s string) bool {
	switch strings.ToUpper(s) {
	case "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "UNION", "INNER", "LEFT", "JOIN", "ON":
		return true
	}
	return false
}

func (p *dmlParser) parseSelectItems() ([]SelectItem, error) {
	var items []SelectItem
	for {
		if p.eatPunct("*") {
			items = append(items, SelectItem{Star: true})
		} else if agg, ok := p.tryParseAgg(); ok {
			items = append(items, agg)
		} else {
			col, err := p.columnRef()
			if err != nil {
				return nil, err
			}
			items = append(items, SelectItem{Column: col})
		}
		if !p.eatPunct(",") {
			break
		}
	}
	return items, nil
}

func (p *dmlParser) tryParseAgg() (SelectItem, bool) {
	if p.cur().kind != tokIdent {
		return SelectItem{}, false
	}
	var fn AggFunc
	switch strings.ToUpper(p.cur().text) {
	case "COUNT":
		fn = AggCount
	case "SUM":
		fn = AggSum
	case "AVG":
		fn = AggAvg
	case "MIN":
		fn = AggMin
	case "MAX":
		fn = AggMax
	default:
		return SelectItem{}, false
	}
	save := p.pos
	p.advance()
	if !p.eatPunct("(") {
		p.pos = save
		return SelectItem{}, false
	}
	if fn == AggCount && p.eatPunct("*") {
		if err := p.expectPunct(")"); err != nil {
			p.pos = save
			return SelectItem{}, false
		}
		return SelectItem{IsAgg: true, Agg: AggCountStar}, true
	}
	col, err := p.columnRef()
	if err != nil {
		p.pos = save
		return SelectItem{}, false
	}
	if err := p.expectPunct(")"); err != nil {
		p.pos = save
		return SelectItem{}, false
	}
	return SelectItem{IsAgg: true, Agg: fn, Column: col}, true
}

func (p *dmlParser) parseJoin() (Join, error) {
	kind := JoinInner
	if p.eatKeyword("LEFT") {
		kind = JoinLeft
	} else {
		p.eatKeyword("INNER")
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return Join{}, err
	}
	table, err := p.ident()
	if err != nil {
		return Join{}, err
	}
	join := Join{Kind: kind, Table: table}
	if p.cur().kind == tokIdent && !p.isKeyword("ON") {
		alias, err := p.ident()
		if err != nil {
			return Join{}, err
		}
		join.Alias = alias
	}
	if err := p.expectKeyword("ON"); err != nil {
		return Join{}, err
	}
	left, err := p.columnRef()
	if err != nil {
		return Join{}, err
	}
	if err := p.expectPunct("="); err != nil {
		return Join{}, err
	}
	right, err := p.columnRef()
	if err != nil {
		return Join{}, err
	}
	join.Left, join.Right = left, right
	return join, nil
}

// ---- expressions ----

func (p *dmlParser) parseOrExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.eatKeyword("OR") {
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *dmlParser) parseAndExpr() (Expr, error) {
	left, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	for p.eatKeyword("AND") {
		right, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *dmlParser) parsePredicate() (Expr, error) {
	if p.eatPunct("(") {
		inner, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	operand, err := p.parseScalar()
	if err != nil {
		return nil, err
	}

	switch {
	case p.eatKeyword("IS"):
		not := p.eatKeyword("NOT")
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return IsNullExpr{Operand: operand, Not: not}, nil

	case p.eatKeyword("IN"):
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var list []Expr
		for {
			v, err := p.parseScalar()
			if err != nil {
				return nil, err
			}
			list = append(list, v)
			if !p.eatPunct(",") {
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return InExpr{Operand: operand, List: list}, nil

	case p.eatKeyword("LIKE"):
		pattern, err := p.parseScalar()
		if err != nil {
			return nil, err
		}
		return LikeExpr{Operand: operand, Pattern: pattern}, nil

	default:
		op, ok := p.eatCmpOp()
		if !ok {
			return nil, fmt.Errorf("expected comparison operator near %q", p.cur().text)
		}
		rhs, err := p.parseScalar()
		if err != nil {
			return nil, err
		}
		return BinaryExpr{Op: op, Left: operand, Right: rhs}, nil
	}
}

func (p *dmlParser) eatCmpOp() (CmpOp, bool) {
	t := p.cur()
	var op CmpOp
	switch {
	case t.kind == tokPunct && t.text == "=":
		op = OpEQ
	case t.kind == tokPunct && (t.text == "!=" || t.text == "<>"):
		op = OpNE
	case t.kind == tokPunct && t.text == "<":
		op = OpLT
	case t.kind == tokPunct && t.text == "<=":
		op = OpLE
	case t.kind == tokPunct && t.text == ">":
		op = OpGT
	case t.kind == tokPunct && t.text == ">=":
		op = OpGE
	default:
		return 0, false
	}
	p.advance()
	return op, true
}

func (p *dmlParser) parseScalar() (Expr, error) {
	if agg, ok := p.tryParseAgg(); ok {
		return AggCallExpr{Agg: agg.Agg, Column: agg.Column}, nil
	}
	t := p.cur()
	switch {
	case t.kind == tokParam:
		p.advance()
		return Param{Index: t.idx}, nil
	case t.kind == tokNumber:
		p.advance()
		return Literal{Value: t.num}, nil
	case t.kind == tokString:
		p.advance()
		return Literal{Value: t.text}, nil
	case t.kind == tokIdent && strings.EqualFold(t.text, "NULL"):
		p.advance()
		return Literal{Value: nil}, nil
	case t.kind == tokIdent && strings.EqualFold(t.text, "TRUE"):
		p.advance()
		return Literal{Value: true}, nil
	case t.kind == tokIdent && strings.EqualFold(t.text, "FALSE"):
		p.advance()
		return Literal{Value: false}, nil
	case t.kind == tokIdent:
		col, err := p.columnRef()
		if err != nil {
			return nil, err
		}
		return col, nil
	default:
		return nil, fmt.Errorf("expected a value near %q", t.text)
	}
}

// ---- INSERT / UPDATE / DELETE ----

func (p *dmlParser) parseInsert() (*InsertStmt, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.ident()
	if err != nil {
		return nil, err
	}
	stmt := &InsertStmt{Table: table}

	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for {
		col, err := p.ident()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.eatPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var row []Expr
		for {
			v, err := p.parseScalar()
			if err != nil {
				return nil, err
			}
			row = append(row, v)
			if !p.eatPunct(",") {
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		if len(row) != len(stmt.Columns) {
			return nil, fmt.Errorf("value count does not match column count")
		}
		stmt.Rows = append(stmt.Rows, row)
		if !p.eatPunct(",") {
			break
		}
	}
	return stmt, nil
}

func (p *dmlParser) parseUpdate() (*UpdateStmt, error) {
	if err := p.expectKeyword("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.ident()
	if err != nil {
		return nil, err
	}
	stmt := &UpdateStmt{Table: table}

	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	for {
		col, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		v, err := p.parseScalar()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{Column: col, Value: v})
		if !p.eatPunct(",") {
			break
		}
	}

	if p.eatKeyword("WHERE") {
		where, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *dmlParser) parseDelete() (*DeleteStmt, error) {
	if err := p.expectKeyword("DELETE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.ident()
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStmt{Table: table}
	if p.eatKeyword("WHERE") {
		where, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}
