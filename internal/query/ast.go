// Package query implements the pure SQL planner and executor described
// here: a deliberately closed subset of SQL compiled to a plan
// over the projection store, with no subqueries, CTEs, or window
// functions.
package query

import "kimberlite/internal/schema"

// Expr is the sum type of scalar expressions the WHERE/HAVING/SET
// clauses can contain.
type Expr interface{ isExpr() }

// ColumnRef names a column, optionally qualified by table/alias.
type ColumnRef struct {
	Table string
	Name  string
}

func (ColumnRef) isExpr() {}

// Param is a $n placeholder, 1-indexed as written in the SQL text.
type Param struct{ Index int }

func (Param) isExpr() {}

// Literal is a constant scalar parsed directly out of the SQL text.
type Literal struct{ Value any }

func (Literal) isExpr() {}

// CmpOp enumerates the comparison and logical operators the WHERE
// subset supports.
type CmpOp int

const (
	OpEQ CmpOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpAnd
	OpOr
)

// BinaryExpr is either a comparison (operands are scalar expressions)
// or a logical AND/OR (operands are themselves predicates).
type BinaryExpr struct {
	Op          CmpOp
	Left, Right Expr
}

func (BinaryExpr) isExpr() {}

// IsNullExpr implements IS [NOT] NULL.
type IsNullExpr struct {
	Operand Expr
	Not     bool
}

func (IsNullExpr) isExpr() {}

// InExpr implements `operand IN (v1, v2, ...)`.
type InExpr struct {
	Operand Expr
	List    []Expr
}

func (InExpr) isExpr() {}

// LikeExpr implements `operand LIKE pattern`, pattern always a string
// literal or parameter; `%`, `_`, and the `\%`/`\_` escapes are
// interpreted by the executor, not here.
type LikeExpr struct {
	Operand Expr
	Pattern Expr
}

func (LikeExpr) isExpr() {}

// AggCallExpr is an aggregate function appearing in a scalar position:
// inside HAVING, or (via SelectItem) the SELECT list. evalScalar
// resolves it by looking up the precomputed per-group value keyed by
// aggKey, never by recomputing over raw rows itself.
type AggCallExpr struct {
	Agg    AggFunc
	Column ColumnRef
}

func (AggCallExpr) isExpr() {}

// AggFunc enumerates the aggregate functions the GROUP BY subset
// supports.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggCountStar
	AggSum
	AggAvg
	AggMin
	AggMax
)

// SelectItem is one entry in the SELECT column list: either a bare
// column/star projection or an aggregate call.
type SelectItem struct {
	Star   bool
	Column ColumnRef
	Agg    AggFunc
	Alias  string
	IsAgg  bool
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Column ColumnRef
	Desc   bool
}

// JoinKind distinguishes the two join forms the subset supports.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
)

// Join is one `INNER/LEFT JOIN ... ON left = right` clause.
type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	Left  ColumnRef
	Right ColumnRef
}

// SelectStmt is a single (non-UNION) SELECT, plus an optional UNION
// chain to the next member.
type SelectStmt struct {
	Distinct bool
	Items    []SelectItem
	Table    string
	Alias    string
	Joins    []Join
	Where    Expr
	GroupBy  []ColumnRef
	Having   Expr
	OrderBy  []OrderTerm
	Limit    *int64

	Union    *SelectStmt
	UnionAll bool
}

// InsertStmt is a single-row or multi-row INSERT.
type InsertStmt struct {
	Table   string
	Columns []string
	Rows    [][]Expr
}

// Assignment is one `col = expr` entry of an UPDATE's SET clause.
type Assignment struct {
	Column string
	Value  Expr
}

// UpdateStmt is an UPDATE with an optional WHERE.
type UpdateStmt struct {
	Table       string
	Assignments []Assignment
	Where       Expr
}

// DeleteStmt is a DELETE with an optional WHERE.
type DeleteStmt struct {
	Table string
	Where Expr
}

// CreateTableStmt carries the portable column/primary-key shape the
// kernel's CreateTable command needs.
type CreateTableStmt struct {
	Name       string
	Columns    []schema.ColumnDef
	PrimaryKey []string
}

// DropTableStmt names the table to drop.
type DropTableStmt struct {
	Name string
}

// CreateIndexStmt names the index, its table, and the covered columns
// in order.
type CreateIndexStmt struct {
	Name    string
	Table   string
	Columns []string
}

// AlterTableStmt names the columns an ALTER TABLE ADD COLUMN / DROP
// COLUMN statement adds and drops, in source order. Only these two
// clauses are supported; any other ALTER TABLE spec (rename, modify,
// constraint changes) is rejected by the parser as unsupported.
type AlterTableStmt struct {
	Table       string
	AddColumns  []schema.ColumnDef
	DropColumns []string
}

// Statement is the sum type every parsed SQL string reduces to.
type Statement interface{ isStatement() }

func (*SelectStmt) isStatement()      {}
func (*InsertStmt) isStatement()      {}
func (*UpdateStmt) isStatement()      {}
func (*DeleteStmt) isStatement()      {}
func (*CreateTableStmt) isStatement() {}
func (*DropTableStmt) isStatement()   {}
func (*CreateIndexStmt) isStatement() {}
func (*AlterTableStmt) isStatement()  {}
