// Package preflight warns about (and, unless explicitly overridden,
// refuses) destructive operations before they are turned into kernel
// commands. This runs entirely ahead of kernel.Apply: it never touches
// kernel state, and a command that preflight lets through is still
// subject to every kernel invariant. Warnings come in two levels:
// CAUTION for operations that are merely risky, DANGER for ones that
// lose data.
package preflight

import (
	"fmt"

	"kimberlite/internal/query"
)

// Level distinguishes a risky-but-reversible operation from one that
// discards data or access.
type Level string

const (
	LevelCaution Level = "CAUTION"
	LevelDanger  Level = "DANGER"
)

// Warning describes one concern preflight raised about a statement.
type Warning struct {
	Level   Level
	Message string
}

// Check inspects a compiled DDL/DML statement and returns the warnings
// it raises. An empty slice means the statement is unremarkable.
func Check(stmt query.Statement) []Warning {
	switch s := stmt.(type) {
	case *query.DropTableStmt:
		return []Warning{{
			Level:   LevelDanger,
			Message: fmt.Sprintf("DROP TABLE %s: the table's catalog entry is removed; rows already appended to its backing stream are retained for audit but are no longer queryable", s.Name),
		}}
	case *query.AlterTableStmt:
		if len(s.DropColumns) == 0 {
			return nil
		}
		return []Warning{{
			Level:   LevelDanger,
			Message: fmt.Sprintf("ALTER TABLE %s DROP COLUMN: %d column(s) will no longer be projected; prior values remain in the log but are not recoverable through the projection store", s.Table, len(s.DropColumns)),
		}}
	case *query.DeleteStmt:
		if s.Where == nil {
			return []Warning{{
				Level:   LevelDanger,
				Message: fmt.Sprintf("DELETE FROM %s has no WHERE clause: every row currently visible will be tombstoned", s.Table),
			}}
		}
	case *query.UpdateStmt:
		if s.Where == nil {
			return []Warning{{
				Level:   LevelCaution,
				Message: fmt.Sprintf("UPDATE %s has no WHERE clause: every row currently visible will be rewritten", s.Table),
			}}
		}
	}
	return nil
}

// Refuse reports whether warnings contain a DANGER-level entry that
// unsafe does not override. Callers should refuse to submit the
// corresponding command unless the operator passed an explicit
// override (the unsafe argument of the runtime's ExecuteDDL and
// ExecuteWrite).
func Refuse(warnings []Warning, unsafe bool) bool {
	if unsafe {
		return false
	}
	for _, w := range warnings {
		if w.Level == LevelDanger {
			return true
		}
	}
	return false
}
