// Package migrate diffs a table's current catalog shape against a
// desired one and compiles the difference into a kernel.AlterTable
// command, plus a human-readable rendering of the change and its
// rollback for the audit trail and operator review. It is the
// schema-evolution counterpart to schemaload: schemaload bootstraps a
// table from nothing, migrate moves an existing table from one
// declared shape to another.
//
// The package also carries the checksum/lock integrity model that
// governs the migration scripts that produce a Plan: Script,
// ValidateSequence and LockFile ensure a migration file cannot be
// silently edited after it has been applied, and that migration ids
// never skip a number.
package migrate

import (
	"fmt"
	"sort"
	"strings"

	"kimberlite/internal/kernel"
	"kimberlite/internal/schema"
)

// Plan is a compiled column-level migration: migrate only ever adds or
// drops whole columns, it never changes a column's type or
// nullability in place. A rename is expressed as a drop of the old
// name plus an add of the new one; String and Rollback make that
// explicit rather than implying data is preserved.
type Plan struct {
	alter        kernel.AlterTable
	AddedNames   []string
	DroppedNames []string
	Notes        []string
}

// Diff computes the column-level difference between current and
// desired and compiles it into an AlterTable command. Column order and
// primary-key membership are not migrated: PrimaryKey changes are
// rejected outright, matching AlterTable's scope (ADD/DROP
// COLUMN only).
func Diff(current, desired *schema.TableMetadata) (*Plan, error) {
	if current.TableId != 0 && desired.TableId != 0 && current.TableId != desired.TableId {
		return nil, fmt.Errorf("migrate: current and desired describe different tables (%d vs %d)", current.TableId, desired.TableId)
	}
	if !equalStrings(current.PrimaryKey, desired.PrimaryKey) {
		return nil, fmt.Errorf("migrate: primary key changes are not supported by AlterTable")
	}

	currentByName := make(map[string]schema.ColumnDef, len(current.Columns))
	for _, c := range current.Columns {
		currentByName[c.Name] = c
	}
	desiredByName := make(map[string]schema.ColumnDef, len(desired.Columns))
	for _, c := range desired.Columns {
		desiredByName[c.Name] = c
	}

	var add []schema.ColumnDef
	var addNames []string
	for _, c := range desired.Columns {
		if _, ok := currentByName[c.Name]; !ok {
			add = append(add, c)
			addNames = append(addNames, c.Name)
		}
	}

	var drop []string
	for _, c := range current.Columns {
		if existing, ok := desiredByName[c.Name]; ok {
			if existing != c {
				return nil, fmt.Errorf("migrate: column %q changed type or nullability in place, which AlterTable cannot express; drop and re-add it instead", c.Name)
			}
			continue
		}
		drop = append(drop, c.Name)
	}
	sort.Strings(drop)

	plan := &Plan{
		alter: kernel.AlterTable{
			TableId:     current.TableId,
			AddColumns:  add,
			DropColumns: drop,
		},
		AddedNames:   addNames,
		DroppedNames: drop,
	}
	if len(add) == 0 && len(drop) == 0 {
		plan.Notes = append(plan.Notes, "no column changes: current and desired schemas already match")
	}
	return plan, nil
}

// Command returns the kernel.AlterTable command the plan compiles to.
func (p *Plan) Command() kernel.AlterTable { return p.alter }

// String renders the plan the way an operator or the audit trail would
// read it: one line per added column, one line per dropped column.
func (p *Plan) String() string {
	if len(p.AddedNames) == 0 && len(p.DroppedNames) == 0 {
		return "no changes"
	}
	var b strings.Builder
	for _, name := range p.AddedNames {
		fmt.Fprintf(&b, "+ add column %s\n", name)
	}
	for _, name := range p.DroppedNames {
		fmt.Fprintf(&b, "- drop column %s\n", name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Rollback renders the inverse of String: a plan that would undo this
// one, for audit display only. It cannot resurrect data a DROP COLUMN
// discarded — the backing stream still holds it (nothing is ever
// deleted from the log), but the projection's current row shape does
// not carry it forward.
func (p *Plan) Rollback() string {
	if len(p.AddedNames) == 0 && len(p.DroppedNames) == 0 {
		return "no changes"
	}
	var b strings.Builder
	for _, name := range p.DroppedNames {
		fmt.Fprintf(&b, "+ restore column %s (schema only; prior values are not recovered)\n", name)
	}
	for _, name := range p.AddedNames {
		fmt.Fprintf(&b, "- drop column %s\n", name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
