package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that m is structurally well-formed on its own: a
// legal name and a recognized, non-negative-restrictiveness data class.
// It does not check cross-stream uniqueness; that is the kernel's job,
// since it requires the rest of the catalog.
func (m *StreamMetadata) Validate() error {
	if m == nil {
		return errors.New("stream metadata is nil")
	}
	// A table's backing stream carries the reserved "__table_" prefix;
	// the rest of its name follows the ordinary naming rules.
	name := strings.TrimPrefix(m.StreamName, BackingStreamName(""))
	if err := nonEmptyName("stream", name); err != nil {
		return err
	}
	if !ValidDataClass(m.DataClass) {
		return fmt.Errorf("stream %q: unrecognized data class %d", m.StreamName, m.DataClass)
	}
	return nil
}

// Validate checks a table's own structure: a legal name, at least one
// column, unique column names, key-eligible primary key columns that
// exist, and a non-empty primary key.
func (t *TableMetadata) Validate() error {
	if t == nil {
		return errors.New("table metadata is nil")
	}
	if err := nonEmptyName("table", t.Name); err != nil {
		return err
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q: must declare at least one column", t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if err := nonEmptyName("column", c.Name); err != nil {
			return fmt.Errorf("table %q: %w", t.Name, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %q: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
	}

	if len(t.PrimaryKey) == 0 {
		return fmt.Errorf("table %q: primary key must not be empty", t.Name)
	}
	pkSeen := make(map[string]bool, len(t.PrimaryKey))
	for _, pk := range t.PrimaryKey {
		col, ok := t.FindColumn(pk)
		if !ok {
			return fmt.Errorf("table %q: primary key references unknown column %q", t.Name, pk)
		}
		if !col.Type.KeyEligible() {
			return fmt.Errorf("table %q: primary key column %q has non-key-eligible type %s", t.Name, pk, col.Type)
		}
		if pkSeen[pk] {
			return fmt.Errorf("table %q: primary key column %q repeated", t.Name, pk)
		}
		pkSeen[pk] = true
	}

	return nil
}

// Validate checks an index's own structure against its owning table: a
// legal name, at least one covered column, and every covered column
// key-eligible and present on the table.
func (idx *IndexMetadata) Validate(table *TableMetadata) error {
	if idx == nil {
		return errors.New("index metadata is nil")
	}
	if err := nonEmptyName("index", idx.Name); err != nil {
		return err
	}
	if len(idx.Columns) == 0 {
		return fmt.Errorf("index %q: must cover at least one column", idx.Name)
	}
	if table == nil {
		return fmt.Errorf("index %q: references unknown table", idx.Name)
	}
	for _, col := range idx.Columns {
		def, ok := table.FindColumn(col)
		if !ok {
			return fmt.Errorf("index %q: references unknown column %q on table %q", idx.Name, col, table.Name)
		}
		if !def.Type.KeyEligible() {
			return fmt.Errorf("index %q: column %q has non-key-eligible type %s", idx.Name, col, def.Type)
		}
	}
	return nil
}
