// Package schemaload reads a declarative TOML schema file and compiles
// it into the kernel.CreateTable/kernel.CreateIndex commands that
// bootstrap a tenant's catalog: the TOML document is decoded into a
// plain struct, validated, and only then compiled into commands.
package schemaload

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"kimberlite/internal/ids"
	"kimberlite/internal/kernel"
	"kimberlite/internal/schema"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// schemaFile is the top-level shape of a declarative schema document:
//
//	[[tables]]
//	name = "patients"
//	primary_key = ["id"]
//
//	  [[tables.columns]]
//	  name = "id"
//	  type = "uuid"
//
//	  [[tables.columns]]
//	  name = "mrn"
//	  type = "text"
//	  nullable = false
//
//	  [[tables.indexes]]
//	  name = "by_mrn"
//	  columns = ["mrn"]
type schemaFile struct {
	Tables []tomlTable `toml:"tables"`
}

type tomlTable struct {
	Name       string       `toml:"name"`
	DataClass  string       `toml:"data_class"`
	Columns    []tomlColumn `toml:"columns"`
	PrimaryKey []string     `toml:"primary_key"`
	Indexes    []tomlIndex  `toml:"indexes"`
}

type tomlColumn struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Nullable bool   `toml:"nullable"`
}

type tomlIndex struct {
	Name    string   `toml:"name"`
	Columns []string `toml:"columns"`
}

// Plan is the compiled result of loading a schema document: one
// CreateTable command per table, in declaration order, each followed
// immediately by that table's CreateIndex commands. Applying Commands
// in order against a fresh tenant reproduces the declared schema.
type Plan struct {
	Commands []kernel.Command
}

// IdAllocator hands out the table and index ids a Plan's commands are
// built with. The kernel has no auto-id notion for tables or indexes
// (unlike streams), so the caller supplies the counters — typically
// seeded from kernel.State.NextTableId / NextIndexId.
type IdAllocator struct {
	NextTableId ids.TableId
	NextIndexId ids.IndexId
}

// LoadFile reads and compiles the schema document at path.
func LoadFile(path string, ids *IdAllocator) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schemaload: open %q: %w", path, err)
	}
	defer f.Close()
	return Load(f, ids)
}

// Load reads and compiles a schema document from r.
func Load(r io.Reader, alloc *IdAllocator) (*Plan, error) {
	var sf schemaFile
	if _, err := toml.NewDecoder(r).Decode(&sf); err != nil {
		return nil, fmt.Errorf("schemaload: decode: %w", err)
	}

	seen := make(map[string]bool, len(sf.Tables))
	plan := &Plan{}
	for _, t := range sf.Tables {
		if seen[t.Name] {
			return nil, fmt.Errorf("schemaload: table %q declared twice", t.Name)
		}
		seen[t.Name] = true

		cmd, indexCmds, err := convertTable(&t, alloc)
		if err != nil {
			return nil, fmt.Errorf("schemaload: table %q: %w", t.Name, err)
		}
		plan.Commands = append(plan.Commands, cmd)
		plan.Commands = append(plan.Commands, indexCmds...)
	}
	return plan, nil
}

func convertTable(t *tomlTable, alloc *IdAllocator) (kernel.CreateTable, []kernel.Command, error) {
	if !identifierRe.MatchString(t.Name) {
		return kernel.CreateTable{}, nil, fmt.Errorf("invalid table name %q", t.Name)
	}
	if len(t.Columns) == 0 {
		return kernel.CreateTable{}, nil, fmt.Errorf("no columns declared")
	}

	columns := make([]schema.ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !identifierRe.MatchString(c.Name) {
			return kernel.CreateTable{}, nil, fmt.Errorf("invalid column name %q", c.Name)
		}
		dt, err := parseDataType(c.Type)
		if err != nil {
			return kernel.CreateTable{}, nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		columns = append(columns, schema.ColumnDef{Name: c.Name, Type: dt, Nullable: c.Nullable})
	}

	primaryKey := t.PrimaryKey
	if len(primaryKey) == 0 {
		return kernel.CreateTable{}, nil, fmt.Errorf("no primary_key declared")
	}

	tableId := alloc.NextTableId
	alloc.NextTableId++

	cmd := kernel.CreateTable{
		TableId:    tableId,
		Name:       t.Name,
		Columns:    columns,
		PrimaryKey: primaryKey,
	}

	var indexCmds []kernel.Command
	for _, idx := range t.Indexes {
		if !identifierRe.MatchString(idx.Name) {
			return kernel.CreateTable{}, nil, fmt.Errorf("invalid index name %q", idx.Name)
		}
		if len(idx.Columns) == 0 {
			return kernel.CreateTable{}, nil, fmt.Errorf("index %q: no columns declared", idx.Name)
		}
		indexId := alloc.NextIndexId
		alloc.NextIndexId++
		indexCmds = append(indexCmds, kernel.CreateIndex{
			IndexId: indexId,
			TableId: tableId,
			Name:    idx.Name,
			Columns: idx.Columns,
		})
	}

	return cmd, indexCmds, nil
}

func parseDataType(raw string) (schema.DataType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "int64", "int", "integer", "bigint":
		return schema.DataTypeInt64, nil
	case "float64", "float", "double":
		return schema.DataTypeFloat64, nil
	case "decimal", "numeric":
		return schema.DataTypeDecimal, nil
	case "text", "string", "varchar":
		return schema.DataTypeText, nil
	case "bytes", "blob", "binary":
		return schema.DataTypeBytes, nil
	case "boolean", "bool":
		return schema.DataTypeBoolean, nil
	case "date":
		return schema.DataTypeDate, nil
	case "time":
		return schema.DataTypeTime, nil
	case "timestamp", "datetime":
		return schema.DataTypeTimestamp, nil
	case "uuid":
		return schema.DataTypeUUID, nil
	case "json":
		return schema.DataTypeJSON, nil
	default:
		return 0, fmt.Errorf("unrecognized data type %q", raw)
	}
}

// DataClassName parses a schema document's data_class string, if any
// was declared. Kept separate from convertTable so Load never needs to
// import the policy package just to resolve an optional override.
func DataClassName(raw string) (schema.DataClass, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PUBLIC":
		return schema.DataClassPublic, true
	case "DEIDENTIFIED":
		return schema.DataClassDeidentified, true
	case "CONFIDENTIAL":
		return schema.DataClassConfidential, true
	case "PII":
		return schema.DataClassPII, true
	case "FINANCIAL":
		return schema.DataClassFinancial, true
	case "PCI":
		return schema.DataClassPCI, true
	case "SENSITIVE":
		return schema.DataClassSensitive, true
	case "PHI":
		return schema.DataClassPHI, true
	default:
		return 0, false
	}
}
