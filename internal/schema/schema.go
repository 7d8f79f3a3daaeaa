// Package schema is the single source of truth for stream, table, and
// index metadata: the portable, dialect-free catalog shapes the kernel's
// state and the projection store key encoding are built on.
package schema

import (
	"fmt"
	"strings"

	"kimberlite/internal/ids"
)

// DataClass is the compliance sensitivity of a stream, ordered from
// least to most restrictive. Ordering matters: a user-supplied class
// must be at least as restrictive as the class inferred from a stream's
// name (see policy.InferDataClass).
type DataClass byte

const (
	DataClassPublic       DataClass = 0
	DataClassDeidentified DataClass = 1
	DataClassConfidential DataClass = 2
	DataClassPII          DataClass = 3
	DataClassFinancial    DataClass = 4
	DataClassPCI          DataClass = 5
	DataClassSensitive    DataClass = 6
	DataClassPHI          DataClass = 7
)

func (c DataClass) String() string {
	switch c {
	case DataClassPublic:
		return "Public"
	case DataClassDeidentified:
		return "Deidentified"
	case DataClassConfidential:
		return "Confidential"
	case DataClassPII:
		return "PII"
	case DataClassFinancial:
		return "Financial"
	case DataClassPCI:
		return "PCI"
	case DataClassSensitive:
		return "Sensitive"
	case DataClassPHI:
		return "PHI"
	default:
		return fmt.Sprintf("DataClass(%d)", byte(c))
	}
}

// AtLeastAsRestrictiveAs reports whether c is at least as restrictive as
// floor, per the fixed DataClass ordering.
func (c DataClass) AtLeastAsRestrictiveAs(floor DataClass) bool {
	return c >= floor
}

func ValidDataClass(c DataClass) bool {
	return c <= DataClassPHI
}

// RegionTag is the leading byte used to encode a Region in the
// deterministic state hash.
type RegionTag byte

const (
	RegionUSEast1      RegionTag = 0
	RegionAPSoutheast2 RegionTag = 1
	RegionCustom       RegionTag = 255
)

// Region names a geographic placement constraint. Only RegionCustom
// carries a Name; the named regions are fixed, small-tag enum members.
type Region struct {
	Tag  RegionTag
	Name string // meaningful only when Tag == RegionCustom
}

func (r Region) String() string {
	switch r.Tag {
	case RegionUSEast1:
		return "us-east-1"
	case RegionAPSoutheast2:
		return "ap-southeast-2"
	case RegionCustom:
		return r.Name
	default:
		return fmt.Sprintf("Region(%d)", byte(r.Tag))
	}
}

// PlacementKind is the leading byte used to encode a Placement in the
// deterministic state hash.
type PlacementKind byte

const (
	PlacementRegion PlacementKind = 0
	PlacementGlobal PlacementKind = 1
)

// Placement is a stream's geographic storage constraint: either Global
// (no constraint) or pinned to a single Region.
type Placement struct {
	Kind   PlacementKind
	Region Region // meaningful only when Kind == PlacementRegion
}

func GlobalPlacement() Placement {
	return Placement{Kind: PlacementGlobal}
}

func RegionPlacement(r Region) Placement {
	return Placement{Kind: PlacementRegion, Region: r}
}

func (p Placement) String() string {
	if p.Kind == PlacementGlobal {
		return "Global"
	}
	return fmt.Sprintf("Region(%s)", p.Region)
}

// StreamMetadata describes one append-only stream in the kernel's
// catalog: its identity, its compliance classification, its geographic
// placement, and its current offset: the number of events it has
// durably accepted, which is also the offset of the next event.
type StreamMetadata struct {
	StreamId      ids.StreamId
	StreamName    string
	DataClass     DataClass
	Placement     Placement
	CurrentOffset ids.Offset
}

// DataType is the portable column type used for key encoding and value
// decoding; it intentionally excludes any dialect-specific storage
// representation.
type DataType byte

const (
	DataTypeInt64     DataType = 0
	DataTypeFloat64   DataType = 1
	DataTypeDecimal   DataType = 2
	DataTypeText      DataType = 3
	DataTypeBytes     DataType = 4
	DataTypeBoolean   DataType = 5
	DataTypeDate      DataType = 6
	DataTypeTime      DataType = 7
	DataTypeTimestamp DataType = 8
	DataTypeUUID      DataType = 9
	DataTypeJSON      DataType = 10
)

func (t DataType) String() string {
	switch t {
	case DataTypeInt64:
		return "int64"
	case DataTypeFloat64:
		return "float64"
	case DataTypeDecimal:
		return "decimal"
	case DataTypeText:
		return "text"
	case DataTypeBytes:
		return "bytes"
	case DataTypeBoolean:
		return "boolean"
	case DataTypeDate:
		return "date"
	case DataTypeTime:
		return "time"
	case DataTypeTimestamp:
		return "timestamp"
	case DataTypeUUID:
		return "uuid"
	case DataTypeJSON:
		return "json"
	default:
		return fmt.Sprintf("DataType(%d)", byte(t))
	}
}

// KeyEligible reports whether columns of this type may participate in a
// primary key or index key: JSON is never a key component.
func (t DataType) KeyEligible() bool {
	return t != DataTypeJSON
}

// ColumnDef describes one column of a table: its name, portable type,
// and nullability.
type ColumnDef struct {
	Name     string
	Type     DataType
	Nullable bool
}

// TableMetadata describes one logical table: its columns, its primary
// key (by column name, in declaration order), and the stream backing
// its row mutations.
type TableMetadata struct {
	TableId    ids.TableId
	Name       string
	Columns    []ColumnDef
	PrimaryKey []string
	StreamId   ids.StreamId
}

// BackingStreamName returns the conventional name of the stream a table
// is backed by.
func BackingStreamName(tableName string) string {
	return "__table_" + tableName
}

// FindColumn looks up a column by name.
func (t *TableMetadata) FindColumn(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// IndexMetadata describes one secondary index: the columns it covers,
// in order, over a single table.
type IndexMetadata struct {
	IndexId ids.IndexId
	Name    string
	TableId ids.TableId
	Columns []string
}

func isSnakeCase(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		isUnderscore := r == '_'
		if i == 0 && (isDigit || isUnderscore) {
			return false
		}
		if !isLower && !isDigit && !isUnderscore {
			return false
		}
	}
	return true
}

func nonEmptyName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s name is empty", kind)
	}
	if !isSnakeCase(name) {
		return fmt.Errorf("%s name %q must be snake_case", kind, name)
	}
	return nil
}
