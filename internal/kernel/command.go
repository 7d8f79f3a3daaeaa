package kernel

import (
	"kimberlite/internal/ids"
	"kimberlite/internal/schema"
)

// Command is the closed set of state-changing operations the kernel
// can apply. Go has no native sum type, so Command is an interface
// with an unexported marker method; Apply recovers the concrete
// variant with a type switch.
type Command interface {
	isCommand()
}

// CreateStream registers a new stream under an explicitly chosen id.
// Rejected if StreamId or Name is already taken.
type CreateStream struct {
	StreamId  ids.StreamId
	Name      string
	DataClass schema.DataClass
	Placement schema.Placement
}

func (CreateStream) isCommand() {}

// CreateStreamWithAutoId registers a new stream whose local stream
// number is assigned from the tenant's next-available counter.
type CreateStreamWithAutoId struct {
	Name      string
	DataClass schema.DataClass
	Placement schema.Placement
}

func (CreateStreamWithAutoId) isCommand() {}

// AppendBatch appends events to an existing stream, guarded by an
// optimistic offset check: ExpectedOffset must equal the stream's
// current offset or the command is rejected without effect.
type AppendBatch struct {
	StreamId       ids.StreamId
	Events         [][]byte
	ExpectedOffset ids.Offset
}

func (AppendBatch) isCommand() {}

// CreateTable atomically creates a table and the backing stream that
// holds its row mutations.
type CreateTable struct {
	TableId    ids.TableId
	Name       string
	Columns    []schema.ColumnDef
	PrimaryKey []string
}

func (CreateTable) isCommand() {}

// DropTable removes a table's catalog entry. Its backing stream and
// the rows already appended to it are left untouched: nothing is ever
// deleted from the append-only log.
type DropTable struct {
	TableId ids.TableId
}

func (DropTable) isCommand() {}

// AlterTable adds and/or drops columns from an existing table's
// catalog entry. AddColumns are appended after the table's existing
// columns, in the order given; DropColumns are removed by name. A
// single command may not add and drop the same column name, and may
// never touch a primary key column.
type AlterTable struct {
	TableId     ids.TableId
	AddColumns  []schema.ColumnDef
	DropColumns []string
}

func (AlterTable) isCommand() {}

// CreateIndex registers a secondary index over an existing table.
type CreateIndex struct {
	IndexId ids.IndexId
	TableId ids.TableId
	Name    string
	Columns []string
}

func (CreateIndex) isCommand() {}

// RowOp identifies the kind of row mutation a MutateRow command
// performs.
type RowOp byte

const (
	RowInsert RowOp = 0
	RowUpdate RowOp = 1
	RowDelete RowOp = 2
)

func (op RowOp) String() string {
	switch op {
	case RowInsert:
		return "Insert"
	case RowUpdate:
		return "Update"
	case RowDelete:
		return "Delete"
	default:
		return "RowOp(unknown)"
	}
}

// MutateRow inserts, updates, or deletes one row of a table by
// appending its encoded form to the table's backing stream.
type MutateRow struct {
	TableId ids.TableId
	Op      RowOp
	RowData []byte
}

func (MutateRow) isCommand() {}
