package kernel

import (
	"errors"
	"fmt"
)

var (
	ErrStreamIdExists   = errors.New("kernel: stream id already exists")
	ErrStreamNameExists = errors.New("kernel: stream name already exists for tenant")
	ErrStreamNotFound   = errors.New("kernel: stream not found")

	ErrTableIdExists   = errors.New("kernel: table id already exists")
	ErrTableNameExists = errors.New("kernel: table name already exists")
	ErrTableNotFound   = errors.New("kernel: table not found")

	ErrIndexIdExists = errors.New("kernel: index id already exists")

	ErrUnexpectedStreamOffset = errors.New("kernel: unexpected stream offset")

	ErrColumnExists       = errors.New("kernel: column already exists")
	ErrColumnNotFound     = errors.New("kernel: column not found")
	ErrPrimaryKeyColumn   = errors.New("kernel: cannot drop a primary key column")
	ErrAlterTableConflict = errors.New("kernel: column named in both AddColumns and DropColumns")
)

// UnexpectedStreamOffsetError reports an AppendBatch whose
// ExpectedOffset did not match the stream's actual current offset. The
// command is rejected with no effect produced.
type UnexpectedStreamOffsetError struct {
	Expected uint64
	Actual   uint64
}

func (e *UnexpectedStreamOffsetError) Error() string {
	return fmt.Sprintf("%s: expected %d, actual %d", ErrUnexpectedStreamOffset, e.Expected, e.Actual)
}

func (e *UnexpectedStreamOffsetError) Unwrap() error {
	return ErrUnexpectedStreamOffset
}
