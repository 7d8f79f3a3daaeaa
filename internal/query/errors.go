package query

import (
	"fmt"
	"time"
)

// ColumnNotFoundError names the table and column a statement referenced
// that does not exist in the catalog.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("query: column %q not found on table %q", e.Column, e.Table)
}

// ParameterNotFoundError names the 1-based $n placeholder a statement
// referenced without a matching bound parameter.
type ParameterNotFoundError struct {
	Index int
}

func (e *ParameterNotFoundError) Error() string {
	return fmt.Sprintf("query: parameter $%d not bound", e.Index)
}

// ParseError wraps the underlying SQL parser's complaint.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return fmt.Sprintf("query: parse error: %s", e.Msg) }

// UnsupportedFeatureError names a construct this engine declines to
// plan or execute.
type UnsupportedFeatureError struct {
	Msg string
}

func (e *UnsupportedFeatureError) Error() string { return fmt.Sprintf("query: unsupported: %s", e.Msg) }

// TypeMismatchError reports a value that could not be coerced to the
// type a comparison or assignment required.
type TypeMismatchError struct {
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("query: type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// QueryTimeoutError reports a query that ran past its deadline. The
// executor checks the deadline between pipeline stages and while
// draining scans, so a timed-out query stops without mutating anything.
type QueryTimeoutError struct {
	Deadline time.Time
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("query: deadline %s exceeded", e.Deadline.Format(time.RFC3339Nano))
}

var (
	ErrTableNotFound = fmt.Errorf("query: table not found")
)
