package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTableName is returned for names outside the safe identifier set.
	ErrInvalidTableName = errors.New("invalid table name")
	// ErrInvalidColumn is returned when IsNewMinimum is asked for a non-numeric column.
	ErrInvalidColumn = errors.New("invalid column")
	// ErrConstraint is returned for values that would land as NULL in a NOT NULL column.
	ErrConstraint = errors.New("constraint violation")

	// ErrSchema classifies failures creating or looking up tables.
	ErrSchema = errors.New("schema fault")
	// ErrWrite classifies failures of insert and update statements.
	ErrWrite = errors.New("write fault")
	// ErrQuery classifies failures of read statements.
	ErrQuery = errors.New("query fault")
)

// Error carries the failing operation and table next to the engine error.
type Error struct {
	Op    string // e.g. "create table", "insert"
	Table string
	Kind  error // one of ErrSchema, ErrWrite, ErrQuery
	Err   error // engine error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %q: %v: %v", e.Op, e.Table, e.Kind, e.Err)
}

// Unwrap exposes both the classification and the engine error to errors.Is.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func fault(kind error, op, table string, err error) error {
	return &Error{Op: op, Table: table, Kind: kind, Err: err}
}
