package storage

import (
	"context"
	"fmt"
	"time"
)

// TimestampLayout is the on-disk format of the timestamp column:
// DD/MM/YYYY HH:MM, 24-hour clock, minute resolution, no zone.
const TimestampLayout = "02/01/2006 15:04"

// Observation is a single persisted price row.
type Observation struct {
	ID        int64   // auto-increment primary key
	Price     float64 // observed price
	Timestamp string  // formatted with TimestampLayout
}

// Time parses the stored timestamp in the local time zone.
func (o Observation) Time() (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, o.Timestamp, time.Local)
}

// Column names a numeric column that IsNewMinimum can compare against.
type Column string

const (
	ColumnPrice Column = "price"
	ColumnID    Column = "id"
)

// Outcome tells how a candidate relates to the recorded minimum.
type Outcome int

const (
	// NoBaseline means the table is missing or empty.
	NoBaseline Outcome = iota
	// NotMinimum means the candidate is equal to or above the recorded minimum.
	NotMinimum
	// NewMinimum means the candidate is strictly below the recorded minimum.
	NewMinimum
)

func (o Outcome) String() string {
	switch o {
	case NoBaseline:
		return "no-baseline"
	case NotMinimum:
		return "not-minimum"
	case NewMinimum:
		return "new-minimum"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MinimumCheck is the result of IsNewMinimum. Previous is only set when
// Outcome is NewMinimum.
type MinimumCheck struct {
	Outcome  Outcome
	Previous float64
}

// IsNew reports whether the candidate beat an existing baseline.
func (m MinimumCheck) IsNew() bool { return m.Outcome == NewMinimum }

// Store abstracts the per-product price history back-end.
type Store interface {
	// EnsureTable creates the product table if it does not exist yet.
	// Calling it repeatedly is a no-op.
	EnsureTable(ctx context.Context, table string) error

	// Insert appends an observation stamped with the current local time.
	Insert(ctx context.Context, table string, price float64) (Observation, error)

	// InsertAt appends an observation with an explicit timestamp.
	InsertAt(ctx context.Context, table string, price float64, ts time.Time) (Observation, error)

	// ResetSequence rewinds the auto-increment counter of the table
	// without touching existing rows.
	ResetSequence(ctx context.Context, table string) error

	// IsNewMinimum compares candidate against the minimum of column
	// (price when omitted) across all rows of the table.
	IsNewMinimum(ctx context.Context, table string, candidate float64, column ...Column) (MinimumCheck, error)

	// History returns every observation of the table ordered by id.
	History(ctx context.Context, table string) ([]Observation, error)

	// Tables lists the product tables present in the store.
	Tables(ctx context.Context) ([]string, error)

	// Close releases the underlying connection.
	Close() error
}
