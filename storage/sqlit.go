package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// busyTimeout is how long a connection waits for a lock held by another
// connection to the same file before giving up.
const busyTimeout = 5 * time.Second

const createTableStmt = `
CREATE TABLE IF NOT EXISTS %s (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    price     REAL NOT NULL,
    timestamp TEXT NOT NULL
)`

// SQLite keeps one table of observations per product in a single file.
// It holds exactly one connection and does no locking of its own: callers
// must not use one instance from several goroutines at once.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the SQLite file at dbPath. Product tables are
// created lazily on first insert. The caller must call Close() when done.
func NewSQLite(dbPath string, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}
	// The modernc.org driver is pure-go and works without CGO.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", escapeURIPath(dbPath), busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One handle for schema changes and writes alike.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	log.Info("SQLite store opened", zap.String("path", dbPath))
	return &SQLite{db: db, log: log, now: time.Now}, nil
}

// uriPathEscaper percent-encodes the bytes that end the path part of an
// SQLite file: URI.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func escapeURIPath(path string) string {
	return uriPathEscaper.Replace(path)
}

// EnsureTable creates the table with the observation schema if needed.
func (s *SQLite) EnsureTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	return s.ensureTable(ctx, table)
}

func (s *SQLite) ensureTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createTableStmt, quoteIdent(table))); err != nil {
		return fault(ErrSchema, "create table", table, err)
	}
	return nil
}

// Insert stores price stamped with the time of the call.
func (s *SQLite) Insert(ctx context.Context, table string, price float64) (Observation, error) {
	return s.InsertAt(ctx, table, price, s.now())
}

// InsertAt stores price with ts truncated to the minute. The table is
// created first if needed. Non-positive prices are stored as given.
func (s *SQLite) InsertAt(ctx context.Context, table string, price float64, ts time.Time) (Observation, error) {
	if err := ValidateTableName(table); err != nil {
		return Observation{}, err
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return Observation{}, fmt.Errorf("%w: price %v is not a finite number", ErrConstraint, price)
	}
	if ts.IsZero() {
		return Observation{}, fmt.Errorf("%w: timestamp is not set", ErrConstraint)
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return Observation{}, err
	}

	obs := Observation{Price: price, Timestamp: ts.Format(TimestampLayout)}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (price, timestamp) VALUES (?, ?)`, quoteIdent(table)),
		obs.Price, obs.Timestamp)
	if err != nil {
		return Observation{}, fault(ErrWrite, "insert", table, err)
	}
	if obs.ID, err = res.LastInsertId(); err != nil {
		return Observation{}, fault(ErrWrite, "insert", table, err)
	}

	s.log.Debug("observation persisted",
		zap.String("table", table),
		zap.Int64("id", obs.ID),
		zap.Float64("price", obs.Price),
		zap.String("timestamp", obs.Timestamp),
	)
	return obs, nil
}

// ResetSequence sets the stored AUTOINCREMENT counter of table back to 0.
// Rows are not touched. SQLite still never reuses a key that is present in
// the table, so the next id is one above the largest remaining id, or 1 if
// the table has been emptied out of band.
func (s *SQLite) ResetSequence(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE sqlite_sequence SET seq = 0 WHERE name = ? COLLATE NOCASE`, table); err != nil {
		return fault(ErrWrite, "reset sequence", table, err)
	}
	s.log.Info("sequence reset", zap.String("table", table))
	return nil
}

// IsNewMinimum reports whether candidate is strictly below the minimum of
// column across the table. A missing or empty table yields NoBaseline and
// is not created.
func (s *SQLite) IsNewMinimum(ctx context.Context, table string, candidate float64, column ...Column) (MinimumCheck, error) {
	col := ColumnPrice
	if len(column) > 0 {
		col = column[0]
	}
	switch col {
	case ColumnPrice, ColumnID:
	default:
		return MinimumCheck{}, fmt.Errorf("%w: %q", ErrInvalidColumn, col)
	}
	if err := ValidateTableName(table); err != nil {
		return MinimumCheck{}, err
	}

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return MinimumCheck{}, err
	}
	if !exists {
		return MinimumCheck{Outcome: NoBaseline}, nil
	}

	var prev sql.NullFloat64
	q := fmt.Sprintf(`SELECT MIN(%s) FROM %s`, quoteIdent(string(col)), quoteIdent(table))
	if err := s.db.QueryRowContext(ctx, q).Scan(&prev); err != nil {
		return MinimumCheck{}, fault(ErrQuery, "select minimum", table, err)
	}
	if !prev.Valid {
		return MinimumCheck{Outcome: NoBaseline}, nil
	}
	if candidate < prev.Float64 {
		return MinimumCheck{Outcome: NewMinimum, Previous: prev.Float64}, nil
	}
	return MinimumCheck{Outcome: NotMinimum}, nil
}

// History returns the observations of table ordered by id. A missing table
// has no history.
func (s *SQLite) History(ctx context.Context, table string) ([]Observation, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	exists, err := s.tableExists(ctx, table)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, price, timestamp FROM %s ORDER BY id`, quoteIdent(table)))
	if err != nil {
		return nil, fault(ErrQuery, "select history", table, err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.Price, &o.Timestamp); err != nil {
			return nil, fault(ErrQuery, "scan history", table, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fault(ErrQuery, "select history", table, err)
	}
	return out, nil
}

// Tables lists product tables, skipping SQLite's own bookkeeping tables.
func (s *SQLite) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, fault(ErrSchema, "list tables", "", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fault(ErrSchema, "list tables", "", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fault(ErrSchema, "list tables", "", err)
	}
	return names, nil
}

// tableExists matches names the way SQLite resolves identifiers, ignoring
// ASCII case.
func (s *SQLite) tableExists(ctx context.Context, table string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, table).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fault(ErrSchema, "lookup table", table, err)
	}
	return true, nil
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
