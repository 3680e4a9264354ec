// Package store provides the SQLite record store for problemsift.
//
// The store mirrors a key-value table API: every table holds records made of
// an integer id plus a mapping of field name to value, where a value is either
// a scalar string or a list of strings. All tables live in one SQLite file:
// - Problems and the intake side tables (history, sub groups, people, ...)
// - Persisted clustering runs and their group membership
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.problemsift/problemsift.db"

// Record store table names.
const (
	TableProblems       = "Problems"
	TableProblemHistory = "Problem History"
	TableSubGroups      = "Sub Groups"
	TablePeople         = "People"
	TableGroups         = "Groups"
	TableOrganizations  = "Organizations"
)

// Tables lists every table the store accepts.
var Tables = []string{
	TableProblems,
	TableProblemHistory,
	TableSubGroups,
	TablePeople,
	TableGroups,
	TableOrganizations,
}

// ErrNotFound is returned when a record id does not exist in its table.
var ErrNotFound = errors.New("record not found")

// ErrUnknownTable is returned for table names outside Tables.
var ErrUnknownTable = errors.New("unknown table")

// Record is one row of a table.
type Record struct {
	ID        int64
	Table     string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the record store interface.
type Store interface {
	// Records
	Get(ctx context.Context, table string, id int64) (*Record, error)
	Insert(ctx context.Context, table string, fields Fields) (int64, error)
	Update(ctx context.Context, table string, id int64, fields Fields) (*Record, error)
	Delete(ctx context.Context, table string, id int64) error
	Query(ctx context.Context, table string, filter Filter) ([]*Record, error)

	// Clustering runs
	SaveRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	GetRunGroups(ctx context.Context, runID string) ([][]int64, error)

	// Maintenance
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	return newSQLiteStore(cfg)
}

func newSQLiteStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each new connection to ":memory:" is a fresh empty database.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func validTable(table string) error {
	for _, t := range Tables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
