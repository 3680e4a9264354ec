package store

import (
	"fmt"
)

// migrate creates all tables if they don't exist.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		// Generic table/record storage. fields is a JSON object.
		`CREATE TABLE IF NOT EXISTS records (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name  TEXT NOT NULL,
			fields      TEXT NOT NULL DEFAULT '{}',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_table ON records(table_name, id)`,

		// Persisted clustering runs
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id             TEXT PRIMARY KEY,
			fields         TEXT NOT NULL,
			metric         TEXT NOT NULL,
			criterion      TEXT NOT NULL,
			num_problems   INTEGER NOT NULL,
			num_clusters   INTEGER NOT NULL,
			num_singletons INTEGER NOT NULL,
			created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_run_members (
			run_id      TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
			group_index INTEGER NOT NULL,
			position    INTEGER NOT NULL,
			problem_id  INTEGER NOT NULL,
			PRIMARY KEY (run_id, group_index, position)
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return tx.Commit()
}
