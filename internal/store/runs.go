package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Run is a persisted clustering run summary plus its partition.
type Run struct {
	ID            string    `json:"id"`
	Fields        []string  `json:"fields"`
	Metric        string    `json:"metric"`
	Criterion     string    `json:"criterion"`
	NumProblems   int       `json:"num_problems"`
	NumClusters   int       `json:"num_clusters"`
	NumSingletons int       `json:"num_singletons"`
	CreatedAt     time.Time `json:"created_at"`

	// Groups holds problem ids per partition group, in report order.
	// Only populated on SaveRun input; ListRuns leaves it empty.
	Groups [][]int64 `json:"groups,omitempty"`
}

// SaveRun persists a run and its group membership in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("saving run: missing run id")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, fields, metric, criterion, num_problems, num_clusters, num_singletons, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, strings.Join(run.Fields, ","), run.Metric, run.Criterion,
		run.NumProblems, run.NumClusters, run.NumSingletons, run.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO analysis_run_members (run_id, group_index, position, problem_id) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare run members: %w", err)
	}
	defer stmt.Close()

	for gi, group := range run.Groups {
		for pos, id := range group {
			if _, err := stmt.ExecContext(ctx, run.ID, gi, pos, id); err != nil {
				return fmt.Errorf("inserting run member %d: %w", id, err)
			}
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields, metric, criterion, num_problems, num_clusters, num_singletons, created_at
		 FROM analysis_runs
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			r         Run
			fields    string
			createdAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &fields, &r.Metric, &r.Criterion,
			&r.NumProblems, &r.NumClusters, &r.NumSingletons, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if fields != "" {
			r.Fields = strings.Split(fields, ",")
		}
		r.CreatedAt = parseTimestamp(createdAt.String)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// GetRunGroups returns the partition groups of a saved run.
func (s *SQLiteStore) GetRunGroups(ctx context.Context, runID string) ([][]int64, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_runs WHERE id = ?`, runID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("looking up run %s: %w", runID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT group_index, problem_id FROM analysis_run_members
		 WHERE run_id = ? ORDER BY group_index, position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading run %s groups: %w", runID, err)
	}
	defer rows.Close()

	var groups [][]int64
	for rows.Next() {
		var gi int
		var id int64
		if err := rows.Scan(&gi, &id); err != nil {
			return nil, fmt.Errorf("scanning run member: %w", err)
		}
		for len(groups) <= gi {
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], id)
	}
	return groups, rows.Err()
}
