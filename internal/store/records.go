package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Get returns a single record by id.
func (s *SQLiteStore) Get(ctx context.Context, table string, id int64) (*Record, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, table_name, fields, created_at, updated_at
		 FROM records WHERE table_name = ? AND id = ?`, table, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s %d: %w", table, id, err)
	}
	return rec, nil
}

// Insert stores a new record and returns its id.
func (s *SQLiteStore) Insert(ctx context.Context, table string, fields Fields) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	normalized, err := NormalizeFields(fields)
	if err != nil {
		return 0, err
	}
	raw, err := encodeFields(normalized)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (table_name, fields, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		table, raw, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table, err)
	}
	return res.LastInsertId()
}

// Update merges fields into an existing record and returns the updated record.
// A nil value removes the field.
func (s *SQLiteStore) Update(ctx context.Context, table string, id int64, fields Fields) (*Record, error) {
	existing, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}

	merged := existing.Fields.Clone()
	for name, v := range fields {
		if v == nil {
			delete(merged, name)
			continue
		}
		merged[name] = v
	}
	normalized, err := NormalizeFields(merged)
	if err != nil {
		return nil, err
	}
	raw, err := encodeFields(normalized)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE records SET fields = ?, updated_at = ? WHERE table_name = ? AND id = ?`,
		raw, time.Now().UTC(), table, id,
	); err != nil {
		return nil, fmt.Errorf("updating %s %d: %w", table, id, err)
	}
	return s.Get(ctx, table, id)
}

// Delete removes a record.
func (s *SQLiteStore) Delete(ctx context.Context, table string, id int64) error {
	if err := validTable(table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE table_name = ? AND id = ?`, table, id,
	)
	if err != nil {
		return fmt.Errorf("deleting %s %d: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

// Query returns every record in table matching filter, ordered by id.
func (s *SQLiteStore) Query(ctx context.Context, table string, filter Filter) ([]*Record, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, table_name, fields, created_at, updated_at
		 FROM records WHERE table_name = ? ORDER BY id`, table,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		if filter.Match(rec.Fields) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                  Record
		raw                  string
		createdAt, updatedAt sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Table, &raw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	rec.Fields = fields
	rec.CreatedAt = parseTimestamp(createdAt.String)
	rec.UpdatedAt = parseTimestamp(updatedAt.String)
	return &rec, nil
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
