package database

import (
	"context"
	"database/sql"
	"fmt"

	"archie-shopify-session-store/internal/ports"
)

// NewSQL wraps a database/sql handle. The driver must accept `?` placeholders.
func NewSQL(db *sql.DB) ports.Database {
	return &sqlDatabase{db: db}
}

type sqlDatabase struct {
	db *sql.DB
}

func (d *sqlDatabase) Prepare(query string) ports.Statement {
	return &sqlStatement{db: d.db, query: query}
}

type sqlStatement struct {
	db    *sql.DB
	query string
	args  []any
}

func (s *sqlStatement) Bind(args ...any) ports.Statement {
	return &sqlStatement{db: s.db, query: s.query, args: append([]any(nil), args...)}
}

func (s *sqlStatement) Run(ctx context.Context) (ports.Result, error) {
	res, err := s.db.ExecContext(ctx, s.query, s.args...)
	if err != nil {
		return ports.Result{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ports.Result{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return ports.Result{RowsAffected: affected}, nil
}

func (s *sqlStatement) First(ctx context.Context) (ports.Row, error) {
	rows, err := s.collect(ctx, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (s *sqlStatement) All(ctx context.Context) ([]ports.Row, error) {
	return s.collect(ctx, 0)
}

// collect collects at most limit rows, or every row when limit is 0
func (s *sqlStatement) collect(ctx context.Context, limit int) ([]ports.Row, error) {
	rows, err := s.db.QueryContext(ctx, s.query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := []ports.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(ports.Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		result = append(result, row)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
