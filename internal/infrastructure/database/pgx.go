package database

import (
	"context"
	"strconv"
	"strings"

	"archie-shopify-session-store/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPgx wraps a pgx pool. Queries written with `?` placeholders are
// rewritten to PostgreSQL's `$n` form.
func NewPgx(pool *pgxpool.Pool) ports.Database {
	return &pgxDatabase{pool: pool}
}

type pgxDatabase struct {
	pool *pgxpool.Pool
}

func (d *pgxDatabase) Prepare(query string) ports.Statement {
	return &pgxStatement{pool: d.pool, query: Rebind(query)}
}

type pgxStatement struct {
	pool  *pgxpool.Pool
	query string
	args  []any
}

func (s *pgxStatement) Bind(args ...any) ports.Statement {
	return &pgxStatement{pool: s.pool, query: s.query, args: append([]any(nil), args...)}
}

func (s *pgxStatement) Run(ctx context.Context) (ports.Result, error) {
	tag, err := s.pool.Exec(ctx, s.query, s.args...)
	if err != nil {
		return ports.Result{}, err
	}
	return ports.Result{RowsAffected: tag.RowsAffected()}, nil
}

func (s *pgxStatement) First(ctx context.Context) (ports.Row, error) {
	rows, err := s.collect(ctx, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (s *pgxStatement) All(ctx context.Context) ([]ports.Row, error) {
	return s.collect(ctx, 0)
}

func (s *pgxStatement) collect(ctx context.Context, limit int) ([]ports.Row, error) {
	rows, err := s.pool.Query(ctx, s.query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := []ports.Row{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(ports.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
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

// Rebind converts `?` placeholders to `$1`, `$2`, ... leaving question marks
// inside quoted strings and identifiers alone.
func Rebind(query string) string {
	var (
		b     strings.Builder
		n     int
		quote rune
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
