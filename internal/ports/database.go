package ports

import "context"

// Row is a single result row keyed by column name.
type Row map[string]any

// Result describes the effect of a statement executed for side effects.
type Result struct {
	RowsAffected int64
}

// Database is the parameterized statement execution capability the session
// store depends on. Queries use positional `?` placeholders; adapters for
// engines with a different placeholder syntax rewrite them.
type Database interface {
	Prepare(query string) Statement
}

// Statement is a prepared query. Bind returns a statement carrying the
// positional parameters; the receiver is left untouched.
type Statement interface {
	Bind(args ...any) Statement
	// Run executes the statement for effect.
	Run(ctx context.Context) (Result, error)
	// First returns the first result row, or nil when nothing matched.
	First(ctx context.Context) (Row, error)
	// All returns every result row.
	All(ctx context.Context) ([]Row, error)
}

// DatabaseProvider hands out the shared database handle, or nil when none
// has been captured yet.
type DatabaseProvider interface {
	DB() Database
}
