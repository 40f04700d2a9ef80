package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"archie-shopify-session-store/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrUnsupportedDriver  = errors.New("unsupported database driver")
	ErrEmptyConnectionURL = errors.New("empty database connection url")
	ErrHealthcheckFailed  = errors.New("healthcheck failed, connection is not available")
)

// Config describes how to reach the SQL session database
type Config struct {
	Driver        string
	URL           string
	RetryAttempts int
	RetryInterval time.Duration
}

// Connection owns an open SQL handle and exposes it through ports.Database
type Connection struct {
	driver string
	db     ports.Database
	sqlDB  *sql.DB
	pool   *pgxpool.Pool
}

// Open connects to the configured database and verifies it answers a ping.
// PostgreSQL connections are retried with a fixed interval.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Connection, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyConnectionURL
	}

	switch cfg.Driver {
	case DriverSQLite, "":
		db, err := sql.Open("sqlite", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// A single connection keeps ":memory:" databases alive and
		// serializes writers.
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
		}
		logger.Info().Str("driver", DriverSQLite).Msg("Connected to session database")
		return &Connection{driver: DriverSQLite, db: NewSQL(db), sqlDB: db}, nil

	case DriverPostgres:
		pool, err := connectPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("driver", DriverPostgres).Msg("Connected to session database")
		return &Connection{driver: DriverPostgres, db: NewPgx(pool), pool: pool}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

func connectPostgres(ctx context.Context, cfg Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Failed to connect to postgres")

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres: %w", lastErr)
}

// Database returns the statement execution handle
func (c *Connection) Database() ports.Database {
	return c.db
}

// Driver returns the driver the connection was opened with
func (c *Connection) Driver() string {
	return c.driver
}

// Healthcheck returns a function that pings the underlying database
func (c *Connection) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		var err error
		if c.pool != nil {
			err = c.pool.Ping(ctx)
		} else {
			err = c.sqlDB.PingContext(ctx)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Close releases the underlying handle
func (c *Connection) Close() error {
	if c.pool != nil {
		c.pool.Close()
		return nil
	}
	return c.sqlDB.Close()
}

// stdDB returns a database/sql view of the connection for tooling that
// only speaks database/sql.
func (c *Connection) stdDB() *sql.DB {
	if c.pool != nil {
		return stdlib.OpenDBFromPool(c.pool)
	}
	return c.sqlDB
}
