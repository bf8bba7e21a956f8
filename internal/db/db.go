// Package db opens the submission database for the supported drivers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Supported drivers
const (
	DriverOracle = "oracle"
	DriverSQLite = "sqlite"
)

// Config holds database connection configuration
type Config struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
}

// DB is an open database handle. It satisfies source.Querier.
type DB struct {
	conn   *sql.DB
	driver string
}

// Open connects to the database and verifies the connection with a ping
// bounded by cfg.ConnectTimeout
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty connection string")
	}

	var (
		conn *sql.DB
		err  error
	)
	switch cfg.Driver {
	case DriverOracle:
		conn = openOracle(cfg.DSN)
	case DriverSQLite:
		conn, err = openSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{conn: conn, driver: cfg.Driver}, nil
}

// Driver returns the driver name the handle was opened with
func (d *DB) Driver() string {
	return d.driver
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// QueryContext executes a query. Both drivers bind sql.Named arguments to
// :name placeholders.
func (d *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if d.conn == nil {
		return nil, fmt.Errorf("database not connected")
	}
	return d.conn.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement without returning rows
func (d *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if d.conn == nil {
		return nil, fmt.Errorf("database not connected")
	}
	return d.conn.ExecContext(ctx, query, args...)
}

// Ping checks if the database connection is alive
func (d *DB) Ping(ctx context.Context) error {
	if d.conn == nil {
		return fmt.Errorf("database not connected")
	}
	return d.conn.PingContext(ctx)
}
