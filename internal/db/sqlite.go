package db

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver, registered as "sqlite"
)

// openSQLite opens a SQLite database file or a file: URI
func openSQLite(dsn string) (*sql.DB, error) {
	conn, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	// An in-memory database lives and dies with its connection
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		conn.SetMaxOpenConns(1)
	}
	return conn, nil
}
