// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists inputs, solutions and run history. DuckDB is the
// working database (CSV ingest and export run through it); any database
// reachable through database/sql with $n placeholders can hold run history,
// Postgres via pgx included.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
)

const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "pgx"

	// DatabaseFile is the DuckDB file created inside the state directory.
	DatabaseFile = "depot.duckdb"
)

// Driver returns the database/sql driver for a DSN: postgres URLs go to
// pgx, everything else is a DuckDB path, the empty string being in-memory.
func Driver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}

	return DriverDuckDB
}

// Open opens the database behind dsn.
func Open(dsn string) (*sql.DB, error) {
	driver := Driver(dsn)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}

	return db, nil
}

// OpenState opens (creating it if needed) the DuckDB file inside dir.
func OpenState(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	return Open(filepath.Join(dir, DatabaseFile))
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func execAll(db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
