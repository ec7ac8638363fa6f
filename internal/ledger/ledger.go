// Package ledger reads and appends the change-history table: the durable,
// append-only record of every attempted script execution in the target
// backend. Rows are never updated or deleted; current state per identity
// is a latest-wins projection computed at read time.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultTable is the change-history table name used when the
// configuration doesn't override it.
const DefaultTable = "CHANGE_HISTORY"

// Table names are interpolated into DDL, so they are restricted to plain
// (optionally dot-qualified) identifiers.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

// Store wraps the database holding the change-history table.
type Store struct {
	db    *sql.DB
	table string
}

// Open connects to the target backend and returns a Store bound to the
// named change-history table. The table is not touched here; call Ensure
// before reading or appending.
//
// For the sqlite3 driver the connection is configured the same way for
// every run: a single writer connection with WAL journaling and a busy
// timeout, so a crashed run never leaves a hot lock behind.
func Open(driver, dsn, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid change-history table name %q", table)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db, table: table}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying connection so the execution session can share
// it: ledger rows and script execution land in the same backend.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Table returns the change-history table name.
func (s *Store) Table() string {
	return s.table
}

// Ensure verifies the change-history table is in a usable state before
// any script executes.
//
// Rules:
//   - table exists, no initial-deployment declaration: nothing to do
//   - table exists, initial deployment declared: *ConfigurationError
//     (the declaration would mask real history)
//   - table missing, createIfMissing or initialDeployment set: create it
//   - table missing otherwise: *ConfigurationError naming the flag
func (s *Store) Ensure(ctx context.Context, createIfMissing, initialDeployment bool) error {
	exists, err := s.tableExists(ctx)
	if err != nil {
		return fmt.Errorf("probe change-history table: %w", err)
	}

	if exists {
		if initialDeployment {
			return &ConfigurationError{
				Message: fmt.Sprintf("change-history table %s already exists but this run was declared an initial deployment; remove the --initial-deployment flag", s.table),
			}
		}
		return nil
	}

	if !createIfMissing && !initialDeployment {
		return &ConfigurationError{
			Message: fmt.Sprintf("change-history table %s does not exist; pass --create-change-history-table to create it, or --initial-deployment if this is the first run against an empty target", s.table),
		}
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			VERSION        TEXT,
			DESCRIPTION    TEXT,
			SCRIPT         TEXT,
			SCRIPT_TYPE    TEXT,
			CHECKSUM       TEXT,
			EXECUTION_TIME INTEGER,
			STATUS         TEXT,
			INSTALLED_BY   TEXT,
			INSTALLED_ON   TIMESTAMP,
			ERROR_MESSAGE  TEXT
		)`, s.table)); err != nil {
		return fmt.Errorf("create change-history table %s: %w", s.table, err)
	}
	return nil
}

// tableExists probes for the table with a no-op query rather than
// catalog introspection, which keeps the probe portable across backends.
// Only a recognized missing-relation error reads as absence; anything
// else (lost connection, permissions) is a real failure the caller must
// see instead of being steered toward table creation.
func (s *Store) tableExists(ctx context.Context) (bool, error) {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", s.table))
	if err == nil {
		return true, nil
	}
	if isMissingTable(err) {
		return false, nil
	}
	return false, err
}

// isMissingTable matches the missing-relation error text of common
// database/sql drivers; there is no portable error code for it.
func isMissingTable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") || // sqlite3
		strings.Contains(msg, "does not exist") || // postgres
		strings.Contains(msg, "doesn't exist") // mysql
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}
