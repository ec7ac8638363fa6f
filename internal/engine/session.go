package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SessionContext is the ambient execution context a script runs under.
// Fields left empty are not managed for this run.
type SessionContext struct {
	Role      string
	Warehouse string
	Database  string
	Schema    string
}

// Session is the execution collaborator: one per run, acquired once and
// released on every exit path. The orchestrator resets the context before
// each script so a script's own USE statements never leak into the next.
type Session interface {
	// SetContext applies an ambient context.
	SetContext(ctx context.Context, sc SessionContext) error

	// ResetContext restores the run's configured default context.
	ResetContext(ctx context.Context) error

	// Execute runs one script's effective content and reports how long
	// the backend took. Statement splitting, transactions and timeouts
	// belong to the backend, not this engine.
	Execute(ctx context.Context, sqlText string) (time.Duration, error)

	Close() error
}

// SQLSession executes scripts over database/sql. The connection is shared
// with the ledger store: history rows land in the same backend the
// scripts run against.
type SQLSession struct {
	db       *sql.DB
	defaults SessionContext
	queryTag string
}

var _ Session = (*SQLSession)(nil)

// NewSQLSession wraps an open connection. The queryTag, when non-empty,
// is prepended to every executed script as a comment so backend query
// logs can be correlated with a run.
func NewSQLSession(db *sql.DB, defaults SessionContext, queryTag string) *SQLSession {
	return &SQLSession{db: db, defaults: defaults, queryTag: queryTag}
}

// SetContext emits a USE statement per populated field. Backends without
// a USE concept (sqlite) simply run with an empty default context.
func (s *SQLSession) SetContext(ctx context.Context, sc SessionContext) error {
	statements := []struct {
		keyword string
		value   string
	}{
		{"ROLE", sc.Role},
		{"WAREHOUSE", sc.Warehouse},
		{"DATABASE", sc.Database},
		{"SCHEMA", sc.Schema},
	}
	for _, st := range statements {
		if st.value == "" {
			continue
		}
		stmt := fmt.Sprintf("USE %s %s", st.keyword, quoteIdent(st.value))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set session %s: %w", strings.ToLower(st.keyword), err)
		}
	}
	return nil
}

// ResetContext re-applies the run's configured defaults.
func (s *SQLSession) ResetContext(ctx context.Context) error {
	return s.SetContext(ctx, s.defaults)
}

// Execute runs one script and times it.
func (s *SQLSession) Execute(ctx context.Context, sqlText string) (time.Duration, error) {
	if s.queryTag != "" {
		sqlText = fmt.Sprintf("-- query_tag: %s\n%s", s.queryTag, sqlText)
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, sqlText)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, err
	}
	return elapsed, nil
}

// Close releases the session. The connection itself belongs to the
// ledger store, which closes it once per run.
func (s *SQLSession) Close() error {
	return nil
}

// quoteIdent double-quotes an identifier for USE statements, doubling any
// embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
