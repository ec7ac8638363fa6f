package engine

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "target.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLSession_Execute(t *testing.T) {
	db := openSQLite(t)
	s := NewSQLSession(db, SessionContext{}, "")
	ctx := context.Background()

	dur, err := s.Execute(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dur.Nanoseconds(), int64(0))

	_, err = s.Execute(ctx, "NOT SQL AT ALL")
	assert.Error(t, err)
}

func TestSQLSession_QueryTagPrepended(t *testing.T) {
	db := openSQLite(t)
	s := NewSQLSession(db, SessionContext{}, "release-42;schemachange=run-1")
	ctx := context.Background()

	// The tag rides along as a leading comment; the statement still runs.
	_, err := s.Execute(ctx, "CREATE TABLE tagged (id INTEGER)")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tagged").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestSQLSession_ResetContextNoDefaultsIsNoop(t *testing.T) {
	db := openSQLite(t)
	// sqlite has no USE concept; empty defaults mean reset touches nothing.
	s := NewSQLSession(db, SessionContext{}, "")
	assert.NoError(t, s.ResetContext(context.Background()))
}

func TestSQLSession_CloseLeavesSharedConnectionOpen(t *testing.T) {
	db := openSQLite(t)
	s := NewSQLSession(db, SessionContext{}, "")
	require.NoError(t, s.Close())

	// The connection is owned by the ledger store, not the session.
	assert.NoError(t, db.Ping())
}
