package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/schemachange/internal/script"
)

// Status of one execution attempt.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Entry is one row of the change-history table: a single attempted
// execution of a script, successful or not.
type Entry struct {
	Version       string // exact version string; empty for repeatable/always
	Description   string
	Script        string // script filename
	Type          script.Type
	Checksum      string
	ExecutionTime time.Duration
	Status        Status
	InstalledBy   string
	InstalledOn   time.Time
	ErrorMessage  string // set only when Status is Failed
}

// Identity returns the ledger key for this row: version for versioned
// scripts, filename otherwise.
func (e Entry) Identity() string {
	if e.Type == script.TypeVersioned {
		return e.Version
	}
	return e.Script
}

// State is the projected current state for one identity: the most recent
// row overall, and the most recent successful row if any. The planner
// needs both — a versioned script is settled by any prior success, a
// repeatable script re-runs on checksum drift against its last success.
type State struct {
	Latest      Entry
	LastSuccess *Entry
}

// History maps identity to projected state.
type History map[string]State

// ReadLatest projects the append-only history into latest-wins state per
// identity. Rows are scanned in (INSTALLED_ON, rowid) order so timestamp
// ties resolve by insertion order.
func (s *Store) ReadLatest(ctx context.Context) (History, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT VERSION, DESCRIPTION, SCRIPT, SCRIPT_TYPE, CHECKSUM,
		       EXECUTION_TIME, STATUS, INSTALLED_BY, INSTALLED_ON, ERROR_MESSAGE
		FROM %s
		ORDER BY INSTALLED_ON ASC, rowid ASC
	`, s.table))
	if err != nil {
		return nil, fmt.Errorf("read change history: %w", err)
	}
	defer rows.Close()

	history := make(History)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		state := history[e.Identity()]
		state.Latest = e
		if e.Status == StatusSuccess {
			success := e
			state.LastSuccess = &success
		}
		history[e.Identity()] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change history: %w", err)
	}
	return history, nil
}

// Append inserts one row. Insert-only by contract: the engine never
// updates or deletes history. Called immediately after each execution
// attempt so a crash mid-run leaves the ledger consistent with exactly
// the scripts that finished.
func (s *Store) Append(ctx context.Context, e Entry) error {
	var errMsg any
	if e.ErrorMessage != "" {
		errMsg = e.ErrorMessage
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s
		(VERSION, DESCRIPTION, SCRIPT, SCRIPT_TYPE, CHECKSUM,
		 EXECUTION_TIME, STATUS, INSTALLED_BY, INSTALLED_ON, ERROR_MESSAGE)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.table),
		e.Version,
		e.Description,
		e.Script,
		string(e.Type),
		e.Checksum,
		e.ExecutionTime.Milliseconds(),
		string(e.Status),
		e.InstalledBy,
		e.InstalledOn.UTC(),
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("append change-history row for %s: %w", e.Script, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(rows rowScanner) (Entry, error) {
	var (
		e           Entry
		typ         string
		status      string
		execMs      int64
		installedOn time.Time
		errMsg      *string
	)
	if err := rows.Scan(
		&e.Version,
		&e.Description,
		&e.Script,
		&typ,
		&e.Checksum,
		&execMs,
		&status,
		&e.InstalledBy,
		&installedOn,
		&errMsg,
	); err != nil {
		return Entry{}, fmt.Errorf("scan change-history row: %w", err)
	}
	e.Type = script.Type(typ)
	e.Status = Status(status)
	e.ExecutionTime = time.Duration(execMs) * time.Millisecond
	e.InstalledOn = installedOn
	if errMsg != nil {
		e.ErrorMessage = *errMsg
	}
	return e, nil
}
