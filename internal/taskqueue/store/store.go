// Package store is the durable, table-per-kind persistence layer for the
// task queue. It is the only component that touches the database file; it
// exposes conditional-update primitives returning affected-row counts and
// ordered range queries. The retry-or-fail decision is made here, inside
// ReleaseFailure and RecoverStale; dependency checks, claim back-off and
// heartbeats live above it in the manager and executor packages.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

var (
	ErrNotFound = errors.New("task not found")
	ErrBusy     = errors.New("database is locked")
)

// Store is a single embedded-database file shared by every worker process
// that cooperates on one project's backlog.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the project's sqlite file with the
// pragmas mandated by the specification: WAL journaling, NORMAL
// synchronous writes, a generous busy timeout, and foreign-key checks on.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-65536)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY storms between
	// goroutines in this process; cross-process writers still serialize
	// through WAL + busy_timeout.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces SQLITE_BUSY in the error text; there is
	// no typed sentinel exported, so this is a substring match, same as
	// the reference implementation's "database is locked" check.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func unixOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(n.Int64, 0).UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringFromNull(n sql.NullString) string {
	if !n.Valid {
		return ""
	}
	return n.String
}

func intFromNull(n sql.NullInt64) int {
	if !n.Valid {
		return 0
	}
	return int(n.Int64)
}

func nullInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
