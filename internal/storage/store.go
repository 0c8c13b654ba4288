// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 The BuffaLogs Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/buffalogs/buffalogs

// Package storage implements the typed persistence layer on sqlite via
// database/sql. It is the only writer of persistent state; every other
// component goes through the Store (or a transaction-bound view of it
// obtained with WithTx).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/buffalogs/buffalogs/internal/logging"
	"github.com/buffalogs/buffalogs/internal/models"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Store methods run against either, so the same code serves both the
// autocommit path and the per-user window transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the sqlite-backed repository.
type Store struct {
	db *sql.DB
	q  querier
}

// Open opens (or creates) the database at path and initializes the schema.
// busyTimeout bounds how long a writer waits on a locked database.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", models.ErrStorage, path, err)
	}
	// sqlite allows one writer; serializing through a single connection
	// avoids SQLITE_BUSY churn under concurrent window workers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Info().Str("path", path).Msg("storage opened")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn inside a transaction. The Store passed to fn is bound to
// the transaction; all reads observe writes made earlier in fn. Any error
// rolls the whole unit back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fmt.Errorf("%w: store is transaction-bound", models.ErrStorage)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", models.ErrStorage, err)
	}
	if err := fn(&Store{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", models.ErrStorage, err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE,
	risk_score TEXT NOT NULL DEFAULT 'No risk',
	created    TEXT NOT NULL,
	updated    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS logins (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id            INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	event_id           TEXT NOT NULL DEFAULT '',
	source_index       TEXT NOT NULL DEFAULT '',
	ip                 TEXT NOT NULL,
	timestamp          TEXT NOT NULL,
	latitude           REAL NOT NULL,
	longitude          REAL NOT NULL,
	country            TEXT NOT NULL DEFAULT '',
	user_agent         TEXT NOT NULL DEFAULT '',
	device_fingerprint TEXT NOT NULL DEFAULT '',
	created            TEXT NOT NULL,
	updated            TEXT NOT NULL,
	UNIQUE(user_id, source_index, country, user_agent)
);
CREATE INDEX IF NOT EXISTS idx_logins_user_ts ON logins(user_id, timestamp);

CREATE TABLE IF NOT EXISTS user_ips (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	ip      TEXT NOT NULL,
	created TEXT NOT NULL,
	updated TEXT NOT NULL,
	UNIQUE(user_id, ip)
);

CREATE TABLE IF NOT EXISTS alerts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	login_raw_data  TEXT NOT NULL DEFAULT '{}',
	description     TEXT NOT NULL DEFAULT '',
	is_vip          INTEGER NOT NULL DEFAULT 0,
	is_filtered     INTEGER NOT NULL DEFAULT 0,
	filter_type     TEXT NOT NULL DEFAULT '[]',
	notified_status TEXT NOT NULL DEFAULT '{}',
	created         TEXT NOT NULL,
	updated         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id, name);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created);

CREATE TABLE IF NOT EXISTS policy_config (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	data    TEXT NOT NULL,
	created TEXT NOT NULL,
	updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_settings (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	task_name      TEXT NOT NULL,
	execution_mode TEXT NOT NULL,
	start_date     TEXT NOT NULL DEFAULT '',
	end_date       TEXT NOT NULL DEFAULT '',
	in_flight      INTEGER NOT NULL DEFAULT 0,
	claimed_at     TEXT NOT NULL DEFAULT '',
	UNIQUE(task_name, execution_mode)
);
`

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: init schema: %v", models.ErrStorage, err)
	}
	return nil
}

// Timestamps are stored as fixed-width RFC 3339 in UTC so lexical ordering
// equals chronological ordering. RFC3339Nano would trim trailing fractional
// zeros and break TEXT comparisons across whole-second values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
