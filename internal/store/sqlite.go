package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ EventJournal = (*SQLiteJournal)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       INTEGER NOT NULL,
	day      TEXT    NOT NULL,
	kind     TEXT    NOT NULL,
	mode     TEXT    NOT NULL DEFAULT '',
	source   TEXT    NOT NULL DEFAULT '',
	summary  TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_day ON events(day);
`

// SQLiteJournal implements EventJournal backed by a SQLite database.
type SQLiteJournal struct {
	db  *sql.DB
	loc *time.Location
}

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteJournal. Days are bucketed in the local time zone.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return &SQLiteJournal{db: db, loc: time.Local}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

// Record inserts an event.
func (s *SQLiteJournal) Record(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts, day, kind, mode, source, summary) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Time.UnixMilli(), s.dayKey(ev.Time), string(ev.Kind), ev.Mode, ev.Source, ev.Summary)
	if err != nil {
		return fmt.Errorf("recording %s event: %w", ev.Kind, err)
	}
	return nil
}

// Recent returns the newest events first.
func (s *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, kind, mode, source, summary FROM events ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent events: %w", err)
	}
	return scanEvents(rows)
}

// ByDate returns one day's events in insertion order.
func (s *SQLiteJournal) ByDate(ctx context.Context, day time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, kind, mode, source, summary FROM events WHERE day = ? ORDER BY ts, id`, s.dayKey(day))
	if err != nil {
		return nil, fmt.Errorf("querying events for %s: %w", s.dayKey(day), err)
	}
	return scanEvents(rows)
}

func (s *SQLiteJournal) dayKey(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			ev   Event
			ts   int64
			kind string
		)
		if err := rows.Scan(&ev.ID, &ts, &kind, &ev.Mode, &ev.Source, &ev.Summary); err != nil {
			return nil, err
		}
		ev.Time = time.UnixMilli(ts)
		ev.Kind = EventKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}
