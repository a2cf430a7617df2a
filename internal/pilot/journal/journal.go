// Package journal keeps a SQLite record of every command sent to the drone.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Result values stored with each entry.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultSkipped  = "skipped"
	ResultRejected = "rejected"
)

// Source values stored with each entry.
const (
	SourceRoute       = "route"
	SourceInteractive = "interactive"
)

// Entry is one journaled command.
type Entry struct {
	ID       int64         `json:"id"`
	RunID    string        `json:"runId,omitempty"`
	Source   string        `json:"source"`
	Line     int           `json:"line,omitempty"`
	Command  string        `json:"command"`
	Result   string        `json:"result"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// Recorder receives journal entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Journal is a Recorder backed by SQLite.
type Journal struct {
	db *sql.DB
}

var _ Recorder = (*Journal)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS commands (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL,
	line        INTEGER NOT NULL DEFAULT 0,
	command     TEXT NOT NULL,
	result      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_commands_run ON commands(run_id);
`

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends e. A zero At is set to now.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO commands (run_id, source, line, command, result, error, duration_ms, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Source, e.Line, e.Command, e.Result, e.Error, e.Duration.Milliseconds(), e.At.UTC().Format(time.RFC3339Nano))
	return err
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return j.query(ctx,
		`SELECT id, run_id, source, line, command, result, error, duration_ms, at FROM commands ORDER BY id DESC LIMIT ?`, limit)
}

// Run returns the entries of one route run in execution order.
func (j *Journal) Run(ctx context.Context, runID string) ([]Entry, error) {
	return j.query(ctx,
		`SELECT id, run_id, source, line, command, result, error, duration_ms, at FROM commands WHERE run_id = ? ORDER BY id`, runID)
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ms int64
			at string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Source, &e.Line, &e.Command, &e.Result, &e.Error, &ms, &at); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
