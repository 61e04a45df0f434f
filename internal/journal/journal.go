// Package journal keeps a SQLite history of monitor events.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"memtrigger/internal/monitor"
)

// Entry is one journaled event.
type Entry struct {
	ID         int64     `json:"id"`
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	BindingID  string    `json:"bindingId,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Value      int32     `json:"value,omitempty"`
	Address    uint64    `json:"address,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Aborted    bool      `json:"aborted,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Journal stores entries in SQLite.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return j, nil
}

// NewInMemory creates an in-memory journal for testing.
func NewInMemory() (*Journal, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory journal: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		type TEXT NOT NULL,
		binding_id TEXT NOT NULL DEFAULT '',
		pid INTEGER NOT NULL DEFAULT 0,
		value INTEGER NOT NULL DEFAULT 0,
		address INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		aborted INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_binding ON events(binding_id, at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record stores a supervisor event.
func (j *Journal) Record(ctx context.Context, ev monitor.Event) error {
	e := Entry{
		Time:      ev.Time,
		Type:      string(ev.Type),
		BindingID: ev.BindingID,
		PID:       ev.PID,
		Reason:    ev.Reason,
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if r := ev.Reaction; r != nil {
		e.Value = r.Value
		e.Address = uint64(r.Address)
		e.DurationMs = r.Duration.Milliseconds()
		e.Aborted = r.Aborted
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (at, type, binding_id, pid, value, address, duration_ms, aborted, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UnixMilli(), e.Type, e.BindingID, e.PID, e.Value, int64(e.Address), e.DurationMs, e.Aborted, e.Reason)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-empty bindingID
// filters to that binding.
func (j *Journal) Recent(ctx context.Context, bindingID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, at, type, binding_id, pid, value, address, duration_ms, aborted, reason FROM events`
	args := []any{}
	if bindingID != "" {
		query += ` WHERE binding_id = ?`
		args = append(args, bindingID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			at   int64
			addr int64
		)
		if err := rows.Scan(&e.ID, &at, &e.Type, &e.BindingID, &e.PID, &e.Value, &addr, &e.DurationMs, &e.Aborted, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Time = time.UnixMilli(at)
		e.Address = uint64(addr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of reactions recorded for bindingID.
func (j *Journal) Count(ctx context.Context, bindingID string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE type = ? AND binding_id = ?`,
		string(monitor.EventReaction), bindingID).Scan(&n)
	return n, err
}

// Prune deletes entries older than the cutoff.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}
