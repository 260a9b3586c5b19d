// Package journal keeps a durable record of dispatched events in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"evbus/internal/events"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// Entry is one recorded event.
type Entry struct {
	ID         int64
	BusID      string
	EventType  string
	Payload    string
	RecordedAt time.Time
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	BusID     string
	EventType string
	Since     time.Time
	Limit     int
}

// Journal stores entries in a SQLite database.
type Journal struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (and creates if needed) the journal database at path.
func Open(path string, logger zerolog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	j := &Journal{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "journal").Logger(),
	}

	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	j.logger.Info().Str("path", path).Msg("Journal initialized")
	return j, nil
}

func (j *Journal) createTables() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS event_journal (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			bus_id      TEXT    NOT NULL,
			event_type  TEXT    NOT NULL,
			payload     TEXT    NOT NULL,
			recorded_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_event_journal_type ON event_journal(event_type);
		CREATE INDEX IF NOT EXISTS idx_event_journal_recorded ON event_journal(recorded_at);
	`)
	return err
}

// PingContext checks the database connection.
func (j *Journal) PingContext(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e. A zero RecordedAt is set to now.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO event_journal (bus_id, event_type, payload, recorded_at) VALUES (?, ?, ?, ?)`,
		e.BusID, e.EventType, e.Payload, e.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.EventType, err)
	}

	e.ID, err = res.LastInsertId()
	return err
}

// List returns entries matching f, oldest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.BusID != "" {
		where = append(where, "bus_id = ?")
		args = append(args, f.BusID)
	}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if !f.Since.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `SELECT id, bus_id, event_type, payload, recorded_at FROM event_journal`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.BusID, &e.EventType, &e.Payload, &ts); err != nil {
			return nil, err
		}
		e.RecordedAt = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than olderThan and returns how many were
// removed.
func (j *Journal) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	res, err := j.db.ExecContext(ctx, `DELETE FROM event_journal WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info().Int64("deleted", n).Msg("Journal cleaned up")
	}
	return n, nil
}

// Attach registers a handler on bus that records every event of type T that
// reaches it. Events cancelled by a handler that runs earlier are not
// recorded.
func Attach[T any](j *Journal, bus *events.Bus, priority int) *events.HandlerID[T] {
	eventType := events.TypeName[T]()

	return events.Register(bus, func(ev *T) {
		payload, err := json.Marshal(ev)
		if err != nil {
			j.logger.Error().Err(err).Str("event", eventType).Msg("Failed to encode event")
			return
		}

		entry := &Entry{BusID: bus.ID().String(), EventType: eventType, Payload: string(payload)}
		if err := j.Record(context.Background(), entry); err != nil {
			j.logger.Error().Err(err).Str("event", eventType).Msg("Failed to record event")
		}
	}, priority)
}
