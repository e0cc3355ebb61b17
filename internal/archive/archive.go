// Package archive persists sessions and their canonical events to SQLite so
// reports can be regenerated after the engine restarts.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-proctor/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	candidate   TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	label       TEXT,
	confidence  REAL,
	message     TEXT,
	time_ms     INTEGER NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
`

// ErrNotFound is returned when a session id is not in the archive.
var ErrNotFound = errors.New("archived session not found")

// Store manages archived sessions in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// modernc sqlite serialises writers; a single connection avoids
	// SQLITE_BUSY between the live session writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records a newly started session.
func (s *Store) CreateSession(ctx context.Context, info models.SessionInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, candidate, started_at, ended_at) VALUES (?, ?, ?, ?)`,
		info.ID, info.Candidate, formatTime(info.StartedAt), nullableTime(info.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AppendEvent stores event at position seq of the session's log.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, seq int, event models.CanonicalEvent) error {
	var conf any
	if event.Confidence != nil {
		conf = *event.Confidence
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, seq, kind, label, confidence, message, time_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, string(event.Kind), event.Label, conf, event.Message, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EndSession stamps the end time of a session.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, formatTime(endedAt), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns one archived session.
func (s *Store) GetSession(ctx context.Context, id string) (models.SessionInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, candidate, started_at, ended_at FROM sessions WHERE id = ?`, id)
	info, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionInfo{}, ErrNotFound
	}
	return info, err
}

// ListSessions returns the most recently started sessions first. A
// non-positive limit returns every session.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.SessionInfo, error) {
	query := `SELECT id, candidate, started_at, ended_at FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionInfo
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Events returns the session's events in log order.
func (s *Store) Events(ctx context.Context, sessionID string) ([]models.CanonicalEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, label, confidence, message, time_ms FROM events
		 WHERE session_id = ? ORDER BY seq, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.CanonicalEvent
	for rows.Next() {
		var (
			ev      models.CanonicalEvent
			kind    string
			label   sql.NullString
			conf    sql.NullFloat64
			message sql.NullString
		)
		if err := rows.Scan(&kind, &label, &conf, &message, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = models.Kind(kind)
		ev.Label = label.String
		ev.Message = message.String
		if conf.Valid {
			ev.Confidence = models.Float(conf.Float64)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (models.SessionInfo, error) {
	var (
		info    models.SessionInfo
		started string
		ended   sql.NullString
	)
	if err := row.Scan(&info.ID, &info.Candidate, &started, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SessionInfo{}, err
		}
		return models.SessionInfo{}, fmt.Errorf("scan session: %w", err)
	}
	var err error
	if info.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return models.SessionInfo{}, fmt.Errorf("parse started_at: %w", err)
	}
	if ended.Valid && ended.String != "" {
		if info.EndedAt, err = time.Parse(time.RFC3339Nano, ended.String); err != nil {
			return models.SessionInfo{}, fmt.Errorf("parse ended_at: %w", err)
		}
	}
	return info, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
