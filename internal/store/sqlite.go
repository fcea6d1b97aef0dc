// Package store is the optional SQLite archive of detector activity. It
// mirrors every journal record into a queryable database so detections
// can be exported and analyzed without parsing the CSV flip log. The
// journal remains the durability source of truth; the archive simply
// follows the same no-silent-loss rule, so insert failures are fatal to
// the detection loop.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bitflipd/internal/journal"
)

// Schema for the bitflipd archive.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    session_start_ms  INTEGER NOT NULL,
    delay_ms          INTEGER NOT NULL,
    latitude          TEXT NOT NULL,
    longitude         TEXT NOT NULL,
    recorded_at_ms    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS detections (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    session_start_ms  INTEGER NOT NULL,
    delay_ms          INTEGER NOT NULL,
    checks_since_flip INTEGER NOT NULL,
    ambiguous         INTEGER NOT NULL,
    event_time_ms     INTEGER NOT NULL,
    latitude          TEXT NOT NULL,
    longitude         TEXT NOT NULL,
    byte_index        INTEGER,
    byte_value        INTEGER
);

CREATE INDEX IF NOT EXISTS idx_detections_event_time ON detections(event_time_ms);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(session_start_ms);
`

// Store is a SQLite-backed archive.
type Store struct {
	db   *sql.DB
	path string
}

// DetectionRow is an archived detection, including the byte index and
// value that the CSV journal format has no columns for. Index and Value
// are nil for ambiguous detections.
type DetectionRow struct {
	Record journal.Detection
	Index  *int64
	Value  *int64
}

// SessionRow is an archived session start.
type SessionRow struct {
	Record       journal.SessionStart
	RecordedAtMs int64
}

// Open opens or creates the archive database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// RecordSession archives a session-start record.
func (s *Store) RecordSession(r journal.SessionStart) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_start_ms, delay_ms, latitude, longitude, recorded_at_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		r.SessionStartMs, r.DelayMs, r.Latitude, r.Longitude, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

// RecordDetection archives a detection. index and value are stored only
// when the flipped byte could be re-identified.
func (s *Store) RecordDetection(r journal.Detection, index int, value byte) error {
	var idxCol, valCol any
	if !r.Ambiguous {
		idxCol = int64(index)
		valCol = int64(value)
	}

	ambiguous := 0
	if r.Ambiguous {
		ambiguous = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO detections (session_start_ms, delay_ms, checks_since_flip, ambiguous,
		                         event_time_ms, latitude, longitude, byte_index, byte_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionStartMs, r.DelayMs, r.ChecksSinceFlip, ambiguous,
		r.EventTimeMs, r.Latitude, r.Longitude, idxCol, valCol,
	)
	if err != nil {
		return fmt.Errorf("archive detection: %w", err)
	}
	return nil
}

// Sessions returns all archived session starts, oldest first.
func (s *Store) Sessions() ([]SessionRow, error) {
	rows, err := s.db.Query(
		`SELECT session_start_ms, delay_ms, latitude, longitude, recorded_at_ms
		 FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.Record.SessionStartMs, &r.Record.DelayMs,
			&r.Record.Latitude, &r.Record.Longitude, &r.RecordedAtMs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Detections returns all archived detections, oldest first.
func (s *Store) Detections() ([]DetectionRow, error) {
	rows, err := s.db.Query(
		`SELECT session_start_ms, delay_ms, checks_since_flip, ambiguous,
		        event_time_ms, latitude, longitude, byte_index, byte_value
		 FROM detections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var out []DetectionRow
	for rows.Next() {
		var (
			r         DetectionRow
			ambiguous int
			idx, val  sql.NullInt64
		)
		if err := rows.Scan(&r.Record.SessionStartMs, &r.Record.DelayMs,
			&r.Record.ChecksSinceFlip, &ambiguous, &r.Record.EventTimeMs,
			&r.Record.Latitude, &r.Record.Longitude, &idx, &val); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		r.Record.Ambiguous = ambiguous != 0
		if idx.Valid {
			r.Index = &idx.Int64
		}
		if val.Valid {
			r.Value = &val.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Path returns the archive database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
