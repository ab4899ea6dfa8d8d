// Package journal keeps an append-only SQLite record of stream
// sessions: which call was made, how it ended, and what the decoder
// consumed and produced along the way.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Session is one finished stream session.
type Session struct {
	ID        string
	Timestamp time.Time
	SessionID string
	Source    string // "ollama", "openai", "sdk"
	Method    string
	Path      string
	Status    int
	Outcome   string // "completed", "stopped_early", "failed", "empty"
	Chunks    int64
	Bytes     int64
	Lines     int64
	Records   int64
	Skipped   int64
	Elapsed   time.Duration
	Error     string
}

// Summary holds aggregated totals over a set of sessions.
type Summary struct {
	Sessions int
	Records  int64
	Skipped  int64
	Bytes    int64
	Failed   int
	Elapsed  time.Duration
}

// Store is the session journal. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the journal at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS stream_sessions (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		source      TEXT NOT NULL,
		method      TEXT NOT NULL,
		path        TEXT NOT NULL,
		status      INTEGER NOT NULL,
		outcome     TEXT NOT NULL,
		chunks      INTEGER NOT NULL,
		bytes       INTEGER NOT NULL,
		lines       INTEGER NOT NULL,
		records     INTEGER NOT NULL,
		skipped     INTEGER NOT NULL,
		elapsed_ms  INTEGER NOT NULL,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON stream_sessions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_sessions_path ON stream_sessions(path);
	`)
	return err
}

// Record appends a session. A missing ID is filled with a UUIDv7 and a
// zero Timestamp with the current time.
func (s *Store) Record(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate journal ID: %w", err)
		}
		sess.ID = id.String()
	}
	if sess.Timestamp.IsZero() {
		sess.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_sessions
			(id, timestamp, session_id, source, method, path, status, outcome,
			 chunks, bytes, lines, records, skipped, elapsed_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Timestamp.UTC().Format(timeFormat),
		sess.SessionID,
		sess.Source,
		sess.Method,
		sess.Path,
		sess.Status,
		sess.Outcome,
		sess.Chunks,
		sess.Bytes,
		sess.Lines,
		sess.Records,
		sess.Skipped,
		sess.Elapsed.Milliseconds(),
		sess.Error,
	)
	if err != nil {
		return fmt.Errorf("insert journal session: %w", err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, session_id, source, method, path, status, outcome,
		        chunks, bytes, lines, records, skipped, elapsed_ms, COALESCE(error, '')
		 FROM stream_sessions
		 ORDER BY timestamp DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var ts string
		var elapsedMS int64
		if err := rows.Scan(&sess.ID, &ts, &sess.SessionID, &sess.Source, &sess.Method, &sess.Path,
			&sess.Status, &sess.Outcome, &sess.Chunks, &sess.Bytes, &sess.Lines, &sess.Records,
			&sess.Skipped, &elapsedMS, &sess.Error); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Timestamp, _ = time.Parse(timeFormat, ts)
		sess.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, sess)
	}
	return out, rows.Err()
}

const summaryColumns = `COUNT(*),
	COALESCE(SUM(records), 0),
	COALESCE(SUM(skipped), 0),
	COALESCE(SUM(bytes), 0),
	COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(elapsed_ms), 0)`

func scanSummary(sc interface{ Scan(...any) error }, prefix ...any) (*Summary, error) {
	var sum Summary
	var elapsedMS int64
	dest := append(prefix, &sum.Sessions, &sum.Records, &sum.Skipped, &sum.Bytes, &sum.Failed, &elapsedMS)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	sum.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &sum, nil
}

// Summary returns totals for sessions within [start, end).
func (s *Store) Summary(start, end time.Time) (*Summary, error) {
	row := s.db.QueryRow(
		`SELECT `+summaryColumns+`
		 FROM stream_sessions
		 WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(timeFormat),
		end.UTC().Format(timeFormat),
	)
	sum, err := scanSummary(row)
	if err != nil {
		return nil, fmt.Errorf("query journal summary: %w", err)
	}
	return sum, nil
}

// SummaryByOutcome returns per-outcome totals within [start, end).
func (s *Store) SummaryByOutcome(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("outcome", start, end)
}

// SummaryByPath returns per-path totals within [start, end).
func (s *Store) SummaryByPath(start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy("path", start, end)
}

func (s *Store) summaryGroupedBy(column string, start, end time.Time) (map[string]*Summary, error) {
	// column is always a constant from this file, never user input.
	query := fmt.Sprintf(
		`SELECT COALESCE(%s, ''), %s
		 FROM stream_sessions
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY %s
		 ORDER BY COUNT(*) DESC`,
		column, summaryColumns, column,
	)

	rows, err := s.db.Query(query,
		start.UTC().Format(timeFormat),
		end.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("query journal by %s: %w", column, err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var key string
		sum, err := scanSummary(rows, &key)
		if err != nil {
			return nil, fmt.Errorf("scan journal by %s: %w", column, err)
		}
		result[key] = sum
	}
	return result, rows.Err()
}
