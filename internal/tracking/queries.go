package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNilDatabase = errors.New("database connection is nil")

// EventRecord is a stored status event
type EventRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Time        time.Time `json:"time"`
	Code        string    `json:"code"`
	Message     string    `json:"message,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	DecoderCode int       `json:"decoder_code,omitempty"`
	Offset      int64     `json:"offset,omitempty"`
	Location    string    `json:"location"`
}

// SessionSummary is a stored session with its event count
type SessionSummary struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Location     string     `json:"location"`
	Format       string     `json:"format"`
	Sink         string     `json:"sink"`
	Samples      int64      `json:"samples"`
	Frames       int64      `json:"frames"`
	DecodeErrors int64      `json:"decode_errors"`
	Result       string     `json:"result"`
	Events       int        `json:"events"`
}

// Duration is how long the session ran, zero while it is open
func (s SessionSummary) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// RecentEvents returns matching events, newest first
func RecentEvents(db *sql.DB, filter QueryFilter) ([]EventRecord, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	query := `
		SELECT e.id, e.session_id, e.timestamp, e.code, e.message,
		       e.attempt, e.decoder_code, e.stream_offset, s.location
		FROM status_events e
		JOIN sessions s ON s.id = e.session_id`
	where, args := filter.BuildWhereClause()
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY e.timestamp DESC, e.id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status events: %w", err)
	}
	defer rows.Close()

	var results []EventRecord
	for rows.Next() {
		var ev EventRecord
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ts, &ev.Code, &ev.Message,
			&ev.Attempt, &ev.DecoderCode, &ev.Offset, &ev.Location); err != nil {
			return nil, fmt.Errorf("failed to scan status event row: %w", err)
		}
		ev.Time = time.Unix(ts, 0)
		results = append(results, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status event rows: %w", err)
	}
	return results, nil
}

// SessionSummaries returns matching sessions, newest first
func SessionSummaries(db *sql.DB, filter QueryFilter) ([]SessionSummary, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	query := `
		SELECT s.id, s.started_at, s.ended_at, s.location, s.format, s.sink,
		       s.samples, s.frames, s.decode_errors, s.result,
		       (SELECT COUNT(*) FROM status_events e WHERE e.session_id = s.id) AS events
		FROM sessions s`
	where, args := filter.BuildSessionWhereClause()
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY s.started_at DESC, s.rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&s.ID, &started, &ended, &s.Location, &s.Format, &s.Sink,
			&s.Samples, &s.Frames, &s.DecodeErrors, &s.Result, &s.Events); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		s.StartedAt = time.Unix(started, 0)
		if ended.Valid {
			t := time.Unix(ended.Int64, 0)
			s.EndedAt = &t
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return results, nil
}

// EventCounts tallies matching events by code
func EventCounts(db *sql.DB, filter QueryFilter) (map[string]int, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	query := `
		SELECT e.code, COUNT(*)
		FROM status_events e
		JOIN sessions s ON s.id = e.session_id`
	where, args := filter.BuildWhereClause()
	if where != "" {
		query += " WHERE " + where
	}
	query += " GROUP BY e.code"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count status events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[code] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event counts: %w", err)
	}
	return counts, nil
}
