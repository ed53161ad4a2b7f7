package tracking

import (
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"airwave.click/internal/status"
)

var ErrNoSession = errors.New("tracking session not started")

// maxEarlyEvents bounds the events held back until Start
const maxEarlyEvents = 64

// Result values stored on a finished session
const (
	ResultCompleted = "completed"
	ResultStopped   = "stopped"
	ResultFailed    = "failed"
)

// Summary is what a session knows when playback ends
type Summary struct {
	Samples      uint64
	Frames       uint64
	DecodeErrors uint64
	Result       string
}

// Recorder writes one session and its status events. Events that arrive before
// Start are held and written once the session row exists. After the first
// database error it disables itself so tracking never interrupts playback.
type Recorder struct {
	db        *sql.DB
	sessionID string
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	disabled bool
	events   int
	early    []status.Event
}

// NewRecorder creates a recorder. An empty sessionID gets a random UUID.
func NewRecorder(db *sql.DB, sessionID string) *Recorder {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Recorder{db: db, sessionID: sessionID, now: time.Now}
}

// SessionID returns the session key
func (r *Recorder) SessionID() string { return r.sessionID }

// Start inserts the session row
func (r *Recorder) Start(location, format, sinkType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO sessions (id, started_at, location, format, sink)
		VALUES (?, ?, ?, ?, ?)`,
		r.sessionID, r.now().Unix(), location, format, sinkType)
	if err != nil {
		slog.Warn("tracking failed to start session", "session_id", r.sessionID, "error", err)
		r.disabled = true
		r.early = nil
		return err
	}
	r.started = true
	slog.Debug("tracking session started", "session_id", r.sessionID, "location", location, "early_events", len(r.early))

	early := r.early
	r.early = nil
	for _, ev := range early {
		r.insertEvent(ev)
	}
	return nil
}

// LogEvent stores a status event against the session
func (r *Recorder) LogEvent(ev status.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = r.now()
	}
	if !r.started {
		if len(r.early) < maxEarlyEvents {
			r.early = append(r.early, ev)
		}
		return
	}
	r.insertEvent(ev)
}

// insertEvent writes one event. Called with mu held.
func (r *Recorder) insertEvent(ev status.Event) {
	if r.disabled {
		return
	}
	_, err := r.db.Exec(`
		INSERT INTO status_events (session_id, timestamp, code, message, attempt, decoder_code, stream_offset)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.sessionID, ev.Time.Unix(), ev.Code.String(), ev.Message, ev.Attempt, ev.DecoderCode, ev.Offset)
	if err != nil {
		slog.Warn("tracking failed to log status event", "session_id", r.sessionID, "code", ev.Code.String(), "error", err)
		r.disabled = true
		return
	}
	r.events++
}

// Hook adapts LogEvent to a status hook
func (r *Recorder) Hook() status.Hook {
	return r.LogEvent
}

// Events is the number of events stored so far
func (r *Recorder) Events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

// Finish closes the session row with the playback totals
func (r *Recorder) Finish(s Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ErrNoSession
	}
	if r.disabled {
		return nil
	}

	_, err := r.db.Exec(`
		UPDATE sessions
		SET ended_at = ?, samples = ?, frames = ?, decode_errors = ?, result = ?
		WHERE id = ?`,
		r.now().Unix(), int64(s.Samples), int64(s.Frames), int64(s.DecodeErrors), s.Result, r.sessionID)
	if err != nil {
		slog.Warn("tracking failed to finish session", "session_id", r.sessionID, "error", err)
		r.disabled = true
		return err
	}
	slog.Debug("tracking session finished", "session_id", r.sessionID, "result", s.Result, "events", r.events)
	return nil
}
