package tracking

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwave.click/internal/status"
)

// seedSessions stores two sessions an hour apart with a few events each
func seedSessions(t *testing.T, db *sql.DB, base time.Time) {
	t.Helper()

	morning := NewRecorder(db, "morning")
	morning.now = fixedClock(base)
	require.NoError(t, morning.Start("http://radio.example/jazz", "MP3", "malgo"))
	morning.LogEvent(status.Event{Code: status.Info, Message: "playing", Time: base})
	morning.LogEvent(status.Event{Code: status.DecodeError, DecoderCode: 0x201, Offset: 10, Time: base.Add(time.Second)})
	require.NoError(t, morning.Finish(Summary{Samples: 1000, Frames: 10, DecodeErrors: 1, Result: ResultCompleted}))

	later := base.Add(time.Hour)
	evening := NewRecorder(db, "evening")
	evening.now = fixedClock(later)
	require.NoError(t, evening.Start("/music/set.mp3", "MP3", "wav"))
	evening.LogEvent(status.Event{Code: status.Info, Message: "playing", Time: later})
	evening.LogEvent(status.Event{Code: status.Disconnected, Time: later.Add(time.Second)})
	evening.LogEvent(status.Event{Code: status.Reconnecting, Attempt: 1, Time: later.Add(2 * time.Second)})
}

func TestRecentEventsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	seedSessions(t, db, base)

	events, err := RecentEvents(db, QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "reconnecting", events[0].Code)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Equal(t, "/music/set.mp3", events[0].Location)
	assert.Equal(t, "info", events[4].Code)
	assert.Equal(t, "morning", events[4].SessionID)

	limited, err := RecentEvents(db, QueryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecentEventsFilters(t *testing.T) {
	db := setupTestDB(t)
	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	seedSessions(t, db, base)

	bySession, err := RecentEvents(db, QueryFilter{SessionID: "morning"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	byCode, err := RecentEvents(db, QueryFilter{Code: "info"})
	require.NoError(t, err)
	assert.Len(t, byCode, 2)

	byLocation, err := RecentEvents(db, QueryFilter{Location: "jazz"})
	require.NoError(t, err)
	assert.Len(t, byLocation, 2)

	since := base.Add(30 * time.Minute)
	recent, err := RecentEvents(db, QueryFilter{StartTime: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 3)
	for _, ev := range recent {
		assert.Equal(t, "evening", ev.SessionID)
	}
}

func TestSessionSummaries(t *testing.T) {
	db := setupTestDB(t)
	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	seedSessions(t, db, base)

	sessions, err := SessionSummaries(db, QueryFilter{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	evening, morning := sessions[0], sessions[1]
	assert.Equal(t, "evening", evening.ID)
	assert.Nil(t, evening.EndedAt, "unfinished session has no end")
	assert.Zero(t, evening.Duration())
	assert.Equal(t, 3, evening.Events)
	assert.Equal(t, "wav", evening.Sink)

	assert.Equal(t, "morning", morning.ID)
	assert.Equal(t, ResultCompleted, morning.Result)
	assert.Equal(t, 2, morning.Events)
	assert.Equal(t, base.Unix(), morning.StartedAt.Unix())

	filtered, err := SessionSummaries(db, QueryFilter{Location: "radio.example"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "morning", filtered[0].ID)
}

func TestEventCounts(t *testing.T) {
	db := setupTestDB(t)
	seedSessions(t, db, time.Now().Add(-3*time.Hour).Truncate(time.Second))

	counts, err := EventCounts(db, QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"info":         2,
		"decode_error": 1,
		"disconnected": 1,
		"reconnecting": 1,
	}, counts)
}

func TestQueriesRejectNilDatabase(t *testing.T) {
	_, err := RecentEvents(nil, QueryFilter{})
	assert.ErrorIs(t, err, ErrNilDatabase)
	_, err = SessionSummaries(nil, QueryFilter{})
	assert.ErrorIs(t, err, ErrNilDatabase)
	_, err = EventCounts(nil, QueryFilter{})
	assert.ErrorIs(t, err, ErrNilDatabase)
}
