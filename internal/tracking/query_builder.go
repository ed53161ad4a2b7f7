package tracking

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// QueryFilter narrows event and session queries
type QueryFilter struct {
	// Time filters. DatePreset wins over Start/End, which win over Days.
	StartTime  *time.Time
	EndTime    *time.Time
	Days       int
	DatePreset string // today, yesterday, week, last-week, month, last-month, all

	Code      string // status code name, events only
	SessionID string
	Location  string // substring match on the session location

	Limit int
}

// ApplyTimeFilter turns the time options into a Unix range. A zero start means no lower bound.
func (q *QueryFilter) ApplyTimeFilter(now time.Time) (startUnix, endUnix int64) {
	endUnix = now.Unix()

	switch {
	case q.DatePreset != "":
		start, end, err := ParseDatePreset(q.DatePreset, now)
		if err != nil {
			slog.Warn("invalid date preset, using no time filter", "preset", q.DatePreset, "error", err)
			return 0, endUnix
		}
		if start.IsZero() {
			return 0, end.Unix()
		}
		return start.Unix(), end.Unix()
	case q.StartTime != nil && q.EndTime != nil:
		return q.StartTime.Unix(), q.EndTime.Unix()
	case q.StartTime != nil:
		return q.StartTime.Unix(), endUnix
	case q.EndTime != nil:
		return 0, q.EndTime.Unix()
	case q.Days > 0:
		return now.AddDate(0, 0, -q.Days).Unix(), endUnix
	}
	return 0, endUnix
}

func (q *QueryFilter) hasTimeFilter() bool {
	return q.StartTime != nil || q.EndTime != nil || q.Days > 0 || q.DatePreset != ""
}

// columns names the filterable columns of one table
type columns struct {
	time, session, code, location string
}

var (
	eventColumns   = columns{time: "e.timestamp", session: "e.session_id", code: "e.code", location: "s.location"}
	sessionColumns = columns{time: "s.started_at", session: "s.id", location: "s.location"}
)

// BuildWhereClause builds the condition for status_events e joined with sessions s
func (q *QueryFilter) BuildWhereClause() (string, []any) {
	return q.buildWhere(eventColumns, time.Now())
}

// BuildSessionWhereClause builds the condition for sessions s
func (q *QueryFilter) BuildSessionWhereClause() (string, []any) {
	return q.buildWhere(sessionColumns, time.Now())
}

func (q *QueryFilter) buildWhere(cols columns, now time.Time) (string, []any) {
	var clauses []string
	var args []any

	if q.hasTimeFilter() {
		startUnix, endUnix := q.ApplyTimeFilter(now)
		if startUnix > 0 {
			clauses = append(clauses, cols.time+" >= ?")
			args = append(args, startUnix)
		}
		clauses = append(clauses, cols.time+" <= ?")
		args = append(args, endUnix)
	}
	if q.Code != "" && cols.code != "" {
		clauses = append(clauses, cols.code+" = ?")
		args = append(args, q.Code)
	}
	if q.SessionID != "" {
		clauses = append(clauses, cols.session+" = ?")
		args = append(args, q.SessionID)
	}
	if q.Location != "" {
		clauses = append(clauses, cols.location+" LIKE ?")
		args = append(args, "%"+q.Location+"%")
	}

	where := strings.Join(clauses, " AND ")
	slog.Debug("built where clause", "clause", where, "arg_count", len(args))
	return where, args
}

// ParseDatePreset converts a preset name to a time range
func ParseDatePreset(preset string, now time.Time) (start, end time.Time, err error) {
	switch preset {
	case "today":
		return beginningOfDay(now), now, nil
	case "yesterday":
		return beginningOfDay(now.AddDate(0, 0, -1)), beginningOfDay(now), nil
	case "week", "this-week":
		return beginningOfWeek(now), now, nil
	case "last-week":
		return beginningOfWeek(now).AddDate(0, 0, -7), beginningOfWeek(now), nil
	case "month", "this-month":
		return beginningOfMonth(now), now, nil
	case "last-month":
		return beginningOfMonth(now).AddDate(0, -1, 0), beginningOfMonth(now), nil
	case "all", "all-time":
		return time.Time{}, now, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown preset: %s", preset)
}

// ParseNaturalDate parses expressions like "2 hours ago" or "yesterday" relative to ref
func ParseNaturalDate(input string, ref time.Time) (time.Time, error) {
	result, err := naturaldate.Parse(input, ref)
	if err != nil {
		slog.Warn("failed to parse natural language date", "input", input, "error", err)
		return time.Time{}, fmt.Errorf("failed to parse natural date '%s': %w", input, err)
	}
	slog.Debug("parsed natural language date", "input", input, "result", result)
	return result, nil
}

func beginningOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// beginningOfWeek is Monday 00:00
func beginningOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return beginningOfDay(t.AddDate(0, 0, 1-weekday))
}

func beginningOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
