package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Code identifies the kind of status event
type Code int

const (
	Info Code = iota
	OpenFailed
	Disconnected
	Reconnecting
	Reconnected
	ReconnectFailed
	NoData
	DecodeError
)

var codeNames = map[Code]string{
	Info:            "info",
	OpenFailed:      "open_failed",
	Disconnected:    "disconnected",
	Reconnecting:    "reconnecting",
	Reconnected:     "reconnected",
	ReconnectFailed: "reconnect_failed",
	NoData:          "no_data",
	DecodeError:     "decode_error",
}

// String returns the snake_case name used in logs, metrics and the tracking database
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// ParseCode maps a code name back to its Code
func ParseCode(name string) (Code, bool) {
	for code, n := range codeNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// Codes returns every known code in declaration order
func Codes() []Code {
	return []Code{Info, OpenFailed, Disconnected, Reconnecting, Reconnected, ReconnectFailed, NoData, DecodeError}
}

// Event is a single diagnostic emitted by a source or the engine
type Event struct {
	Code        Code
	Message     string
	Attempt     int   // reconnect attempt index, 1-based
	DecoderCode int   // decoder-specific error code for DecodeError
	Offset      int64 // logical stream offset for DecodeError
	Time        time.Time
}

// Hook receives status events. Hooks must return promptly.
type Hook func(Event)

// Emitter fans events out to hooks. A panicking hook is logged and skipped.
// The zero value and a nil *Emitter are both usable.
type Emitter struct {
	mu    sync.RWMutex
	hooks []Hook
	now   func() time.Time
}

// NewEmitter creates an emitter with the given hooks
func NewEmitter(hooks ...Hook) *Emitter {
	e := &Emitter{now: time.Now}
	for _, h := range hooks {
		e.Add(h)
	}
	return e
}

// Add registers another hook
func (e *Emitter) Add(h Hook) {
	if e == nil || h == nil {
		return
	}
	e.mu.Lock()
	e.hooks = append(e.hooks, h)
	e.mu.Unlock()
}

// Emit stamps, logs and delivers an event
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	if ev.Time.IsZero() {
		if e.now != nil {
			ev.Time = e.now()
		} else {
			ev.Time = time.Now()
		}
	}

	level := slog.LevelInfo
	switch ev.Code {
	case OpenFailed, ReconnectFailed:
		level = slog.LevelError
	case Disconnected, NoData, DecodeError:
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "status event",
		"code", ev.Code.String(),
		"message", ev.Message,
		"attempt", ev.Attempt,
		"decoder_code", ev.DecoderCode,
		"offset", ev.Offset)

	e.mu.RLock()
	hooks := e.hooks
	e.mu.RUnlock()

	for i, h := range hooks {
		e.call(i, h, ev)
	}
}

// Emitf is a shorthand for events that only carry a code and a message
func (e *Emitter) Emitf(code Code, format string, args ...any) {
	e.Emit(Event{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (e *Emitter) call(index int, h Hook, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("status hook panicked", "hook_index", index, "code", ev.Code.String(), "panic", r)
		}
	}()
	h(ev)
}
