package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{Info, "info"},
		{OpenFailed, "open_failed"},
		{Reconnecting, "reconnecting"},
		{ReconnectFailed, "reconnect_failed"},
		{DecodeError, "decode_error"},
		{Code(42), "code_42"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}

func TestParseCodeRoundTrip(t *testing.T) {
	for _, code := range Codes() {
		got, ok := ParseCode(code.String())
		require.True(t, ok, code.String())
		assert.Equal(t, code, got)
	}

	_, ok := ParseCode("bogus")
	assert.False(t, ok)
}

func TestEmitterDeliversToAllHooks(t *testing.T) {
	var first, second []Event
	e := NewEmitter(
		func(ev Event) { first = append(first, ev) },
		func(ev Event) { second = append(second, ev) },
	)

	e.Emit(Event{Code: Reconnecting, Attempt: 2, Message: "retrying"})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, Reconnecting, first[0].Code)
	assert.Equal(t, 2, first[0].Attempt)
	assert.False(t, first[0].Time.IsZero(), "emitter should stamp events")
}

func TestEmitterRecoversFromPanickingHook(t *testing.T) {
	var got []Code
	e := NewEmitter(
		func(ev Event) { panic("boom") },
		func(ev Event) { got = append(got, ev.Code) },
	)

	assert.NotPanics(t, func() {
		e.Emitf(NoData, "nothing after %dms", 500)
	})
	assert.Equal(t, []Code{NoData}, got)
}

func TestEmitterKeepsProvidedTime(t *testing.T) {
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var got Event
	e := NewEmitter(func(ev Event) { got = ev })

	e.Emit(Event{Code: Info, Time: stamp})

	assert.Equal(t, stamp, got.Time)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() {
		e.Add(func(Event) {})
		e.Emit(Event{Code: Info})
		e.Emitf(Info, "hello")
	})
}
