package sink

import (
	"errors"
	"fmt"
)

// Sample is one interleaved stereo sample pair, left then right
type Sample [2]int16

// Left channel value
func (s Sample) Left() int16 { return s[0] }

// Right channel value
func (s Sample) Right() int16 { return s[1] }

// Sink is the playback side of the engine. ConsumeSample returns false when the sink
// cannot take the sample right now; the caller must offer the same sample again later.
// Loop gives the sink a chance to do housekeeping and reports whether it is still
// healthy.
type Sink interface {
	Begin() error
	SetRate(hz int) error
	SetChannels(n int) error
	ConsumeSample(s Sample) bool
	Stop() error
	Loop() bool
}

// Volume is implemented by sinks that scale their output
type Volume interface {
	SetVolume(v float32) error
	GetVolume() float32
}

// Sink errors
var (
	ErrSinkClosed      = errors.New("sink is closed")
	ErrNotStarted      = errors.New("sink not started")
	ErrInvalidRate     = errors.New("invalid sample rate")
	ErrInvalidChannels = errors.New("invalid channel count")
	ErrInvalidVolume   = errors.New("invalid volume")
)

const (
	MinRate = 8000
	MaxRate = 192000
)

func validateRate(hz int) error {
	if hz < MinRate || hz > MaxRate {
		return fmt.Errorf("%w: %d", ErrInvalidRate, hz)
	}
	return nil
}

func validateChannels(n int) error {
	if n != 1 && n != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidChannels, n)
	}
	return nil
}

func validateVolume(v float32) error {
	if v < 0.0 || v > 1.0 {
		return fmt.Errorf("%w: %f (must be 0.0-1.0)", ErrInvalidVolume, v)
	}
	return nil
}

func scale(v int16, volume float32) int16 {
	if volume == 1.0 {
		return v
	}
	return int16(float32(v) * volume)
}

// appendS16LE appends s as little-endian signed 16-bit stereo
func appendS16LE(b []byte, s Sample, volume float32) []byte {
	l := scale(s[0], volume)
	r := scale(s[1], volume)
	return append(b, byte(l), byte(l>>8), byte(r), byte(r>>8))
}
