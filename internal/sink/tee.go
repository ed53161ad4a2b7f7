package sink

import (
	"errors"
	"fmt"
)

// TeeSink sends every sample to two sinks, typically a device and a recording.
// A sample the secondary refuses is held and offered to it again before anything
// new is accepted, so both sinks see the same sequence.
type TeeSink struct {
	primary   Sink
	secondary Sink
	held      Sample
	holding   bool
}

// NewTeeSink combines primary and secondary
func NewTeeSink(primary, secondary Sink) *TeeSink {
	return &TeeSink{primary: primary, secondary: secondary}
}

func (t *TeeSink) Begin() error {
	if err := t.primary.Begin(); err != nil {
		return err
	}
	if err := t.secondary.Begin(); err != nil {
		_ = t.primary.Stop()
		return fmt.Errorf("tee: %w", err)
	}
	t.holding = false
	return nil
}

func (t *TeeSink) SetRate(hz int) error {
	return errors.Join(t.primary.SetRate(hz), t.secondary.SetRate(hz))
}

func (t *TeeSink) SetChannels(n int) error {
	return errors.Join(t.primary.SetChannels(n), t.secondary.SetChannels(n))
}

func (t *TeeSink) release() bool {
	if !t.holding {
		return true
	}
	if !t.secondary.ConsumeSample(t.held) {
		return false
	}
	t.holding = false
	return true
}

func (t *TeeSink) ConsumeSample(s Sample) bool {
	if !t.release() {
		return false
	}
	if !t.primary.ConsumeSample(s) {
		return false
	}
	if !t.secondary.ConsumeSample(s) {
		t.held = s
		t.holding = true
	}
	return true
}

func (t *TeeSink) Loop() bool {
	p := t.primary.Loop()
	s := t.secondary.Loop()
	t.release()
	return p && s
}

func (t *TeeSink) Stop() error {
	if t.holding {
		t.secondary.Loop()
		t.release()
	}
	return errors.Join(t.primary.Stop(), t.secondary.Stop())
}

// Sinks returns the two halves
func (t *TeeSink) Sinks() (Sink, Sink) { return t.primary, t.secondary }

var _ Sink = (*TeeSink)(nil)
