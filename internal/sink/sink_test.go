package sink

import (
	"errors"
	"time"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// memorySink records what it is given and refuses once capacity samples are held
// until drain is called
type memorySink struct {
	capacity int
	held     int
	got      []Sample
	rates    []int
	channels []int
	begun    bool
	stopped  bool
	beginErr error
	loops    int
}

func (m *memorySink) Begin() error {
	if m.beginErr != nil {
		return m.beginErr
	}
	m.begun = true
	return nil
}

func (m *memorySink) SetRate(hz int) error {
	m.rates = append(m.rates, hz)
	return nil
}

func (m *memorySink) SetChannels(n int) error {
	m.channels = append(m.channels, n)
	return nil
}

func (m *memorySink) ConsumeSample(s Sample) bool {
	if m.capacity > 0 && m.held >= m.capacity {
		return false
	}
	m.held++
	m.got = append(m.got, s)
	return true
}

func (m *memorySink) drain() { m.held = 0 }

func (m *memorySink) Stop() error {
	m.stopped = true
	return nil
}

func (m *memorySink) Loop() bool {
	m.loops++
	return m.begun
}

var errBoom = errors.New("boom")
