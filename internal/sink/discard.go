package sink

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DiscardSink drops samples. When paced it accepts them no faster than the stream's
// sample rate, which keeps a headless run in real time.
type DiscardSink struct {
	paced bool

	mu       sync.Mutex
	limiter  *rate.Limiter
	rate     int
	channels int
	count    int64
	started  bool
}

// NewDiscardSink creates a sink that throws samples away
func NewDiscardSink(paced bool) *DiscardSink {
	return &DiscardSink{paced: paced, channels: 2}
}

func (d *DiscardSink) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}

func (d *DiscardSink) SetRate(hz int) error {
	if err := validateRate(hz); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rate = hz
	if d.paced {
		// 100ms of burst
		d.limiter = rate.NewLimiter(rate.Limit(hz), max(hz/10, 1))
	}
	return nil
}

func (d *DiscardSink) SetChannels(n int) error {
	if err := validateChannels(n); err != nil {
		return err
	}
	d.mu.Lock()
	d.channels = n
	d.mu.Unlock()
	return nil
}

func (d *DiscardSink) ConsumeSample(Sample) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return false
	}
	if d.limiter != nil && !d.limiter.AllowN(time.Now(), 1) {
		return false
	}
	d.count++
	return true
}

func (d *DiscardSink) Loop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *DiscardSink) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.limiter = nil
	return nil
}

// Count is the number of samples accepted
func (d *DiscardSink) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Format returns the last announced rate and channel count
func (d *DiscardSink) Format() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate, d.channels
}

var _ Sink = (*DiscardSink)(nil)
