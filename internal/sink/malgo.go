//go:build cgo

package sink

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// DefaultFIFOSize is about 180ms of audio at 44.1 kHz
const DefaultFIFOSize = 8192

// MalgoSink plays samples on the default output device. The device callback drains
// a FIFO that ConsumeSample fills; a full FIFO is backpressure.
type MalgoSink struct {
	mu       sync.Mutex
	ctx      *deviceContext
	device   *malgo.Device
	fifo     *sampleFIFO
	scratch  []Sample
	rate     int
	channels int
	volume   atomic.Uint32 // float32 bits, read on the device thread
	started  bool
	closed   bool
}

// NewMalgoSink creates a sink with a FIFO of fifoSize samples
func NewMalgoSink(fifoSize int) *MalgoSink {
	if fifoSize <= 0 {
		fifoSize = DefaultFIFOSize
	}
	m := &MalgoSink{
		fifo:     newSampleFIFO(fifoSize),
		channels: 2,
	}
	m.volume.Store(math.Float32bits(1.0))
	return m
}

// Begin initializes the audio context. The device opens once the rate is known.
func (m *MalgoSink) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSinkClosed
	}
	if m.ctx == nil {
		ctx, err := newDeviceContext()
		if err != nil {
			return fmt.Errorf("failed to initialize audio context: %w", err)
		}
		m.ctx = ctx
	}
	m.fifo.reset()
	m.started = true
	slog.Debug("malgo sink started", "fifo_size", len(m.fifo.buf))
	return nil
}

// SetRate (re)opens the playback device at hz
func (m *MalgoSink) SetRate(hz int) error {
	if err := validateRate(hz); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotStarted
	}
	if hz == m.rate && m.device != nil {
		return nil
	}
	m.closeDevice()
	if err := m.openDevice(hz); err != nil {
		return err
	}
	m.rate = hz
	return nil
}

// SetChannels records the stream layout. The device always plays stereo and mono
// streams arrive with the left sample duplicated.
func (m *MalgoSink) SetChannels(n int) error {
	if err := validateChannels(n); err != nil {
		return err
	}
	m.mu.Lock()
	m.channels = n
	m.mu.Unlock()
	return nil
}

func (m *MalgoSink) openDevice(hz int) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 2
	cfg.SampleRate = uint32(hz)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(m.ctx.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: m.onSamples,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start playback: %w", err)
	}
	m.device = device
	slog.Info("playback device started", "sample_rate", hz)
	return nil
}

func (m *MalgoSink) closeDevice() {
	if m.device == nil {
		return
	}
	if err := m.device.Stop(); err != nil {
		slog.Debug("failed to stop playback device", "error", err)
	}
	m.device.Uninit()
	m.device = nil
}

// onSamples runs on the device thread
func (m *MalgoSink) onSamples(out, _ []byte, frames uint32) {
	if cap(m.scratch) < int(frames) {
		m.scratch = make([]Sample, frames)
	}
	samples := m.scratch[:frames]
	n := m.fifo.pop(samples)
	volume := m.GetVolume()

	b := out[:0]
	for i := 0; i < n; i++ {
		b = appendS16LE(b, samples[i], volume)
	}
	// silence on underrun
	for i := len(b); i < len(out); i++ {
		out[i] = 0
	}
}

// ConsumeSample queues s, false when the FIFO is full
func (m *MalgoSink) ConsumeSample(s Sample) bool {
	m.mu.Lock()
	ok := m.started && m.device != nil
	m.mu.Unlock()
	if !ok {
		return false
	}
	return m.fifo.push(s)
}

// Loop reports whether the device is running
func (m *MalgoSink) Loop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.closed
}

// Stop closes the device and the context
func (m *MalgoSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeDevice()
	m.started = false
	m.rate = 0
	m.fifo.reset()
	err := m.ctx.close()
	m.ctx = nil
	if u := m.fifo.underruns(); u > 0 {
		slog.Debug("malgo sink stopped", "underruns", u)
	}
	return err
}

// Buffered is the number of queued samples
func (m *MalgoSink) Buffered() int {
	return m.fifo.len()
}

func (m *MalgoSink) GetVolume() float32 {
	return math.Float32frombits(m.volume.Load())
}

// SetVolume sets the volume level (0.0 to 1.0)
func (m *MalgoSink) SetVolume(v float32) error {
	if err := validateVolume(v); err != nil {
		return err
	}
	m.volume.Store(math.Float32bits(v))
	return nil
}

var (
	_ Sink   = (*MalgoSink)(nil)
	_ Volume = (*MalgoSink)(nil)
)
