// Package player wires a source, an optional prefetch ring, the engine and a sink
// together and runs the cooperative loop until the stream ends or the context is
// cancelled.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/spf13/afero"

	"airwave.click/internal/buffer"
	"airwave.click/internal/decoder"
	"airwave.click/internal/engine"
	"airwave.click/internal/sink"
	"airwave.click/internal/source"
	"airwave.click/internal/status"
)

const (
	DefaultTick         = 5 * time.Millisecond
	DefaultPrimeTimeout = 15 * time.Second
	DefaultStepSamples  = 4096
	sniffSize           = 512
)

var (
	ErrNoLocation   = errors.New("no stream location")
	ErrPrimeTimeout = errors.New("timed out filling the prefetch buffer")
	ErrClosed       = errors.New("player is closed")
)

// Config describes one playback
type Config struct {
	Location     string // http(s) URL or file path
	Format       string // force a format by name, detected when empty
	RingSize     int    // prefetch ring capacity, 0 reads the source directly
	BufferSize   int    // engine staging buffer, 0 for the default
	StepSamples  int    // samples per engine step, 0 for the default
	Duration     time.Duration
	Tick         time.Duration
	PrimeTimeout time.Duration
	HTTPOptions  []source.HTTPOption
	Fs           afero.Fs
	Registry     *decoder.Registry
	Emitter      *status.Emitter
	OnStep       func(Stats) // called after each engine step, on the Run goroutine
}

// Stats is a snapshot of a playback
type Stats struct {
	Location   string
	Format     string
	Engine     engine.Stats
	Ring       buffer.Stats
	HasRing    bool
	SourcePos  int64
	SourceSize int64
	Elapsed    time.Duration
}

// RingFill is the ring buffer fill ratio, 0 without a ring
func (s Stats) RingFill() float64 {
	if !s.HasRing || s.Ring.Capacity == 0 {
		return 0
	}
	return float64(s.Ring.Available) / float64(s.Ring.Capacity)
}

// Player owns the source and the engine for one stream
type Player struct {
	cfg    Config
	raw    source.ByteSource
	ring   *buffer.RingBuffer
	src    source.ByteSource
	format decoder.Format
	engine *engine.Engine

	mu      sync.Mutex
	stats   Stats
	started time.Time
	begun   bool
	closed  bool
}

// IsURL reports whether location should be opened over HTTP
func IsURL(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Open opens the source, primes the ring and picks a decoder
func Open(ctx context.Context, cfg Config) (*Player, error) {
	if cfg.Location == "" {
		return nil, ErrNoLocation
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Registry == nil {
		cfg.Registry = decoder.NewDefaultRegistry()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = status.NewEmitter()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.PrimeTimeout <= 0 {
		cfg.PrimeTimeout = DefaultPrimeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = decoder.DefaultBufferSize
	}
	if cfg.StepSamples <= 0 {
		cfg.StepSamples = DefaultStepSamples
	}

	p := &Player{cfg: cfg}
	contentType, err := p.openSource(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.RingSize > 0 {
		ring, err := buffer.NewRingBuffer(p.raw, cfg.RingSize)
		if err != nil {
			p.raw.Close()
			return nil, err
		}
		p.ring = ring
		p.src = ring
		if err := p.prime(ctx); err != nil {
			p.raw.Close()
			return nil, err
		}
	}

	head := p.sniff()
	if err := p.pickFormat(contentType, head); err != nil {
		p.src.Close()
		return nil, err
	}

	p.engine = engine.New(
		engine.WithDecoder(p.format.New),
		engine.WithBufferSize(cfg.BufferSize),
		engine.WithStepLimit(cfg.StepSamples),
		engine.WithEmitter(cfg.Emitter),
	)
	p.stats = Stats{Location: cfg.Location, Format: p.format.Name, HasRing: p.ring != nil}
	return p, nil
}

func (p *Player) openSource(ctx context.Context) (string, error) {
	if IsURL(p.cfg.Location) {
		opts := append([]source.HTTPOption{source.WithEmitter(p.cfg.Emitter)}, p.cfg.HTTPOptions...)
		s, err := source.OpenHTTP(ctx, p.cfg.Location, opts...)
		if err != nil {
			return "", err
		}
		p.raw, p.src = s, s
		return s.ContentType(), nil
	}

	f, err := source.OpenFile(p.cfg.Fs, p.cfg.Location)
	if err != nil {
		p.cfg.Emitter.Emit(status.Event{Code: status.OpenFailed, Message: err.Error()})
		return "", err
	}
	p.raw, p.src = f, f
	return "", nil
}

// prime fills the ring until it is full once or the upstream ends
func (p *Player) prime(ctx context.Context) error {
	deadline := time.Now().Add(p.cfg.PrimeTimeout)
	for !p.ring.Primed() && !p.ring.Exhausted() {
		if p.ring.Fill() > 0 {
			continue
		}
		p.raw.Loop()
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %d of %d bytes after %s", ErrPrimeTimeout,
				p.ring.Available(), p.ring.Capacity(), p.cfg.PrimeTimeout)
		}
		if err := sleep(ctx, p.cfg.Tick); err != nil {
			return err
		}
	}
	p.cfg.Emitter.Emitf(status.Info, "prefetch buffer ready (%d bytes)", p.ring.Available())
	return nil
}

// sniff returns the first bytes of the stream without consuming them when possible
func (p *Player) sniff() []byte {
	head := make([]byte, sniffSize)
	switch src := p.src.(type) {
	case *buffer.RingBuffer:
		return head[:src.Peek(head)]
	case *source.FileSource:
		n, _ := src.Read(head)
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			slog.Warn("failed to rewind after sniffing", "path", src.Path(), "error", err)
		}
		return head[:n]
	}
	return nil
}

func (p *Player) pickFormat(contentType string, head []byte) error {
	if p.cfg.Format != "" {
		f, ok := p.cfg.Registry.ByName(p.cfg.Format)
		if !ok {
			return fmt.Errorf("%w: %s", decoder.ErrUnsupportedFormat, p.cfg.Format)
		}
		p.format = f
		return nil
	}
	f, err := p.cfg.Registry.Detect(p.cfg.Location, contentType, head)
	if err != nil {
		return fmt.Errorf("%w: %s", err, p.cfg.Location)
	}
	p.format = f
	return nil
}

// Format is the detected decoder format
func (p *Player) Format() decoder.Format { return p.format }

// Run plays into out until the stream ends, Duration passes or ctx is done.
// A stream that simply ends is not an error.
func (p *Player) Run(ctx context.Context, out sink.Sink) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	if err := p.engine.Begin(p.src, out); err != nil {
		return err
	}
	p.mu.Lock()
	p.begun = true
	p.started = time.Now()
	p.mu.Unlock()

	p.cfg.Emitter.Emitf(status.Info, "playing %s (%s)", p.cfg.Location, p.format.Name)

	var deadline time.Time
	if p.cfg.Duration > 0 {
		deadline = p.started.Add(p.cfg.Duration)
	}

	for {
		if p.ring != nil {
			p.ring.Fill()
		}
		running := p.engine.Loop()
		p.snapshot()
		if !running {
			break
		}

		if ctx.Err() != nil || (!deadline.IsZero() && time.Now().After(deadline)) {
			slog.Debug("stopping playback", "context_error", ctx.Err())
			if err := p.engine.Stop(); err != nil {
				slog.Debug("source close failed", "error", err)
			}
			p.snapshot()
			p.finish()
			return ctx.Err()
		}

		if p.engine.Stats().Pending {
			if err := sleep(ctx, p.cfg.Tick); err != nil {
				continue
			}
		}
	}

	p.finish()
	err := p.engine.Err()
	if errors.Is(err, engine.ErrEndOfInput) {
		return nil
	}
	return err
}

func (p *Player) finish() {
	st := p.Stats()
	p.cfg.Emitter.Emitf(status.Info, "playback finished after %d samples", st.Engine.Samples)
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Player) snapshot() {
	p.mu.Lock()
	p.stats.Engine = p.engine.Stats()
	if p.ring != nil {
		p.stats.Ring = p.ring.Stats()
	}
	p.stats.SourcePos = p.raw.Pos()
	p.stats.SourceSize = p.raw.Size()
	p.stats.Elapsed = time.Since(p.started)
	st := p.stats
	p.mu.Unlock()

	if p.cfg.OnStep != nil {
		p.cfg.OnStep(st)
	}
}

// Stats returns the last snapshot. Safe to call from any goroutine.
func (p *Player) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close releases the source when Run never took ownership of it
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.begun {
		return nil
	}
	return p.src.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
