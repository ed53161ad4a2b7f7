// Package engine drives decoding from a ByteSource into a Sink one cooperative step
// at a time. Nothing here starts goroutines; the caller owns the loop.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"airwave.click/internal/decoder"
	"airwave.click/internal/sink"
	"airwave.click/internal/source"
	"airwave.click/internal/status"
)

// Setup errors leave the engine idle
var (
	ErrNoSource       = errors.New("no source")
	ErrNoSink         = errors.New("no sink")
	ErrSourceNotOpen  = errors.New("source is not open")
	ErrBufferTooSmall = errors.New("staging buffer too small")
	ErrSinkBegin      = errors.New("sink failed to start")
	ErrRunning        = errors.New("engine is running")
	ErrNotRunning     = errors.New("engine is not running")
)

// Reasons a run ended
var (
	ErrEndOfInput   = errors.New("end of input")
	ErrDecode       = errors.New("unrecoverable decode error")
	ErrSynthesis    = errors.New("synthesis stopped")
	ErrSinkRejected = errors.New("sink rejected stream format")
)

// Stats describe the current or last run
type Stats struct {
	Running          bool
	Frames           uint64
	Samples          uint64
	DecodeErrors     uint64 // recoverable errors reported as status events
	SuppressedErrors uint64 // lost sync at stream offset 0
	Refills          uint64
	SampleRate       int
	Channels         int
	Pending          bool
}

// Option configures an Engine
type Option func(*Engine)

// WithDecoder sets the decoder factory, MP3 by default
func WithDecoder(f decoder.Factory) Option {
	return func(e *Engine) {
		if f != nil {
			e.newDecoder = f
		}
	}
}

// WithBufferSize sets the staging buffer size. Begin rejects sizes below
// decoder.MinBufferSize.
func WithBufferSize(n int) Option {
	return func(e *Engine) { e.bufSize = n }
}

// WithStepLimit caps how many samples one Loop hands to the sink. Zero means no
// cap, so a sink that never refuses gets the whole stream in one step.
func WithStepLimit(n int) Option {
	return func(e *Engine) { e.stepLimit = max(n, 0) }
}

// WithEmitter sends decode diagnostics through em
func WithEmitter(em *status.Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.status = em
		}
	}
}

// WithHook adds a status hook to the engine's emitter
func WithHook(h status.Hook) Option {
	return func(e *Engine) { e.status.Add(h) }
}

// Engine is the decode/playback state machine. It is not safe for concurrent use.
type Engine struct {
	newDecoder decoder.Factory
	bufSize    int
	stepLimit  int
	status     *status.Emitter

	src source.ByteSource
	out sink.Sink
	dec decoder.FrameDecoder

	buf         []byte
	valid       int
	windowStart int64 // stream offset of buf[0]

	block     decoder.Block
	blockPos  int
	subframe  int
	subframes int

	pending    sink.Sample
	hasPending bool

	lastRate     int
	lastChannels int

	running bool
	err     error
	stats   Stats
}

// New creates an idle engine
func New(opts ...Option) *Engine {
	e := &Engine{
		newDecoder: decoder.NewMP3,
		bufSize:    decoder.DefaultBufferSize,
		status:     status.NewEmitter(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetBufferSize changes the staging buffer size for the next run
func (e *Engine) SetBufferSize(n int) error {
	if e.running {
		return ErrRunning
	}
	if n < decoder.MinBufferSize {
		return fmt.Errorf("%w: %d < %d", ErrBufferTooSmall, n, decoder.MinBufferSize)
	}
	e.bufSize = n
	return nil
}

// BufferSize is the staging buffer size used by the next Begin
func (e *Engine) BufferSize() int { return e.bufSize }

// Begin validates src and out, allocates the staging buffer and decoder, and starts
// the sink. On error the engine stays idle and nothing is closed.
func (e *Engine) Begin(src source.ByteSource, out sink.Sink) error {
	switch {
	case e.running:
		return ErrRunning
	case src == nil:
		return ErrNoSource
	case out == nil:
		return ErrNoSink
	case !src.IsOpen():
		return ErrSourceNotOpen
	case e.bufSize < decoder.MinBufferSize:
		return fmt.Errorf("%w: %d < %d", ErrBufferTooSmall, e.bufSize, decoder.MinBufferSize)
	}

	if len(e.buf) != e.bufSize {
		e.buf = make([]byte, e.bufSize)
	}
	dec := e.newDecoder()

	if err := out.Begin(); err != nil {
		_ = dec.Close()
		e.buf = nil
		return fmt.Errorf("%w: %v", ErrSinkBegin, err)
	}

	e.src = src
	e.out = out
	e.dec = dec
	e.valid = 0
	e.windowStart = src.Pos()
	e.dec.Buffer(e.buf[:0])

	// stale cursors force a decode on the first step
	e.block = decoder.Block{}
	e.blockPos = 0
	e.subframe = 0
	e.subframes = 0
	e.hasPending = false
	e.lastRate = 0
	e.lastChannels = 0

	e.err = nil
	e.stats = Stats{}
	e.running = true

	slog.Debug("engine started", "buffer_size", e.bufSize, "stream_offset", e.windowStart)
	return nil
}

// IsRunning reports whether a run is in progress
func (e *Engine) IsRunning() bool { return e.running }

// Err is why the last run ended: nil while running or after Stop, wrapping
// ErrEndOfInput for a stream that simply ran out.
func (e *Engine) Err() error { return e.err }

// Stats snapshot
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Running = e.running
	s.SampleRate = e.lastRate
	s.Channels = e.lastChannels
	s.Pending = e.hasPending
	return s
}

// Loop advances playback as far as the sink and the step limit allow. It returns
// false once the run is over (or was never started).
func (e *Engine) Loop() bool {
	if !e.running {
		return false
	}

	delivered := 0
	if e.hasPending {
		if !e.out.ConsumeSample(e.pending) {
			e.housekeeping()
			return true
		}
		e.hasPending = false
		e.stats.Samples++
		delivered++
	}

	for e.stepLimit == 0 || delivered < e.stepLimit {
		s, err := e.nextSample()
		if err != nil {
			e.fail(err)
			return false
		}
		if !e.out.ConsumeSample(s) {
			e.pending = s
			e.hasPending = true
			break
		}
		e.stats.Samples++
		delivered++
	}

	e.housekeeping()
	return true
}

func (e *Engine) housekeeping() {
	e.src.Loop()
	e.out.Loop()
}

// nextSample extracts one sample pair, decoding and synthesizing as needed
func (e *Engine) nextSample() (sink.Sample, error) {
	for e.blockPos >= e.block.Length {
		if e.subframe >= e.subframes {
			if err := e.decodeFrame(); err != nil {
				return sink.Sample{}, err
			}
		}

		flow := e.dec.Synthesize(e.subframe, &e.block)
		e.subframe++
		e.blockPos = 0
		if flow.Terminal() {
			e.block.Length = 0
			return sink.Sample{}, fmt.Errorf("%w: %s", ErrSynthesis, flow)
		}
		if e.block.Length > 0 {
			if err := e.announce(); err != nil {
				return sink.Sample{}, err
			}
		}
	}

	s := sink.Sample{e.block.Left[e.blockPos], e.block.Right[e.blockPos]}
	e.blockPos++
	return s, nil
}

// announce tells the sink about a format change
func (e *Engine) announce() error {
	if e.block.SampleRate != e.lastRate {
		if err := e.out.SetRate(e.block.SampleRate); err != nil {
			return fmt.Errorf("%w: rate %d: %v", ErrSinkRejected, e.block.SampleRate, err)
		}
		e.lastRate = e.block.SampleRate
	}
	if e.block.Channels != e.lastChannels {
		if err := e.out.SetChannels(e.block.Channels); err != nil {
			return fmt.Errorf("%w: channels %d: %v", ErrSinkRejected, e.block.Channels, err)
		}
		e.lastChannels = e.block.Channels
	}
	return nil
}

// decodeFrame decodes the next frame, refilling the staging buffer when the
// decoder runs dry and retrying recoverable errors in place
func (e *Engine) decodeFrame() error {
	for {
		err := e.dec.DecodeFrame()
		if err == nil {
			e.subframe = 0
			e.subframes = e.dec.Subframes()
			e.stats.Frames++
			return nil
		}

		code := decoder.CodeOf(err)
		switch {
		case code.Recoverable():
			e.report(code, err)
		case code == decoder.ErrBufLen:
			if err := e.refill(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
}

func (e *Engine) report(code decoder.ErrorCode, err error) {
	offset := e.windowStart + int64(e.dec.ThisFrame())
	if code == decoder.ErrLostSync && offset == 0 {
		e.stats.SuppressedErrors++
		return
	}
	e.stats.DecodeErrors++
	e.status.Emit(status.Event{
		Code:        status.DecodeError,
		Message:     err.Error(),
		DecoderCode: int(code),
		Offset:      offset,
	})
}

// refill moves the unread tail to the front of the staging buffer and tops it up
// with one blocking read
func (e *Engine) refill() error {
	unused := 0
	if e.valid > 0 {
		unused = e.valid - e.dec.NextFrame()
		unused = max(0, min(unused, e.valid))
		if unused == len(e.buf) {
			slog.Debug("staging buffer full without a frame, discarding", "stream_offset", e.windowStart)
			unused = 0
		}
		copy(e.buf, e.buf[e.valid-unused:e.valid])
	}

	e.windowStart = e.src.Pos() - int64(unused)
	n, err := e.src.Read(e.buf[unused:])
	if n <= 0 {
		e.valid = unused
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEndOfInput, err)
		}
		return ErrEndOfInput
	}
	e.valid = unused + n
	e.dec.Buffer(e.buf[:e.valid])
	e.stats.Refills++
	return nil
}

// fail ends the run from inside Loop
func (e *Engine) fail(err error) {
	e.err = err
	if errors.Is(err, ErrEndOfInput) {
		slog.Debug("engine reached end of input", "frames", e.stats.Frames, "samples", e.stats.Samples)
	} else {
		slog.Warn("engine stopped on error", "error", err, "frames", e.stats.Frames, "samples", e.stats.Samples)
	}
	if cerr := e.halt(); cerr != nil {
		slog.Debug("source close failed", "error", cerr)
	}
}

// Stop ends the run and returns the source's close error
func (e *Engine) Stop() error {
	if !e.running {
		return ErrNotRunning
	}
	return e.halt()
}

func (e *Engine) halt() error {
	e.running = false
	e.hasPending = false

	if e.dec != nil {
		if err := e.dec.Close(); err != nil {
			slog.Debug("decoder close failed", "error", err)
		}
		e.dec = nil
	}
	e.buf = nil
	e.valid = 0

	if err := e.out.Stop(); err != nil {
		slog.Warn("sink stop failed", "error", err)
	}
	err := e.src.Close()

	e.src = nil
	e.out = nil
	return err
}
