package buffer

import (
	"errors"
	"io"
	"log/slog"

	"airwave.click/internal/source"
)

// DefaultCapacity is the ring size used when none is configured
const DefaultCapacity = 64 * 1024

// Ring buffer errors
var (
	ErrInvalidCapacity = errors.New("ring buffer capacity must be positive")
	ErrNoUpstream      = errors.New("ring buffer needs an upstream source")
)

// Stats is a snapshot of ring buffer counters
type Stats struct {
	Capacity  int
	Available int
	Primed    bool
	Exhausted bool
	Filled    int64 // bytes pulled from upstream
	Drained   int64 // bytes handed downstream
	Underruns int64 // blocking reads that found less than requested
}

// RingBuffer prefetches from an upstream ByteSource into fixed storage and serves reads
// from memory. Nothing is served until the buffer has been filled once (primed), or the
// upstream has ended.
type RingBuffer struct {
	up   source.ByteSource
	data []byte
	w, r int

	available int
	primed    bool
	exhausted bool

	filled    int64
	drained   int64
	underruns int64
}

// NewRingBuffer wraps upstream with a ring of the given capacity
func NewRingBuffer(upstream source.ByteSource, capacity int) (*RingBuffer, error) {
	if upstream == nil {
		return nil, ErrNoUpstream
	}
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	slog.Debug("creating ring buffer", "capacity", capacity)
	return &RingBuffer{up: upstream, data: make([]byte, capacity)}, nil
}

// Fill pulls from upstream without blocking into the free space, wrapping around as
// needed. It returns the number of bytes added.
func (b *RingBuffer) Fill() int {
	added := 0
	for !b.exhausted && b.available < len(b.data) {
		end := len(b.data)
		if b.w < b.r {
			end = b.r
		}
		want := end - b.w
		n, err := b.up.ReadNonBlock(b.data[b.w:end])
		b.commit(n)
		added += n
		if err != nil {
			b.markExhausted(err)
			break
		}
		if n < want {
			break
		}
	}

	if !b.primed && b.available == len(b.data) {
		b.primed = true
		slog.Info("ring buffer primed", "capacity", len(b.data), "filled", b.filled)
	}
	return added
}

func (b *RingBuffer) commit(n int) {
	if n <= 0 {
		return
	}
	b.w = (b.w + n) % len(b.data)
	b.available += n
	b.filled += int64(n)
}

func (b *RingBuffer) markExhausted(err error) {
	if b.exhausted {
		return
	}
	b.exhausted = true
	if errors.Is(err, io.EOF) {
		slog.Debug("upstream finished, draining ring buffer", "available", b.available)
		return
	}
	slog.Warn("upstream failed, draining ring buffer", "available", b.available, "error", err)
}

// Read drains buffered bytes. When fewer than len(p) bytes are buffered it first makes
// one bounded blocking read from upstream.
func (b *RingBuffer) Read(p []byte) (int, error) {
	if !b.ready() {
		return 0, nil
	}
	if b.available < len(p) && !b.exhausted {
		b.underruns++
		slog.Debug("ring buffer underrun", "available", b.available, "requested", len(p))
		b.topUp()
	}
	return b.drain(p)
}

// ReadNonBlock drains buffered bytes only
func (b *RingBuffer) ReadNonBlock(p []byte) (int, error) {
	if !b.ready() {
		return 0, nil
	}
	return b.drain(p)
}

func (b *RingBuffer) ready() bool {
	return b.primed || b.exhausted
}

// topUp does a single blocking upstream read into the next contiguous free segment
func (b *RingBuffer) topUp() {
	if b.available == len(b.data) {
		return
	}
	end := len(b.data)
	if b.w < b.r {
		end = b.r
	}
	n, err := b.up.Read(b.data[b.w:end])
	b.commit(n)
	if n == 0 || (err != nil && source.IsEnd(err)) {
		if err == nil {
			err = io.EOF
		}
		b.markExhausted(err)
	}
}

func (b *RingBuffer) drain(p []byte) (int, error) {
	if b.available == 0 {
		if b.exhausted {
			return 0, io.EOF
		}
		return 0, nil
	}

	n := len(p)
	if n > b.available {
		n = b.available
	}
	first := n
	if tail := len(b.data) - b.r; first > tail {
		first = tail
	}
	copy(p, b.data[b.r:b.r+first])
	copy(p[first:n], b.data[:n-first])

	b.r = (b.r + n) % len(b.data)
	b.available -= n
	b.drained += int64(n)
	return n, nil
}

// Peek copies up to len(p) buffered bytes without consuming them
func (b *RingBuffer) Peek(p []byte) int {
	n := len(p)
	if n > b.available {
		n = b.available
	}
	first := n
	if tail := len(b.data) - b.r; first > tail {
		first = tail
	}
	copy(p, b.data[b.r:b.r+first])
	copy(p[first:n], b.data[:n-first])
	return n
}

// Seek is not supported
func (b *RingBuffer) Seek(offset int64, whence int) (int64, error) {
	return 0, source.ErrSeekUnsupported
}

// Close closes the upstream source
func (b *RingBuffer) Close() error {
	slog.Debug("closing ring buffer", "available", b.available, "drained", b.drained)
	return b.up.Close()
}

// IsOpen reports whether bytes can still come out of the buffer
func (b *RingBuffer) IsOpen() bool {
	return b.available > 0 || (!b.exhausted && b.up.IsOpen())
}

// Size is the upstream size
func (b *RingBuffer) Size() int64 { return b.up.Size() }

// Pos is the number of bytes served downstream
func (b *RingBuffer) Pos() int64 { return b.drained }

// Loop prefetches and lets the upstream run its own housekeeping
func (b *RingBuffer) Loop() bool {
	b.Fill()
	upOK := b.up.Loop()
	return b.available > 0 || (upOK && !b.exhausted)
}

// Primed reports whether the buffer has been filled to capacity at least once
func (b *RingBuffer) Primed() bool { return b.primed }

// Exhausted reports whether the upstream has ended
func (b *RingBuffer) Exhausted() bool { return b.exhausted }

// Available is the number of buffered bytes
func (b *RingBuffer) Available() int { return b.available }

// Capacity is the size of the backing storage
func (b *RingBuffer) Capacity() int { return len(b.data) }

// Upstream returns the wrapped source
func (b *RingBuffer) Upstream() source.ByteSource { return b.up }

// Stats returns a snapshot of the buffer counters
func (b *RingBuffer) Stats() Stats {
	return Stats{
		Capacity:  len(b.data),
		Available: b.available,
		Primed:    b.primed,
		Exhausted: b.exhausted,
		Filled:    b.filled,
		Drained:   b.drained,
		Underruns: b.underruns,
	}
}

var _ source.ByteSource = (*RingBuffer)(nil)
