package buffer

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"airwave.click/internal/source"
)

// trickleSource hands out at most chunk bytes per non-blocking read
type trickleSource struct {
	data          []byte
	pos           int
	chunk         int
	live          bool // never reports EOF, only "nothing right now"
	closed        bool
	blockingReads int
}

func (s *trickleSource) next(p []byte, limit int) (int, error) {
	if s.pos >= len(s.data) {
		if s.live {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := len(p)
	if limit > 0 && n > limit {
		n = limit
	}
	if rest := len(s.data) - s.pos; n > rest {
		n = rest
	}
	copy(p, s.data[s.pos:s.pos+n])
	s.pos += n
	return n, nil
}

func (s *trickleSource) Read(p []byte) (int, error) {
	s.blockingReads++
	return s.next(p, 0)
}
func (s *trickleSource) ReadNonBlock(p []byte) (int, error) { return s.next(p, s.chunk) }
func (s *trickleSource) Seek(int64, int) (int64, error)     { return 0, source.ErrSeekUnsupported }
func (s *trickleSource) Close() error                       { s.closed = true; return nil }
func (s *trickleSource) IsOpen() bool                       { return !s.closed }
func (s *trickleSource) Size() int64                        { return 0 }
func (s *trickleSource) Pos() int64                         { return int64(s.pos) }
func (s *trickleSource) Loop() bool                         { return !s.closed }

func sequence(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

func TestNewRingBufferValidation(t *testing.T) {
	_, err := NewRingBuffer(nil, 16)
	assert.ErrorIs(t, err, ErrNoUpstream)

	_, err = NewRingBuffer(&trickleSource{}, 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestRingBufferPrimesExactlyOnce(t *testing.T) {
	up := &trickleSource{data: sequence(1000), chunk: 7, live: true}
	rb, err := NewRingBuffer(up, 64)
	require.NoError(t, err)

	transitions := 0
	wasPrimed := false
	for i := 0; i < 50; i++ {
		rb.Fill()
		if rb.Primed() && !wasPrimed {
			transitions++
		}
		if wasPrimed {
			assert.True(t, rb.Primed(), "primed must stay set")
		}
		wasPrimed = rb.Primed()

		// drain a little so later fills have room again
		if rb.Primed() {
			rb.ReadNonBlock(make([]byte, 10))
		}
	}
	assert.Equal(t, 1, transitions)
}

func TestRingBufferServesNothingBeforePriming(t *testing.T) {
	up := &trickleSource{data: sequence(100), chunk: 10, live: true}
	rb, err := NewRingBuffer(up, 50)
	require.NoError(t, err)

	rb.Fill()
	require.Equal(t, 10, rb.Available())
	require.False(t, rb.Primed())

	buf := make([]byte, 8)
	n, err := rb.ReadNonBlock(buf)
	assert.Equal(t, 0, n)
	assert.NoError(t, err)

	n, err = rb.Read(buf)
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
	assert.Equal(t, 0, up.blockingReads, "no upstream reads before priming")
	assert.Equal(t, 10, rb.Available())
}

func TestRingBufferWrapsAround(t *testing.T) {
	data := sequence(300)
	up := &trickleSource{data: data, chunk: 1000, live: true}
	rb, err := NewRingBuffer(up, 32)
	require.NoError(t, err)

	rb.Fill()
	require.True(t, rb.Primed())

	var got []byte
	buf := make([]byte, 20)
	for len(got) < len(data) {
		n, err := rb.ReadNonBlock(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
		rb.Fill()
	}
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), rb.Pos())
}

func TestRingBufferDrainsAfterUpstreamEnd(t *testing.T) {
	data := sequence(20)
	up := &trickleSource{data: data, chunk: 8}
	rb, err := NewRingBuffer(up, 64)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		rb.Fill()
	}
	assert.True(t, rb.Exhausted())
	assert.False(t, rb.Primed())
	assert.True(t, rb.IsOpen())

	buf := make([]byte, 64)
	n, err := rb.ReadNonBlock(buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf[:n])

	n, err = rb.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, rb.IsOpen())
}

func TestRingBufferBlockingReadTopsUpOnUnderrun(t *testing.T) {
	data := sequence(200)
	up := &trickleSource{data: data, chunk: 16, live: true}
	rb, err := NewRingBuffer(up, 16)
	require.NoError(t, err)

	rb.Fill()
	require.True(t, rb.Primed())

	buf := make([]byte, 16)
	n, err := rb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	// buffer is empty now; a blocking read should pull from upstream itself
	n, err = rb.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, data[16:32], buf[:n])
	assert.Equal(t, 1, up.blockingReads)
	assert.Equal(t, int64(1), rb.Stats().Underruns)
}

func TestRingBufferPeekDoesNotConsume(t *testing.T) {
	up := &trickleSource{data: []byte("ID3abcdef"), chunk: 100}
	rb, err := NewRingBuffer(up, 8)
	require.NoError(t, err)
	rb.Fill()

	head := make([]byte, 3)
	assert.Equal(t, 3, rb.Peek(head))
	assert.Equal(t, "ID3", string(head))
	assert.Equal(t, 8, rb.Available())

	buf := make([]byte, 3)
	n, _ := rb.ReadNonBlock(buf)
	assert.Equal(t, "ID3", string(buf[:n]))
}

func TestRingBufferCloseClosesUpstream(t *testing.T) {
	up := &trickleSource{}
	rb, err := NewRingBuffer(up, 8)
	require.NoError(t, err)

	require.NoError(t, rb.Close())
	assert.True(t, up.closed)
	_, err = rb.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, source.ErrSeekUnsupported)
}

func TestRingBufferPreservesOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 600).Draw(t, "data")
		capacity := rapid.IntRange(1, 128).Draw(t, "capacity")
		chunk := rapid.IntRange(1, 64).Draw(t, "chunk")

		up := &trickleSource{data: data, chunk: chunk}
		rb, err := NewRingBuffer(up, capacity)
		if err != nil {
			t.Fatalf("new ring buffer: %v", err)
		}

		var got bytes.Buffer
		for steps := 0; steps < 400; steps++ {
			if rapid.Bool().Draw(t, "fill") {
				rb.Fill()
			}
			if rb.Available() < 0 || rb.Available() > capacity {
				t.Fatalf("available %d outside [0,%d]", rb.Available(), capacity)
			}
			buf := make([]byte, rapid.IntRange(1, 64).Draw(t, "read"))
			n, err := rb.ReadNonBlock(buf)
			got.Write(buf[:n])
			if err == io.EOF {
				break
			}
		}
		if !bytes.Equal(got.Bytes(), data[:got.Len()]) {
			t.Fatalf("read bytes are not a prefix of the upstream data")
		}
	})
}
