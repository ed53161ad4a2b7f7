package engine

import (
	"errors"
	"io"

	"airwave.click/internal/decoder"
	"airwave.click/internal/sink"
	"airwave.click/internal/source"
)

// Test framing: 8-byte frames that start with frameMarker. errorMarker is a
// recoverable bad-CRC byte, fatalMarker an unrecoverable one, anything else is
// garbage the decoder has to resync past.
const (
	frameSize   = 8
	frameMarker = 0xa5
	errorMarker = 0xee
	fatalMarker = 0xff
)

var testRates = []int{44100, 22050, 48000}

type frame struct {
	seq      uint16
	rate     byte // index into testRates
	channels byte
	count    byte // samples per block, may be 0
	blocks   byte
}

func (f frame) bytes() []byte {
	return []byte{frameMarker, byte(f.seq >> 8), byte(f.seq), f.rate, f.channels, f.count, f.blocks, 0}
}

func (f frame) samples() []sink.Sample {
	var out []sink.Sample
	for b := 0; b < int(f.blocks); b++ {
		for i := 0; i < int(f.count); i++ {
			out = append(out, sink.Sample{int16(f.seq), int16(b*decoder.SubframeSamples + i)})
		}
	}
	return out
}

func stream(frames ...frame) ([]byte, []sink.Sample) {
	var data []byte
	var want []sink.Sample
	for _, f := range frames {
		data = append(data, f.bytes()...)
		want = append(want, f.samples()...)
	}
	return data, want
}

func simpleFrames(n int) []frame {
	frames := make([]frame, n)
	for i := range frames {
		frames[i] = frame{seq: uint16(i), channels: 2, count: decoder.SubframeSamples, blocks: 2}
	}
	return frames
}

type fakeDecoder struct {
	window  []byte
	this    int
	next    int
	current frame
	decoded bool
	closed  bool
	flows   map[uint16]decoder.Flow // forced synthesis result per frame seq
}

func (d *fakeDecoder) Buffer(window []byte) {
	d.window = window
	d.this, d.next = 0, 0
}

func (d *fakeDecoder) DecodeFrame() error {
	if d.window == nil {
		return &decoder.DecodeError{Code: decoder.ErrBufPtr}
	}
	pos := d.next
	d.this = pos
	if pos >= len(d.window) {
		return &decoder.DecodeError{Code: decoder.ErrBufLen}
	}
	switch d.window[pos] {
	case frameMarker:
		if pos+frameSize > len(d.window) {
			return &decoder.DecodeError{Code: decoder.ErrBufLen}
		}
		b := d.window[pos:]
		d.current = frame{seq: uint16(b[1])<<8 | uint16(b[2]), rate: b[3], channels: b[4], count: b[5], blocks: b[6]}
		d.decoded = true
		d.next = pos + frameSize
		return nil
	case errorMarker:
		d.next = pos + 1
		return &decoder.DecodeError{Code: decoder.ErrBadCRC}
	case fatalMarker:
		return &decoder.DecodeError{Code: decoder.ErrBufPtr}
	}
	for i := pos; i < len(d.window); i++ {
		if d.window[i] == frameMarker {
			d.next = i
			return &decoder.DecodeError{Code: decoder.ErrLostSync}
		}
	}
	d.next = len(d.window)
	return &decoder.DecodeError{Code: decoder.ErrBufLen}
}

func (d *fakeDecoder) ThisFrame() int { return d.this }
func (d *fakeDecoder) NextFrame() int { return d.next }

func (d *fakeDecoder) Subframes() int {
	if !d.decoded {
		return 0
	}
	return int(d.current.blocks)
}

func (d *fakeDecoder) Synthesize(sub int, out *decoder.Block) decoder.Flow {
	if flow, ok := d.flows[d.current.seq]; ok {
		return flow
	}
	if !d.decoded || sub >= int(d.current.blocks) {
		return decoder.FlowBreak
	}
	out.SampleRate = testRates[d.current.rate]
	out.Channels = int(d.current.channels)
	out.Length = int(d.current.count)
	for i := 0; i < out.Length; i++ {
		out.Left[i] = int16(d.current.seq)
		out.Right[i] = int16(sub*decoder.SubframeSamples + i)
	}
	return decoder.FlowContinue
}

func (d *fakeDecoder) Close() error {
	d.closed = true
	return nil
}

// decoderRecorder hands out fakeDecoders and remembers them
type decoderRecorder struct {
	made  []*fakeDecoder
	flows map[uint16]decoder.Flow
}

func (r *decoderRecorder) factory() decoder.FrameDecoder {
	d := &fakeDecoder{flows: r.flows}
	r.made = append(r.made, d)
	return d
}

// chunkSource serves data at most chunk bytes per read
type chunkSource struct {
	data     []byte
	pos      int
	chunk    int
	open     bool
	loops    int
	closes   int
	closeErr error
}

func newChunkSource(data []byte, chunk int) *chunkSource {
	return &chunkSource{data: data, chunk: chunk, open: true}
}

func (s *chunkSource) Read(p []byte) (int, error) {
	if !s.open {
		return 0, source.ErrNotOpen
	}
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := min(len(p), s.chunk, len(s.data)-s.pos)
	copy(p, s.data[s.pos:s.pos+n])
	s.pos += n
	return n, nil
}

func (s *chunkSource) ReadNonBlock(p []byte) (int, error) { return s.Read(p) }

func (s *chunkSource) Seek(int64, int) (int64, error) { return 0, source.ErrSeekUnsupported }

func (s *chunkSource) Close() error {
	s.open = false
	s.closes++
	return s.closeErr
}

func (s *chunkSource) IsOpen() bool { return s.open }
func (s *chunkSource) Size() int64  { return int64(len(s.data)) }
func (s *chunkSource) Pos() int64   { return int64(s.pos) }

func (s *chunkSource) Loop() bool {
	s.loops++
	return s.pos < len(s.data)
}

// captureSink takes up to capacity samples per tick
type captureSink struct {
	capacity int // 0 is unlimited
	taken    int
	got      []sink.Sample
	offers   int
	rates    []int
	channels []int
	begins   int
	stops    int
	loops    int
	beginErr error
	rateErr  error
}

func (c *captureSink) Begin() error {
	if c.beginErr != nil {
		return c.beginErr
	}
	c.begins++
	return nil
}

func (c *captureSink) SetRate(hz int) error {
	if c.rateErr != nil {
		return c.rateErr
	}
	c.rates = append(c.rates, hz)
	return nil
}

func (c *captureSink) SetChannels(n int) error {
	c.channels = append(c.channels, n)
	return nil
}

func (c *captureSink) ConsumeSample(s sink.Sample) bool {
	c.offers++
	if c.capacity > 0 && c.taken >= c.capacity {
		return false
	}
	c.taken++
	c.got = append(c.got, s)
	return true
}

func (c *captureSink) tick() { c.taken = 0 }

func (c *captureSink) Stop() error {
	c.stops++
	return nil
}

func (c *captureSink) Loop() bool {
	c.loops++
	return true
}

var errBoom = errors.New("boom")
