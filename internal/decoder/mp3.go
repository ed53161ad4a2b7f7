package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/hajimehoshi/go-mp3"
)

const id3HeaderSize = 10

// feed hands whole frames to the go-mp3 decoder. It must not implement io.Seeker,
// otherwise go-mp3 rewinds it to scan for a length.
type feed struct {
	buf bytes.Buffer
}

func (f *feed) Read(p []byte) (int, error) {
	if f.buf.Len() == 0 {
		return 0, io.EOF
	}
	return f.buf.Read(p)
}

// MP3Decoder decodes MPEG-1 and MPEG-2 Layer III frames out of a window of
// compressed bytes. Frame boundaries, tag skipping and resync are handled here and
// each complete frame is passed to go-mp3 for synthesis.
type MP3Decoder struct {
	window []byte
	this   int
	next   int
	skip   int // tag bytes still to skip, may span windows

	feed feed
	dec  *mp3.Decoder
	pcm  []byte

	header  Header
	decoded bool
	frames  int
}

// NewMP3Decoder returns a decoder with no window set
func NewMP3Decoder() *MP3Decoder {
	return &MP3Decoder{}
}

// NewMP3 is a Factory for MP3Decoder
func NewMP3() FrameDecoder {
	return NewMP3Decoder()
}

// Buffer sets the window to decode from and rewinds the frame cursors
func (d *MP3Decoder) Buffer(window []byte) {
	d.window = window
	d.this = 0
	d.next = 0
}

func (d *MP3Decoder) ThisFrame() int { return d.this }

func (d *MP3Decoder) NextFrame() int { return d.next }

// Header of the last successfully decoded frame
func (d *MP3Decoder) Header() Header { return d.header }

// Frames is the number of frames decoded so far
func (d *MP3Decoder) Frames() int { return d.frames }

// Subframes in the last decoded frame, 0 before the first frame
func (d *MP3Decoder) Subframes() int {
	if !d.decoded {
		return 0
	}
	return d.header.SamplesPerFrame() / SubframeSamples
}

// DecodeFrame decodes the next frame in the window
func (d *MP3Decoder) DecodeFrame() error {
	if d.window == nil {
		return decodeErr(ErrBufPtr, nil)
	}
	pos := d.next

	if d.skip > 0 {
		n := min(d.skip, len(d.window)-pos)
		d.skip -= n
		pos += n
		d.this = pos
		d.next = pos
		if d.skip > 0 {
			return decodeErr(ErrBufLen, nil)
		}
	}
	d.this = pos

	if tag, ok := d.id3Size(pos); ok {
		if tag < 0 {
			d.next = pos
			return decodeErr(ErrBufLen, nil)
		}
		slog.Debug("skipping ID3v2 tag", "offset_in_window", pos, "size", tag)
		d.skip = tag
		return decodeErr(ErrLostSync, fmt.Errorf("ID3v2 tag of %d bytes", tag))
	}

	start, h, code := d.sync(pos)
	switch {
	case code == ErrBufLen:
		return decodeErr(ErrBufLen, nil)
	case start > pos:
		d.next = start
		return decodeErr(ErrLostSync, nil)
	case code != ErrNone:
		d.next = pos + 1
		return decodeErr(code, nil)
	}

	size := h.FrameSize()
	if pos+size > len(d.window) {
		d.next = pos
		return decodeErr(ErrBufLen, nil)
	}
	d.next = pos + size

	if err := d.decode(h, d.window[pos:pos+size]); err != nil {
		slog.Debug("frame decode failed", "offset_in_window", pos, "header", h.String(), "error", err)
		d.feed.buf.Reset()
		d.dec = nil
		return decodeErr(ErrBadFrameDecode, err)
	}
	d.header = h
	d.decoded = true
	d.frames++
	return nil
}

// id3Size reports whether an ID3v2 tag starts at pos and its full length.
// A length of -1 means the tag header is cut off by the end of the window.
func (d *MP3Decoder) id3Size(pos int) (int, bool) {
	rest := d.window[pos:]
	if len(rest) < 3 {
		if bytes.HasPrefix([]byte("ID3"), rest) && len(rest) > 0 {
			return -1, true
		}
		return 0, false
	}
	if !bytes.HasPrefix(rest, []byte("ID3")) {
		return 0, false
	}
	if len(rest) < id3HeaderSize {
		return -1, true
	}
	size := int(rest[6]&0x7f)<<21 | int(rest[7]&0x7f)<<14 | int(rest[8]&0x7f)<<7 | int(rest[9]&0x7f)
	size += id3HeaderSize
	if rest[5]&0x10 != 0 {
		// footer present
		size += id3HeaderSize
	}
	return size, true
}

// sync finds the first frame header at or after pos. When a sync word with bad
// header fields sits exactly at pos its error code is returned. When nothing is found
// the cursor keeps the trailing bytes that could still begin a header.
func (d *MP3Decoder) sync(pos int) (int, Header, ErrorCode) {
	for i := pos; i+1 < len(d.window); i++ {
		if d.window[i] != 0xff || d.window[i+1]&0xe0 != 0xe0 {
			continue
		}
		h, code := ParseHeader(d.window[i:])
		switch {
		case code == ErrNone:
			return i, h, ErrNone
		case code == ErrBufLen:
			if i > pos {
				return i, Header{}, ErrLostSync
			}
			d.next = i
			return i, Header{}, ErrBufLen
		case i == pos && code != ErrLostSync:
			return i, Header{}, code
		}
	}
	d.next = max(pos, len(d.window)-(headerSize-1))
	return len(d.window), Header{}, ErrBufLen
}

func (d *MP3Decoder) decode(h Header, frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mp3: decoder panic: %v", r)
		}
	}()

	d.feed.buf.Reset()
	d.feed.buf.Write(frame)

	if d.dec == nil {
		dec, err := mp3.NewDecoder(&d.feed)
		if err != nil {
			return err
		}
		d.dec = dec
	}

	n := h.PCMSize()
	if cap(d.pcm) < n {
		d.pcm = make([]byte, n)
	}
	d.pcm = d.pcm[:n]
	if _, err := io.ReadFull(d.dec, d.pcm); err != nil {
		return err
	}
	return nil
}

// Synthesize copies one 32-sample slice of the last decoded frame into out
func (d *MP3Decoder) Synthesize(subframe int, out *Block) Flow {
	if !d.decoded || subframe < 0 || subframe >= d.Subframes() {
		return FlowBreak
	}
	out.SampleRate = d.header.SampleRate()
	out.Channels = d.header.Channels()
	out.Length = SubframeSamples

	base := subframe * SubframeSamples * 4
	for i := 0; i < SubframeSamples; i++ {
		off := base + i*4
		out.Left[i] = int16(binary.LittleEndian.Uint16(d.pcm[off:]))
		out.Right[i] = int16(binary.LittleEndian.Uint16(d.pcm[off+2:]))
	}
	return FlowContinue
}

// Close releases the go-mp3 decoder and the window
func (d *MP3Decoder) Close() error {
	d.dec = nil
	d.window = nil
	d.pcm = nil
	d.feed.buf.Reset()
	d.decoded = false
	return nil
}

var _ FrameDecoder = (*MP3Decoder)(nil)
