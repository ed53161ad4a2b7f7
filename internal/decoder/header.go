package decoder

import "fmt"

// Version is the MPEG audio version of a frame
type Version int

const (
	MPEG1 Version = iota
	MPEG2
)

func (v Version) String() string {
	if v == MPEG2 {
		return "MPEG-2"
	}
	return "MPEG-1"
}

const (
	samplesPerGranule = 576
	headerSize        = 4
	modeMono          = 3
)

var layer3Bitrates = [2][16]int{
	{0, 32000, 40000, 48000, 56000, 64000, 80000, 96000,
		112000, 128000, 160000, 192000, 224000, 256000, 320000, 0},
	{0, 8000, 16000, 24000, 32000, 40000, 48000, 56000,
		64000, 80000, 96000, 112000, 128000, 144000, 160000, 0},
}

var sampleRates = [3]int{44100, 48000, 32000}

// Header is a decoded Layer III frame header
type Header struct {
	Version         Version
	Protected       bool // a 16-bit CRC follows the header
	BitrateIndex    int
	SampleRateIndex int
	Padding         bool
	Mode            int
	Emphasis        int
}

// ParseHeader decodes the 4-byte frame header at the start of b. The returned code is
// ErrNone on success, ErrBufLen when b is shorter than a header, ErrLostSync when b
// does not start with a sync word, and a header-specific code for reserved fields.
func ParseHeader(b []byte) (Header, ErrorCode) {
	if len(b) < headerSize {
		return Header{}, ErrBufLen
	}
	if b[0] != 0xff || b[1]&0xe0 != 0xe0 {
		return Header{}, ErrLostSync
	}

	var h Header
	switch (b[1] >> 3) & 0x03 {
	case 3:
		h.Version = MPEG1
	case 2:
		h.Version = MPEG2
	case 1:
		return Header{}, ErrLostSync
	default:
		// MPEG-2.5
		return Header{}, ErrBadLayer
	}
	if (b[1]>>1)&0x03 != 1 {
		return Header{}, ErrBadLayer
	}
	h.Protected = b[1]&0x01 == 0

	h.BitrateIndex = int(b[2] >> 4)
	if h.BitrateIndex == 0 || h.BitrateIndex == 15 {
		return Header{}, ErrBadBitrate
	}
	h.SampleRateIndex = int((b[2] >> 2) & 0x03)
	if h.SampleRateIndex == 3 {
		return Header{}, ErrBadSampleRate
	}
	h.Padding = (b[2]>>1)&0x01 == 1

	h.Mode = int(b[3] >> 6)
	h.Emphasis = int(b[3] & 0x03)
	if h.Emphasis == 2 {
		return Header{}, ErrBadEmphasis
	}
	if h.FrameSize() > MaxFrameSize {
		return Header{}, ErrBadFrameLen
	}
	return h, ErrNone
}

func (h Header) lsf() int {
	if h.Version == MPEG2 {
		return 1
	}
	return 0
}

// Bitrate in bits per second
func (h Header) Bitrate() int {
	return layer3Bitrates[h.lsf()][h.BitrateIndex]
}

// SampleRate in Hz
func (h Header) SampleRate() int {
	return sampleRates[h.SampleRateIndex] >> h.lsf()
}

// Channels is 1 for single channel frames, otherwise 2
func (h Header) Channels() int {
	if h.Mode == modeMono {
		return 1
	}
	return 2
}

// Granules per frame, 2 for MPEG-1 and 1 for MPEG-2
func (h Header) Granules() int {
	return 2 >> h.lsf()
}

// SamplesPerFrame is the number of samples per channel in one frame
func (h Header) SamplesPerFrame() int {
	return samplesPerGranule * h.Granules()
}

// FrameSize is the length of the whole frame in bytes, header included.
func (h Header) FrameSize() int {
	pad := 0
	if h.Padding {
		pad = 1
	}
	return ((144*h.Bitrate())/h.SampleRate() + pad) >> h.lsf()
}

// PCMSize is the length of the interleaved 16-bit stereo output of one frame
func (h Header) PCMSize() int {
	return h.SamplesPerFrame() * 4
}

func (h Header) String() string {
	return fmt.Sprintf("%s layer III %d kbit/s %d Hz %dch",
		h.Version, h.Bitrate()/1000, h.SampleRate(), h.Channels())
}

// Bytes encodes the header back into its 4-byte form
func (h Header) Bytes() []byte {
	b := []byte{0xff, 0xe0, 0, 0}
	if h.Version == MPEG1 {
		b[1] |= 3 << 3
	} else {
		b[1] |= 2 << 3
	}
	b[1] |= 1 << 1
	if !h.Protected {
		b[1] |= 0x01
	}
	b[2] = byte(h.BitrateIndex<<4) | byte(h.SampleRateIndex<<2)
	if h.Padding {
		b[2] |= 0x02
	}
	b[3] = byte(h.Mode<<6) | byte(h.Emphasis&0x03)
	return b
}
