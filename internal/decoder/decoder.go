package decoder

import (
	"errors"
	"fmt"
)

// Sizing constants for the compressed staging buffer
const (
	// MaxFrameSize is the largest Layer III frame: 320 kbit/s at 32 kHz with padding.
	MaxFrameSize = 1441
	// GuardBytes must follow the last frame in a window.
	GuardBytes = 8
	// MinBufferSize is the smallest staging buffer that always holds one whole frame.
	MinBufferSize = MaxFrameSize + GuardBytes
	// DefaultBufferSize leaves a little room over MinBufferSize.
	DefaultBufferSize = 1500
	// SubframeSamples is the number of sample pairs one synthesis step yields.
	SubframeSamples = 32
)

// ErrorCode is a decoder-specific error number. Codes with a non-zero high byte are
// recoverable: decoding can resume from the same window.
type ErrorCode int

const (
	ErrNone           ErrorCode = 0x0000
	ErrBufLen         ErrorCode = 0x0001 // input buffer too small or empty
	ErrBufPtr         ErrorCode = 0x0002 // no window set
	ErrLostSync       ErrorCode = 0x0101 // lost synchronization
	ErrBadLayer       ErrorCode = 0x0102 // reserved or unsupported layer
	ErrBadBitrate     ErrorCode = 0x0103 // forbidden or free-format bitrate
	ErrBadSampleRate  ErrorCode = 0x0104 // reserved sample frequency
	ErrBadEmphasis    ErrorCode = 0x0105 // reserved emphasis
	ErrBadFrameLen    ErrorCode = 0x0106 // frame length out of range
	ErrBadCRC         ErrorCode = 0x0201 // CRC check failed
	ErrBadDataPtr     ErrorCode = 0x0235 // main data not available in reservoir
	ErrBadFrameDecode ErrorCode = 0x0238 // frame body failed to decode
)

var errorNames = map[ErrorCode]string{
	ErrNone:           "no error",
	ErrBufLen:         "input buffer too small (or EOF)",
	ErrBufPtr:         "invalid (null) buffer pointer",
	ErrLostSync:       "lost synchronization",
	ErrBadLayer:       "reserved header layer value",
	ErrBadBitrate:     "forbidden bitrate value",
	ErrBadSampleRate:  "reserved sample frequency value",
	ErrBadEmphasis:    "reserved emphasis value",
	ErrBadFrameLen:    "bad frame length",
	ErrBadCRC:         "CRC check failed",
	ErrBadDataPtr:     "bad main data pointer",
	ErrBadFrameDecode: "bad frame data",
}

// Recoverable reports whether decoding may continue after this error
func (c ErrorCode) Recoverable() bool {
	return c&0xff00 != 0
}

func (c ErrorCode) String() string {
	if name, ok := errorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error 0x%04x", int(c))
}

// DecodeError is returned by DecodeFrame
type DecodeError struct {
	Code ErrorCode
	Err  error // underlying cause, may be nil
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s (0x%04x): %v", e.Code, int(e.Code), e.Err)
	}
	return fmt.Sprintf("decode: %s (0x%04x)", e.Code, int(e.Code))
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Recoverable reports whether the engine may keep decoding the same window
func (e *DecodeError) Recoverable() bool { return e.Code.Recoverable() }

func decodeErr(code ErrorCode, err error) error {
	return &DecodeError{Code: code, Err: err}
}

// CodeOf extracts the ErrorCode from err, ErrNone if err is not a DecodeError
func CodeOf(err error) ErrorCode {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrNone
}

// Flow is the outcome of a synthesis step
type Flow int

const (
	FlowContinue Flow = iota // block produced normally
	FlowIgnore               // nothing new, play what is there
	FlowStop                 // stop decoding
	FlowBreak                // stop decoding, error
)

func (f Flow) String() string {
	switch f {
	case FlowContinue:
		return "continue"
	case FlowIgnore:
		return "ignore"
	case FlowStop:
		return "stop"
	case FlowBreak:
		return "break"
	}
	return fmt.Sprintf("flow_%d", int(f))
}

// Terminal reports whether the flow ends the current run
func (f Flow) Terminal() bool {
	return f == FlowStop || f == FlowBreak
}

// Block is one synthesized group of sample pairs
type Block struct {
	SampleRate int
	Channels   int
	Length     int
	Left       [SubframeSamples]int16
	Right      [SubframeSamples]int16
}

// FrameDecoder turns a window of compressed bytes into frames and sample blocks.
//
// Buffer points the decoder at a new window, resetting the frame cursors to 0.
// DecodeFrame decodes the frame at the cursor and advances it. On error it returns a
// *DecodeError. ErrBufLen means the window does not hold a whole frame, and NextFrame
// then marks the first byte that must be kept for the next window.
// ThisFrame is the window offset of the frame (or fault) last looked at.
// Synthesize fills out with subframe i of the last decoded frame, 0 <= i < Subframes().
type FrameDecoder interface {
	Buffer(window []byte)
	DecodeFrame() error
	ThisFrame() int
	NextFrame() int
	Subframes() int
	Synthesize(subframe int, out *Block) Flow
	Close() error
}

// Factory creates a fresh decoder for one run
type Factory func() FrameDecoder
