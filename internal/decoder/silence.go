package decoder

// SilentFrame builds a complete frame for h whose side info and main data are all
// zero. It decodes to digital silence and is used to pad streams and in tests.
func SilentFrame(h Header) []byte {
	frame := make([]byte, h.FrameSize())
	copy(frame, h.Bytes())
	return frame
}

// SilentStream concatenates n silent frames
func SilentStream(h Header, n int) []byte {
	frame := SilentFrame(h)
	out := make([]byte, 0, len(frame)*n)
	for i := 0; i < n; i++ {
		out = append(out, frame...)
	}
	return out
}

// Common headers
var (
	// CDHeader is MPEG-1, 128 kbit/s, 44.1 kHz, joint stereo, no CRC
	CDHeader = Header{Version: MPEG1, BitrateIndex: 9, SampleRateIndex: 0, Mode: 1}
	// SpeechHeader is MPEG-2, 32 kbit/s, 22.05 kHz, single channel, no CRC
	SpeechHeader = Header{Version: MPEG2, BitrateIndex: 4, SampleRateIndex: 0, Mode: modeMono}
)
