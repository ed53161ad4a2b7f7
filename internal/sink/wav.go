package sink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

const (
	DefaultWavBatch = 4096
	wavBitDepth     = 16
	wavPCM          = 1
)

// WavSink records samples into a 16-bit PCM WAV file. Samples collect in a batch
// that Loop writes out; a full batch refuses further samples until then. The file
// keeps the first rate and channel count it was opened with.
type WavSink struct {
	fs    afero.Fs
	path  string
	batch int

	mu       sync.Mutex
	file     afero.File
	enc      *wav.Encoder
	buf      *audio.IntBuffer
	pending  []Sample
	rate     int
	channels int
	frames   int64
	started  bool
}

// NewWavSink creates a sink writing to path on fs. batch <= 0 uses DefaultWavBatch.
func NewWavSink(fs afero.Fs, path string, batch int) *WavSink {
	if batch <= 0 {
		batch = DefaultWavBatch
	}
	return &WavSink{
		fs:       fs,
		path:     path,
		batch:    batch,
		channels: 2,
	}
}

// Path of the recording
func (w *WavSink) Path() string { return w.path }

// Frames is the number of sample frames written so far
func (w *WavSink) Frames() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

func (w *WavSink) Begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	f, err := w.fs.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create recording %s: %w", w.path, err)
	}
	w.file = f
	w.pending = make([]Sample, 0, w.batch)
	w.started = true
	slog.Debug("wav sink started", "path", w.path)
	return nil
}

func (w *WavSink) SetRate(hz int) error {
	if err := validateRate(hz); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return ErrNotStarted
	}
	if w.enc != nil && hz != w.rate {
		slog.Warn("sample rate changed mid-recording, keeping the original", "path", w.path, "rate", w.rate, "new_rate", hz)
		return nil
	}
	w.rate = hz
	return nil
}

func (w *WavSink) SetChannels(n int) error {
	if err := validateChannels(n); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc != nil && n != w.channels {
		slog.Warn("channel count changed mid-recording, keeping the original", "path", w.path, "channels", w.channels, "new_channels", n)
		return nil
	}
	w.channels = n
	return nil
}

func (w *WavSink) ConsumeSample(s Sample) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || len(w.pending) >= w.batch {
		return false
	}
	w.pending = append(w.pending, s)
	return true
}

// Loop writes the pending batch
func (w *WavSink) Loop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return false
	}
	if err := w.flush(); err != nil {
		slog.Error("failed to write recording", "path", w.path, "error", err)
		return false
	}
	return true
}

func (w *WavSink) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	if w.enc == nil {
		if w.rate == 0 {
			return fmt.Errorf("%w: no sample rate set", ErrInvalidRate)
		}
		w.enc = wav.NewEncoder(w.file, w.rate, wavBitDepth, w.channels, wavPCM)
		w.buf = &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: w.channels, SampleRate: w.rate},
			SourceBitDepth: wavBitDepth,
			Data:           make([]int, 0, w.batch*w.channels),
		}
	}

	data := w.buf.Data[:0]
	for _, s := range w.pending {
		data = append(data, int(s[0]))
		if w.channels == 2 {
			data = append(data, int(s[1]))
		}
	}
	w.buf.Data = data
	if err := w.enc.Write(w.buf); err != nil {
		return err
	}
	w.frames += int64(len(w.pending))
	w.pending = w.pending[:0]
	return nil
}

// Stop writes what is pending, finalizes the header and closes the file
func (w *WavSink) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return nil
	}
	w.started = false

	err := w.flush()
	if w.enc != nil {
		if cerr := w.enc.Close(); cerr != nil && err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	w.file = nil
	slog.Info("recording closed", "path", w.path, "frames", w.frames, "sample_rate", w.rate)
	return err
}

var _ Sink = (*WavSink)(nil)
