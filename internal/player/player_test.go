package player

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwave.click/internal/decoder"
	"airwave.click/internal/sink"
	"airwave.click/internal/source"
	"airwave.click/internal/status"
)

const samplesPerCDFrame = 1152

type eventLog struct {
	mu     sync.Mutex
	events []status.Event
}

func (l *eventLog) hook(ev status.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(code status.Code) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Code == code {
			n++
		}
	}
	return n
}

func memFile(t *testing.T, name string, data []byte) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, name, data, 0o644))
	return fs
}

func TestIsURL(t *testing.T) {
	tests := []struct {
		location string
		want     bool
	}{
		{"http://radio.example/stream", true},
		{"https://radio.example:8443/live.mp3?sid=1", true},
		{"HTTP://radio.example/", true},
		{"ftp://radio.example/file.mp3", false},
		{"/home/user/music/track.mp3", false},
		{"track.mp3", false},
		{"http://", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, IsURL(tt.location))
		})
	}
}

func TestPlayerPlaysFileToEnd(t *testing.T) {
	const frames = 20
	fs := memFile(t, "/music/silence.mp3", decoder.SilentStream(decoder.CDHeader, frames))

	p, err := Open(context.Background(), Config{Location: "/music/silence.mp3", Fs: fs})
	require.NoError(t, err)
	assert.Equal(t, "MP3", p.Format().Name)

	out := sink.NewDiscardSink(false)
	require.NoError(t, p.Run(context.Background(), out))

	assert.Equal(t, int64(frames*samplesPerCDFrame), out.Count())
	rate, channels := out.Format()
	assert.Equal(t, 44100, rate)
	assert.Equal(t, 2, channels)

	st := p.Stats()
	assert.False(t, st.Engine.Running)
	assert.Equal(t, uint64(frames), st.Engine.Frames)
	assert.False(t, st.HasRing)
	assert.Equal(t, st.SourceSize, st.SourcePos)
	assert.NoError(t, p.Close())
}

func TestPlayerDetectsByContentWithoutExtension(t *testing.T) {
	fs := memFile(t, "/stream.bin", decoder.SilentStream(decoder.SpeechHeader, 4))

	p, err := Open(context.Background(), Config{Location: "/stream.bin", Fs: fs})
	require.NoError(t, err)
	assert.Equal(t, "MP3", p.Format().Name)

	out := sink.NewDiscardSink(false)
	require.NoError(t, p.Run(context.Background(), out))
	rate, channels := out.Format()
	assert.Equal(t, 22050, rate)
	assert.Equal(t, 1, channels)
	assert.Equal(t, int64(4*576), out.Count())
}

func TestPlayerRingPrimesBeforePlayback(t *testing.T) {
	const frames = 40
	data := decoder.SilentStream(decoder.CDHeader, frames)
	fs := memFile(t, "/a.mp3", data)

	p, err := Open(context.Background(), Config{Location: "/a.mp3", Fs: fs, RingSize: 4096})
	require.NoError(t, err)

	st := p.Stats()
	require.True(t, st.HasRing)
	require.NotNil(t, p.ring)
	assert.True(t, p.ring.Primed(), "ring smaller than the file should be full before playback")
	assert.Equal(t, 4096, p.ring.Available(), "sniffing must not consume ring bytes")

	out := sink.NewDiscardSink(false)
	require.NoError(t, p.Run(context.Background(), out))
	assert.Equal(t, int64(frames*samplesPerCDFrame), out.Count())

	st = p.Stats()
	assert.Equal(t, int64(len(data)), st.Ring.Drained)
	assert.Equal(t, int64(len(data)), st.SourcePos)
}

func TestPlayerRingLargerThanStream(t *testing.T) {
	fs := memFile(t, "/short.mp3", decoder.SilentStream(decoder.CDHeader, 3))

	p, err := Open(context.Background(), Config{Location: "/short.mp3", Fs: fs, RingSize: 64 * 1024})
	require.NoError(t, err)
	assert.False(t, p.ring.Primed())
	assert.True(t, p.ring.Exhausted())

	out := sink.NewDiscardSink(false)
	require.NoError(t, p.Run(context.Background(), out))
	assert.Equal(t, int64(3*samplesPerCDFrame), out.Count())
}

func TestPlayerHTTPStream(t *testing.T) {
	const frames = 25
	data := decoder.SilentStream(decoder.CDHeader, frames)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer srv.Close()

	log := &eventLog{}
	p, err := Open(context.Background(), Config{
		Location:    srv.URL + "/live",
		RingSize:    2048,
		Emitter:     status.NewEmitter(log.hook),
		HTTPOptions: []source.HTTPOption{source.WithReconnect(1, time.Millisecond)},
	})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "MP3", p.Format().Name)

	out := sink.NewDiscardSink(false)
	require.NoError(t, p.Run(context.Background(), out))
	assert.Equal(t, int64(frames*samplesPerCDFrame), out.Count())
	assert.Zero(t, log.count(status.DecodeError))
	assert.GreaterOrEqual(t, log.count(status.Info), 2)
}

func TestPlayerForcedFormat(t *testing.T) {
	fs := memFile(t, "/noise.raw", decoder.SilentStream(decoder.CDHeader, 2))

	p, err := Open(context.Background(), Config{Location: "/noise.raw", Fs: fs, Format: "mp3"})
	require.NoError(t, err)
	assert.Equal(t, "MP3", p.Format().Name)
	assert.NoError(t, p.Close())

	_, err = Open(context.Background(), Config{Location: "/noise.raw", Fs: fs, Format: "flac"})
	assert.ErrorIs(t, err, decoder.ErrUnsupportedFormat)
}

func TestPlayerOpenErrors(t *testing.T) {
	fs := memFile(t, "/notes.txt", []byte("these are not the frames you are looking for"))

	t.Run("no location", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Fs: fs})
		assert.ErrorIs(t, err, ErrNoLocation)
	})

	t.Run("missing file", func(t *testing.T) {
		log := &eventLog{}
		_, err := Open(context.Background(), Config{
			Location: "/missing.mp3",
			Fs:       fs,
			Emitter:  status.NewEmitter(log.hook),
		})
		assert.Error(t, err)
		assert.Equal(t, 1, log.count(status.OpenFailed))
	})

	t.Run("unsupported content", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Location: "/notes.txt", Fs: fs})
		assert.ErrorIs(t, err, decoder.ErrUnsupportedFormat)
	})
}

func TestPlayerStopsOnCancel(t *testing.T) {
	// about 4.6s of audio behind a real-time paced sink
	const frames = 180
	fs := memFile(t, "/long.mp3", decoder.SilentStream(decoder.CDHeader, frames))

	p, err := Open(context.Background(), Config{Location: "/long.mp3", Fs: fs})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	out := sink.NewDiscardSink(true)
	start := time.Now()
	err = p.Run(ctx, out)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Less(t, out.Count(), int64(frames*samplesPerCDFrame))
	assert.False(t, p.Stats().Engine.Running)
}

func TestPlayerDurationLimit(t *testing.T) {
	const frames = 180
	fs := memFile(t, "/long.mp3", decoder.SilentStream(decoder.CDHeader, frames))

	p, err := Open(context.Background(), Config{
		Location: "/long.mp3",
		Fs:       fs,
		Duration: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	out := sink.NewDiscardSink(true)
	require.NoError(t, p.Run(context.Background(), out))
	assert.Less(t, out.Count(), int64(frames*samplesPerCDFrame))
}

func TestPlayerCloseWithoutRun(t *testing.T) {
	fs := memFile(t, "/a.mp3", decoder.SilentStream(decoder.CDHeader, 2))

	p, err := Open(context.Background(), Config{Location: "/a.mp3", Fs: fs})
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.False(t, p.src.IsOpen())
	assert.NoError(t, p.Close())

	err = p.Run(context.Background(), sink.NewDiscardSink(false))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPlayerOnStep(t *testing.T) {
	fs := memFile(t, "/a.mp3", decoder.SilentStream(decoder.CDHeader, 5))

	var steps []Stats
	p, err := Open(context.Background(), Config{
		Location: "/a.mp3",
		Fs:       fs,
		RingSize: 1024,
		OnStep:   func(s Stats) { steps = append(steps, s) },
	})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), sink.NewDiscardSink(false)))

	require.NotEmpty(t, steps)
	last := steps[len(steps)-1]
	assert.Equal(t, "/a.mp3", last.Location)
	assert.Equal(t, "MP3", last.Format)
	assert.Equal(t, uint64(5*samplesPerCDFrame), last.Engine.Samples)
	assert.GreaterOrEqual(t, last.RingFill(), 0.0)
	assert.LessOrEqual(t, last.RingFill(), 1.0)
}

// endlessStation streams silent frames until the client goes away
func endlessStation(t *testing.T) *httptest.Server {
	t.Helper()
	frame := decoder.SilentFrame(decoder.CDHeader)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		for r.Context().Err() == nil {
			if _, err := w.Write(frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
	})
	return srv
}

func TestPlayerUnpacedSinkHonoursDuration(t *testing.T) {
	srv := endlessStation(t)

	p, err := Open(context.Background(), Config{
		Location: srv.URL + "/live",
		Duration: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	out := sink.NewDiscardSink(false)
	start := time.Now()
	require.NoError(t, p.Run(context.Background(), out))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Positive(t, out.Count())
	assert.False(t, p.Stats().Engine.Running)
}

func TestPlayerUnpacedSinkStopsOnCancel(t *testing.T) {
	srv := endlessStation(t)

	p, err := Open(context.Background(), Config{Location: srv.URL + "/live"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = p.Run(ctx, sink.NewDiscardSink(false))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type refusingSink struct {
	*sink.DiscardSink
}

func (refusingSink) Begin() error { return errors.New("device busy") }

func TestPlayerCloseAfterFailedRunReleasesSource(t *testing.T) {
	fs := memFile(t, "/a.mp3", decoder.SilentStream(decoder.CDHeader, 2))

	p, err := Open(context.Background(), Config{Location: "/a.mp3", Fs: fs})
	require.NoError(t, err)

	err = p.Run(context.Background(), refusingSink{sink.NewDiscardSink(false)})
	require.Error(t, err)
	assert.True(t, p.src.IsOpen(), "a run that never started leaves the source with the player")

	require.NoError(t, p.Close())
	assert.False(t, p.src.IsOpen())
}
