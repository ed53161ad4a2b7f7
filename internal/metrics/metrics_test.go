package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwave.click/internal/buffer"
	"airwave.click/internal/engine"
	"airwave.click/internal/player"
	"airwave.click/internal/status"
)

func TestCollectorCountsEventsByCode(t *testing.T) {
	c := NewCollector("test")
	hook := c.Hook()

	hook(status.Event{Code: status.DecodeError})
	hook(status.Event{Code: status.DecodeError})
	hook(status.Event{Code: status.Reconnecting, Attempt: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues(status.DecodeError.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues(status.Reconnecting.String())))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.events.WithLabelValues(status.OpenFailed.String())))

	// every code is pre-registered so dashboards see zeros
	assert.Equal(t, len(status.Codes()), testutil.CollectAndCount(c.events))
}

func TestCollectorObserveAddsDeltas(t *testing.T) {
	c := NewCollector("test")

	c.Observe(player.Stats{
		Engine:  engine.Stats{Running: true, Frames: 10, Samples: 11520, SampleRate: 44100, Channels: 2},
		Ring:    buffer.Stats{Capacity: 1000, Available: 250},
		HasRing: true,
	})
	c.Observe(player.Stats{
		Engine:    engine.Stats{Running: true, Frames: 15, Samples: 17280, Refills: 3, SampleRate: 44100, Channels: 2},
		Ring:      buffer.Stats{Capacity: 1000, Available: 500, Underruns: 1},
		HasRing:   true,
		SourcePos: 4096,
	})

	assert.Equal(t, 15.0, testutil.ToFloat64(c.frames))
	assert.Equal(t, 17280.0, testutil.ToFloat64(c.samples))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.refills))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.underruns))
	assert.Equal(t, 0.5, testutil.ToFloat64(c.ringFill))
	assert.Equal(t, 44100.0, testutil.ToFloat64(c.sampleRate))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.channels))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.running))
	assert.Equal(t, 4096.0, testutil.ToFloat64(c.sourceOffset))
}

func TestCollectorObserveNewRun(t *testing.T) {
	c := NewCollector("test")

	c.Observe(player.Stats{Engine: engine.Stats{Frames: 100, Samples: 1000}})
	c.Observe(player.Stats{Engine: engine.Stats{Frames: 2, Samples: 20}})
	c.Observe(player.Stats{Engine: engine.Stats{Frames: 5, Samples: 50}})

	assert.Equal(t, 103.0, testutil.ToFloat64(c.frames))
	assert.Equal(t, 1030.0, testutil.ToFloat64(c.samples))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.running))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ringFill))
}

func TestCollectorServe(t *testing.T) {
	c := NewCollector("airwave_test")
	c.Hook()(status.Event{Code: status.NoData})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := c.Serve(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `airwave_test_status_events_total{code="`+status.NoData.String()+`"} 1`), text)
	assert.Contains(t, text, "airwave_test_ring_fill_ratio")
}

func TestCollectorServeBadAddress(t *testing.T) {
	c := NewCollector("")
	_, err := c.Serve(context.Background(), "not-an-address")
	assert.Error(t, err)
}
