// Package metrics exposes playback counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"airwave.click/internal/player"
	"airwave.click/internal/status"
)

const DefaultNamespace = "airwave"

// Collector turns status events and player snapshots into Prometheus series
type Collector struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	samples      prometheus.Counter
	frames       prometheus.Counter
	refills      prometheus.Counter
	underruns    prometheus.Counter
	ringFill     prometheus.Gauge
	sampleRate   prometheus.Gauge
	channels     prometheus.Gauge
	running      prometheus.Gauge
	sourceOffset prometheus.Gauge

	mu   sync.Mutex
	last player.Stats
}

// NewCollector registers all series on a private registry
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.events = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_events_total",
		Help:      "Status events by code",
	}, []string{"code"})

	c.samples = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_delivered_total",
		Help:      "Samples accepted by the sink",
	})
	c.frames = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_decoded_total",
		Help:      "Frames decoded",
	})
	c.refills = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "buffer_refills_total",
		Help:      "Staging buffer refills from the source",
	})
	c.underruns = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ring_underruns_total",
		Help:      "Reads that found the prefetch ring short",
	})

	c.ringFill = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ring_fill_ratio",
		Help:      "Prefetch ring fill level between 0 and 1",
	})
	c.sampleRate = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sample_rate_hz",
		Help:      "Sample rate announced to the sink",
	})
	c.channels = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channels",
		Help:      "Channel count announced to the sink",
	})
	c.running = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "running",
		Help:      "1 while the engine is playing",
	})
	c.sourceOffset = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_offset_bytes",
		Help:      "Bytes read from the upstream source",
	})

	for _, code := range status.Codes() {
		c.events.WithLabelValues(code.String())
	}
	return c
}

// Registry is the registry the collector writes to
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Hook counts status events
func (c *Collector) Hook() status.Hook {
	return func(ev status.Event) {
		c.events.WithLabelValues(ev.Code.String()).Inc()
	}
}

// Observe records a player snapshot. Counters advance by the difference to the previous one.
func (c *Collector) Observe(st player.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addDelta(c.samples, st.Engine.Samples, c.last.Engine.Samples)
	addDelta(c.frames, st.Engine.Frames, c.last.Engine.Frames)
	addDelta(c.refills, st.Engine.Refills, c.last.Engine.Refills)
	addDelta(c.underruns, st.Ring.Underruns, c.last.Ring.Underruns)

	c.ringFill.Set(st.RingFill())
	c.sampleRate.Set(float64(st.Engine.SampleRate))
	c.channels.Set(float64(st.Engine.Channels))
	c.sourceOffset.Set(float64(st.SourcePos))
	if st.Engine.Running {
		c.running.Set(1)
	} else {
		c.running.Set(0)
	}
	c.last = st
}

// addDelta ignores a counter going backwards, which happens when a new engine run starts
func addDelta[T int64 | uint64](c prometheus.Counter, now, prev T) {
	if now > prev {
		c.Add(float64(now - prev))
	}
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is done. It returns the bound
// address once the listener is up.
func (c *Collector) Serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("metrics server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown failed", "error", err)
		}
	}()
	return ln.Addr(), nil
}
