package sink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// Command sink tuning
const (
	DefaultBatchSamples = 1024
	DefaultQueueDepth   = 8
)

var ErrCommandFailed = errors.New("audio command failed")

// process is a running player command fed through stdin
type process struct {
	stdin io.WriteCloser
	wait  func() error
}

// startFunc launches name with args and returns its stdin
type startFunc func(name string, args ...string) (*process, error)

func execStart(name string, args ...string) (*process, error) {
	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &process{stdin: stdin, wait: cmd.Wait}, nil
}

// RawPlayArgs returns the arguments that make command play raw s16le stereo at rate.
// It returns false for commands that cannot read raw PCM from stdin.
func RawPlayArgs(command string, rate int) ([]string, bool) {
	r := strconv.Itoa(rate)
	switch command {
	case "paplay":
		return []string{"--raw", "--format=s16le", "--rate=" + r, "--channels=2"}, true
	case "pacat":
		return []string{"--playback", "--format=s16le", "--rate=" + r, "--channels=2"}, true
	case "aplay":
		return []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", r, "-c", "2"}, true
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-f", "s16le", "-ar", r, "-ac", "2", "-i", "-"}, true
	}
	return nil, false
}

// CommandSink pipes PCM into a system player such as paplay or aplay. Samples are
// batched and handed to a writer goroutine over a bounded queue; when the queue is
// full the sink refuses samples until a later Loop manages to flush.
type CommandSink struct {
	command      string
	start        startFunc
	batchSamples int
	queueDepth   int

	mu       sync.Mutex
	proc     *process
	queue    chan []byte
	done     chan struct{}
	batch    []byte
	rate     int
	channels int
	started  bool
	volume   atomic.Uint32
	failed   atomic.Bool
	written  atomic.Int64
}

// CommandOption configures a CommandSink
type CommandOption func(*CommandSink)

// WithBatchSamples sets how many samples go into one pipe write
func WithBatchSamples(n int) CommandOption {
	return func(c *CommandSink) {
		if n > 0 {
			c.batchSamples = n
		}
	}
}

// WithQueueDepth sets how many batches may wait for the writer
func WithQueueDepth(n int) CommandOption {
	return func(c *CommandSink) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

// NewCommandSink creates a sink for a player command like "paplay"
func NewCommandSink(command string, opts ...CommandOption) (*CommandSink, error) {
	if _, ok := RawPlayArgs(command, 44100); !ok {
		return nil, fmt.Errorf("%w: %q cannot play raw PCM from stdin", ErrInvalidSinkType, command)
	}
	c := &CommandSink{
		command:      command,
		start:        execStart,
		batchSamples: DefaultBatchSamples,
		queueDepth:   DefaultQueueDepth,
		channels:     2,
	}
	c.volume.Store(math.Float32bits(1.0))
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Command is the player binary name
func (c *CommandSink) Command() string { return c.command }

func (c *CommandSink) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	c.failed.Store(false)
	slog.Debug("command sink started", "command", c.command)
	return nil
}

// SetRate restarts the player command at hz
func (c *CommandSink) SetRate(hz int) error {
	if err := validateRate(hz); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	if hz == c.rate && c.proc != nil {
		return nil
	}
	c.shutdown()

	args, _ := RawPlayArgs(c.command, hz)
	proc, err := c.start(c.command, args...)
	if err != nil {
		slog.Error("failed to start audio command", "command", c.command, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrCommandFailed, c.command, err)
	}
	c.proc = proc
	c.rate = hz
	c.queue = make(chan []byte, c.queueDepth)
	c.done = make(chan struct{})
	c.batch = make([]byte, 0, c.batchSamples*4)
	go c.writer(proc.stdin, c.queue, c.done)

	slog.Debug("audio command started", "command", c.command, "args", args)
	return nil
}

func (c *CommandSink) SetChannels(n int) error {
	if err := validateChannels(n); err != nil {
		return err
	}
	c.mu.Lock()
	c.channels = n
	c.mu.Unlock()
	return nil
}

func (c *CommandSink) writer(w io.Writer, queue <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for batch := range queue {
		if c.failed.Load() {
			continue
		}
		n, err := w.Write(batch)
		c.written.Add(int64(n))
		if err != nil {
			slog.Error("audio command write failed", "command", c.command, "error", err)
			c.failed.Store(true)
		}
	}
}

// flush hands the current batch to the writer without blocking
func (c *CommandSink) flush() bool {
	if len(c.batch) == 0 {
		return true
	}
	select {
	case c.queue <- c.batch:
		c.batch = make([]byte, 0, c.batchSamples*4)
		return true
	default:
		return false
	}
}

func (c *CommandSink) ConsumeSample(s Sample) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil {
		return false
	}
	if len(c.batch) >= c.batchSamples*4 && !c.flush() {
		return false
	}
	c.batch = appendS16LE(c.batch, s, c.GetVolume())
	if len(c.batch) >= c.batchSamples*4 {
		c.flush()
	}
	return true
}

// Loop pushes a partial batch and reports whether the command is healthy
func (c *CommandSink) Loop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc != nil {
		c.flush()
	}
	return c.started && !c.failed.Load()
}

// shutdown drains the queue, closes stdin and waits for the command
func (c *CommandSink) shutdown() error {
	if c.proc == nil {
		return nil
	}
	if len(c.batch) > 0 {
		c.queue <- c.batch
		c.batch = nil
	}
	close(c.queue)
	<-c.done

	var errs []error
	if err := c.proc.stdin.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.proc.wait(); err != nil && !c.failed.Load() {
		errs = append(errs, fmt.Errorf("%w: %s: %v", ErrCommandFailed, c.command, err))
	}
	c.proc = nil
	c.rate = 0
	return errors.Join(errs...)
}

// Stop flushes what is queued and waits for the command to exit
func (c *CommandSink) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	err := c.shutdown()
	slog.Debug("command sink stopped", "command", c.command, "bytes_written", c.written.Load())
	return err
}

// BytesWritten is the number of PCM bytes delivered to the command
func (c *CommandSink) BytesWritten() int64 { return c.written.Load() }

func (c *CommandSink) GetVolume() float32 {
	return math.Float32frombits(c.volume.Load())
}

// SetVolume sets the volume level (0.0 to 1.0)
func (c *CommandSink) SetVolume(v float32) error {
	if err := validateVolume(v); err != nil {
		return err
	}
	c.volume.Store(math.Float32bits(v))
	return nil
}

var (
	_ Sink   = (*CommandSink)(nil)
	_ Volume = (*CommandSink)(nil)
)
