package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultReceiveWindow = 16 * 1024
	pumpChunkSize        = 4 * 1024
)

// conn is one live HTTP response. A pump goroutine copies the body into a bounded
// receive buffer so reads can be non-blocking or wait with a deadline.
type conn struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	window int
	skip   int64 // bytes to discard before buffering

	mu     sync.Mutex
	buf    bytes.Buffer
	err    error
	closed bool

	ready     chan struct{}
	space     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(body io.ReadCloser, cancel context.CancelFunc, window int, skip int64) *conn {
	if window <= 0 {
		window = defaultReceiveWindow
	}
	c := &conn{
		body:   body,
		cancel: cancel,
		window: window,
		skip:   skip,
		ready:  make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *conn) pump() {
	if c.skip > 0 {
		slog.Debug("discarding already delivered bytes", "skip", c.skip)
		if _, err := io.CopyN(io.Discard, c.body, c.skip); err != nil {
			c.finish(err)
			return
		}
	}

	chunk := make([]byte, pumpChunkSize)
	for {
		if !c.waitSpace() {
			return
		}
		n, err := c.body.Read(chunk)
		c.mu.Lock()
		if n > 0 {
			c.buf.Write(chunk[:n])
		}
		c.mu.Unlock()
		if n > 0 {
			notify(c.ready)
		}
		if err != nil {
			c.finish(err)
			return
		}
	}
}

func (c *conn) finish(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	closed := c.closed
	c.mu.Unlock()
	if !closed && !errors.Is(err, io.EOF) {
		slog.Debug("connection pump stopped", "error", err)
	}
	notify(c.ready)
}

func (c *conn) waitSpace() bool {
	for {
		c.mu.Lock()
		closed, full := c.closed, c.buf.Len() >= c.window
		c.mu.Unlock()
		if closed {
			return false
		}
		if !full {
			return true
		}
		select {
		case <-c.space:
		case <-c.done:
			return false
		}
	}
}

// available is the number of buffered bytes
func (c *conn) available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len()
}

// connected reports a live connection. Like a socket, a finished connection still
// counts as connected while received bytes remain unread.
func (c *conn) connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	return c.err == nil || c.buf.Len() > 0
}

// read copies buffered bytes without waiting
func (c *conn) read(p []byte) int {
	c.mu.Lock()
	n, _ := c.buf.Read(p)
	c.mu.Unlock()
	if n > 0 {
		notify(c.space)
	}
	return n
}

// readWait waits up to timeout for len(p) bytes, then copies what is there
func (c *conn) readWait(p []byte, timeout time.Duration) int {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

wait:
	for {
		c.mu.Lock()
		enough := c.buf.Len() >= len(p)
		finished := c.err != nil || c.closed
		c.mu.Unlock()
		if enough || finished {
			break
		}
		select {
		case <-c.ready:
		case <-c.done:
			break wait
		case <-timer.C:
			break wait
		}
	}
	return c.read(p)
}

func (c *conn) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		err = c.body.Close()
	})
	return err
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
