package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"airwave.click/internal/status"
)

// Defaults for the network source
const (
	DefaultReconnectTries = 5
	DefaultReconnectDelay = time.Second
	DefaultReadTimeout    = 500 * time.Millisecond
	DefaultUserAgent      = "airwave"
)

// HTTPDoer is the subset of *http.Client used to issue requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPOption configures an HTTPStream
type HTTPOption func(*HTTPStream)

// WithClient sets the HTTP client used for every request
func WithClient(client HTTPDoer) HTTPOption {
	return func(s *HTTPStream) {
		s.client = client
	}
}

// WithReconnect sets how many reconnect tries a disconnect gets and the delay before each
func WithReconnect(tries int, delay time.Duration) HTTPOption {
	return func(s *HTTPStream) {
		s.reconnectTries = tries
		s.reconnectDelay = delay
	}
}

// WithReadTimeout bounds how long a blocking Read waits for data
func WithReadTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPStream) {
		s.readTimeout = timeout
	}
}

// WithUserAgent sets the User-Agent request header
func WithUserAgent(agent string) HTTPOption {
	return func(s *HTTPStream) {
		s.userAgent = agent
	}
}

// WithReceiveWindow caps how many bytes are buffered ahead of the reader
func WithReceiveWindow(size int) HTTPOption {
	return func(s *HTTPStream) {
		s.window = size
	}
}

// WithEmitter routes status events through an existing emitter
func WithEmitter(e *status.Emitter) HTTPOption {
	return func(s *HTTPStream) {
		s.status = e
	}
}

// WithHook adds a status hook
func WithHook(h status.Hook) HTTPOption {
	return func(s *HTTPStream) {
		if s.status == nil {
			s.status = status.NewEmitter()
		}
		s.status.Add(h)
	}
}

// HTTPStream is a ByteSource over an HTTP GET with bounded reconnects.
// Seek is not supported.
type HTTPStream struct {
	client         HTTPDoer
	reconnectTries int
	reconnectDelay time.Duration
	readTimeout    time.Duration
	userAgent      string
	window         int
	status         *status.Emitter
	sleep          func(time.Duration)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	conn        *conn
	url         string // retained for reconnects
	size        int64
	pos         int64
	contentType string
	closed      bool
}

// NewHTTPStream creates an unopened network source
func NewHTTPStream(opts ...HTTPOption) *HTTPStream {
	s := &HTTPStream{
		client:         http.DefaultClient,
		reconnectTries: DefaultReconnectTries,
		reconnectDelay: DefaultReconnectDelay,
		readTimeout:    DefaultReadTimeout,
		userAgent:      DefaultUserAgent,
		window:         defaultReceiveWindow,
		sleep:          time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.status == nil {
		s.status = status.NewEmitter()
	}
	slog.Debug("created http stream source",
		"reconnect_tries", s.reconnectTries,
		"reconnect_delay", s.reconnectDelay,
		"read_timeout", s.readTimeout)
	return s
}

// OpenHTTP creates and opens a network source in one call
func OpenHTTP(ctx context.Context, url string, opts ...HTTPOption) (*HTTPStream, error) {
	s := NewHTTPStream(opts...)
	if err := s.Open(ctx, url); err != nil {
		return nil, err
	}
	return s, nil
}

// Open connects to url. On failure an OpenFailed event is emitted and the source stays closed.
func (s *HTTPStream) Open(ctx context.Context, url string) error {
	slog.Debug("opening http stream", "url", url)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.close()
		s.conn = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	resp, err := s.request(url, 0)
	if err != nil {
		s.status.Emit(status.Event{Code: status.OpenFailed, Message: err.Error()})
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, url, err)
	}

	s.url = url
	s.closed = false
	s.pos = 0
	s.size = 0
	if resp.ContentLength > 0 {
		s.size = resp.ContentLength
	}
	s.contentType = resp.Header.Get("Content-Type")
	s.conn = s.startConn(resp, 0)

	slog.Info("http stream opened",
		"url", url,
		"size", s.size,
		"content_type", s.contentType)
	return nil
}

// request issues a GET, asking for a byte range when offset > 0
func (s *HTTPStream) request(url string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp, nil
}

func (s *HTTPStream) startConn(resp *http.Response, offset int64) *conn {
	var skip int64
	if offset > 0 && s.size > 0 && resp.StatusCode == http.StatusOK {
		// a fixed-length resource ignored the range; drop what was already delivered.
		// A live stream answers with fresh audio and is taken from its start.
		skip = offset
	}
	return newConn(resp.Body, nil, s.window, skip)
}

// Read waits up to the read timeout for len(p) bytes and reconnects when the connection dropped.
// It returns 0 with an error once the stream is finished.
func (s *HTTPStream) Read(p []byte) (int, error) {
	return s.read(p, true)
}

// ReadNonBlock copies buffered bytes without waiting
func (s *HTTPStream) ReadNonBlock(p []byte) (int, error) {
	return s.read(p, false)
}

func (s *HTTPStream) read(p []byte, blocking bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.url == "" || s.closed {
		return 0, ErrNotOpen
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.size > 0 {
		if s.pos >= s.size {
			return 0, io.EOF
		}
		if remaining := s.size - s.pos; int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}

	// every pass through here is a reconnect decision; cap them per call
	for restarts := 0; ; restarts++ {
		if restarts > s.reconnectTries {
			return 0, ErrNoData
		}
		if !s.conn.connected() {
			if !s.reconnect() {
				return 0, ErrReconnectFailed
			}
		}

		var n int
		if blocking {
			n = s.conn.readWait(p, s.readTimeout)
		} else {
			n = s.conn.read(p)
		}
		if n > 0 {
			s.pos += int64(n)
			return n, nil
		}
		if !blocking {
			return 0, nil
		}
		if !s.conn.connected() {
			continue
		}

		s.status.Emit(status.Event{
			Code:    status.NoData,
			Message: fmt.Sprintf("no data after %s", s.readTimeout),
		})
		s.dropConn()
	}
}

// reconnect runs one bounded reconnect sequence. Called with mu held.
func (s *HTTPStream) reconnect() bool {
	s.status.Emit(status.Event{Code: status.Disconnected, Message: "connection lost: " + s.url})
	s.dropConn()

	attempt := newReconnectAttempt(s.reconnectTries, s.reconnectDelay)
	for attempt.next() {
		if s.ctx.Err() != nil {
			break
		}
		s.sleep(attempt.delay)

		resp, err := s.request(s.url, s.pos)
		if err == nil {
			s.conn = s.startConn(resp, s.pos)
			s.status.Emit(status.Event{
				Code:    status.Reconnected,
				Attempt: attempt.attempt(),
				Message: "reconnected: " + s.url,
			})
			return true
		}

		slog.Debug("reconnect attempt failed", "attempt", attempt.attempt(), "error", err)
		s.status.Emit(status.Event{
			Code:    status.Reconnecting,
			Attempt: attempt.attempt(),
			Message: fmt.Sprintf("reconnect attempt %d failed: %v", attempt.attempt(), err),
		})
	}

	s.status.Emit(status.Event{Code: status.ReconnectFailed, Message: "unable to reconnect"})
	return false
}

func (s *HTTPStream) dropConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.close(); err != nil {
		slog.Debug("error closing dropped connection", "error", err)
	}
	s.conn = nil
}

// Seek always fails
func (s *HTTPStream) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrSeekUnsupported
}

// Close releases the connection and cancels pending reconnects
func (s *HTTPStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.conn != nil {
		err = s.conn.close()
		s.conn = nil
	}
	slog.Debug("http stream closed", "url", s.url, "pos", s.pos)
	return err
}

// IsOpen reports whether there is a live connection
func (s *HTTPStream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.connected()
}

// Size returns Content-Length of the first response, 0 for live streams
func (s *HTTPStream) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Pos returns the number of bytes read so far
func (s *HTTPStream) Pos() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// ContentType returns the Content-Type header of the first response
func (s *HTTPStream) ContentType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentType
}

// URL returns the retained origin
func (s *HTTPStream) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Buffered returns how many received bytes are waiting to be read
func (s *HTTPStream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0
	}
	return s.conn.available()
}

// Loop reports whether the stream can still produce data. A dropped connection
// is left for the next Read to reconnect.
func (s *HTTPStream) Loop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" || s.closed {
		return false
	}
	if s.size > 0 && s.pos >= s.size {
		return false
	}
	return true
}

var _ ByteSource = (*HTTPStream)(nil)
