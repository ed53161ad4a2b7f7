package source

import (
	"errors"
	"io"
)

// ByteSource is a pull-based byte stream consumed by the engine and the ring buffer.
//
// Read may wait up to a bounded timeout for len(p) bytes and then returns whatever is
// available. A blocking Read that returns 0 means the stream is finished (end of input
// or reconnects exhausted). ReadNonBlock never waits, and 0 from it only means
// "nothing right now" unless it also returns an error.
type ByteSource interface {
	Read(p []byte) (int, error)
	ReadNonBlock(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Close() error
	IsOpen() bool
	// Size is the total stream length, 0 when unknown.
	Size() int64
	// Pos is the number of bytes handed to the caller so far.
	Pos() int64
	// Loop runs non-blocking housekeeping. It reports whether the source is still usable.
	Loop() bool
}

// Source errors
var (
	ErrSeekUnsupported = errors.New("seek not supported on this source")
	ErrNotOpen         = errors.New("source is not open")
	ErrReconnectFailed = errors.New("unable to reconnect")
	ErrNoData          = errors.New("no data available")
	ErrOpenFailed      = errors.New("open failed")
)

// IsEnd reports whether err marks a source that will never produce more bytes
func IsEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrReconnectFailed) ||
		errors.Is(err, ErrNoData) || errors.Is(err, ErrNotOpen)
}
