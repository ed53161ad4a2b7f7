//go:build !cgo

package sink

import "errors"

var errCGORequired = errors.New(`airwave requires CGO support for device audio output.

To fix this issue:
1. Ensure CGO_ENABLED=1 (this is the default for native builds)
2. Install a C compiler:
   - Linux: sudo apt-get install build-essential
   - macOS: xcode-select --install
   - Windows: Install MinGW or Visual Studio Build Tools
3. Or pick another sink: --sink command, --sink wav, --sink discard`)

// DefaultFIFOSize matches the cgo build
const DefaultFIFOSize = 8192

// MalgoSink is unavailable without cgo
type MalgoSink struct{}

func NewMalgoSink(fifoSize int) *MalgoSink { return &MalgoSink{} }

func (m *MalgoSink) Begin() error                { return errCGORequired }
func (m *MalgoSink) SetRate(hz int) error        { return errCGORequired }
func (m *MalgoSink) SetChannels(n int) error     { return errCGORequired }
func (m *MalgoSink) ConsumeSample(s Sample) bool { return false }
func (m *MalgoSink) Stop() error                 { return nil }
func (m *MalgoSink) Loop() bool                  { return false }
func (m *MalgoSink) Buffered() int               { return 0 }
func (m *MalgoSink) GetVolume() float32          { return 0 }
func (m *MalgoSink) SetVolume(v float32) error   { return errCGORequired }

var (
	_ Sink   = (*MalgoSink)(nil)
	_ Volume = (*MalgoSink)(nil)
)
