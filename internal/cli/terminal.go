package cli

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/term"

	"airwave.click/internal/status"
)

// TerminalDetector reports whether a file descriptor is an interactive terminal
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector uses golang.org/x/term
type DefaultTerminalDetector struct{}

// IsTerminal implements TerminalDetector
func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

type fdWriter interface {
	Fd() uintptr
}

// isInteractive reports whether w is a terminal. Writers without a descriptor
// never are.
func (c *CLI) isInteractive(w io.Writer) bool {
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
	return c.terminalDetector.IsTerminal(int(f.Fd()))
}

// statusPrinter echoes status events as short human-readable lines
type statusPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	return &statusPrinter{w: w}
}

func (p *statusPrinter) Hook() status.Hook {
	return p.print
}

func (p *statusPrinter) print(ev status.Event) {
	line := fmt.Sprintf("[%s] %s", ev.Code, ev.Message)
	switch ev.Code {
	case status.Reconnecting, status.Reconnected:
		line += fmt.Sprintf(" (attempt %d)", ev.Attempt)
	case status.DecodeError:
		line += fmt.Sprintf(" (code %d at byte %d)", ev.DecoderCode, ev.Offset)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}
