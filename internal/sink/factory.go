package sink

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

// Sink types
const (
	TypeAuto    = "auto"
	TypeMalgo   = "malgo"
	TypeCommand = "command"
	TypeWav     = "wav"
	TypeDiscard = "discard"
)

// Factory errors
var (
	ErrInvalidSinkType = errors.New("invalid sink type")
	ErrSinkUnavailable = errors.New("sink not available")
)

// Options select and tune a sink
type Options struct {
	Type       string
	Command    string  // player for TypeCommand, detected when empty
	RecordPath string  // also record to this WAV file
	Volume     float32 // 0 keeps the default of 1.0
	FIFOSize   int
	Paced      bool // pace TypeDiscard to real time
}

// Factory creates sinks with platform detection
type Factory struct {
	fs            afero.Fs
	isWSLFunc     func() bool
	commandExists func(string) bool
}

// NewFactory creates a Factory with real platform detection
func NewFactory(fs afero.Fs) *Factory {
	return NewFactoryWithDependencies(fs, IsWSL, CommandExists)
}

// NewFactoryWithDependencies creates a factory with injected dependencies for testing
func NewFactoryWithDependencies(fs afero.Fs, isWSLFunc func() bool, commandExists func(string) bool) *Factory {
	return &Factory{fs: fs, isWSLFunc: isWSLFunc, commandExists: commandExists}
}

// SupportedTypes lists every sink type
func (f *Factory) SupportedTypes() []string {
	return []string{TypeAuto, TypeMalgo, TypeCommand, TypeWav, TypeDiscard}
}

// IsValidType reports whether t names a sink type. Empty means auto.
func (f *Factory) IsValidType(t string) bool {
	if t == "" {
		return true
	}
	for _, s := range f.SupportedTypes() {
		if s == t {
			return true
		}
	}
	return false
}

// DetectOptimal picks the sink type auto resolves to
func (f *Factory) DetectOptimal() string {
	return detectOptimalSinkWithChecker(f.isWSLFunc(), f.commandExists)
}

// PreferredCommand is the first raw-capable player found, or ""
func (f *Factory) PreferredCommand() string {
	return preferredCommandWithChecker(f.commandExists)
}

// Create builds the sink described by opts
func (f *Factory) Create(opts Options) (Sink, error) {
	t := opts.Type
	if t == "" {
		t = TypeAuto
	}
	if t == TypeAuto {
		t = f.DetectOptimal()
		slog.Debug("auto-detected sink", "type", t)
	}

	var s Sink
	switch t {
	case TypeMalgo:
		s = NewMalgoSink(opts.FIFOSize)
	case TypeCommand:
		cmd := opts.Command
		if cmd == "" {
			cmd = f.PreferredCommand()
		}
		if cmd == "" {
			return nil, fmt.Errorf("%w: no system audio commands found", ErrSinkUnavailable)
		}
		cs, err := NewCommandSink(cmd)
		if err != nil {
			return nil, err
		}
		s = cs
	case TypeWav:
		if opts.RecordPath == "" {
			return nil, fmt.Errorf("%w: wav sink needs a record path", ErrSinkUnavailable)
		}
		return NewWavSink(f.fs, opts.RecordPath, 0), nil
	case TypeDiscard:
		s = NewDiscardSink(opts.Paced)
	default:
		slog.Error("invalid sink type requested", "type", opts.Type)
		return nil, fmt.Errorf("%w: %s", ErrInvalidSinkType, opts.Type)
	}

	if v, ok := s.(Volume); ok && opts.Volume > 0 {
		if err := v.SetVolume(opts.Volume); err != nil {
			return nil, err
		}
	}
	if opts.RecordPath != "" {
		s = NewTeeSink(s, NewWavSink(f.fs, opts.RecordPath, 0))
	}
	slog.Debug("sink created", "type", t, "record_path", opts.RecordPath)
	return s, nil
}
