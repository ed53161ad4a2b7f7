// Package fs hands out the afero filesystems airwave runs on, so commands and
// tests can swap the OS filesystem for an in-memory one.
package fs

import (
	"github.com/spf13/afero"
)

// Factory provides filesystem instances for production and testing
type Factory interface {
	// Production returns a filesystem that operates on the real OS filesystem
	Production() afero.Fs
	// Memory returns an in-memory filesystem for testing
	Memory() afero.Fs
}

// DefaultFactory provides the standard filesystem factory implementation
type DefaultFactory struct{}

// NewDefaultFactory creates a new filesystem factory
func NewDefaultFactory() Factory {
	return &DefaultFactory{}
}

// Production returns a filesystem that operates on the real OS filesystem
func (f *DefaultFactory) Production() afero.Fs {
	return afero.NewOsFs()
}

// Memory returns an in-memory filesystem for testing
func (f *DefaultFactory) Memory() afero.Fs {
	return afero.NewMemMapFs()
}

// ReadOnly wraps base so stream sources can never modify what they play
func ReadOnly(base afero.Fs) afero.Fs {
	if _, ok := base.(*afero.ReadOnlyFs); ok {
		return base
	}
	return afero.NewReadOnlyFs(base)
}
