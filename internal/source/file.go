package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
)

// FileSource reads a local file through afero so tests can use an in-memory filesystem
type FileSource struct {
	path string
	file afero.File
	size int64
	pos  int64
}

// OpenFile opens path on fs
func OpenFile(fs afero.Fs, path string) (*FileSource, error) {
	slog.Debug("opening file source", "path", path)

	f, err := fs.Open(path)
	if err != nil {
		slog.Error("failed to open file source", "path", path, "error", err)
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	slog.Debug("file source opened", "path", path, "size", info.Size())
	return &FileSource{path: path, file: f, size: info.Size()}, nil
}

// Read reads from the current position. Files never block for long so both reads behave the same.
func (s *FileSource) Read(p []byte) (int, error) {
	if s.file == nil {
		return 0, ErrNotOpen
	}
	n, err := s.file.Read(p)
	s.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		slog.Error("file source read failed", "path", s.path, "error", err)
	}
	return n, err
}

// ReadNonBlock is Read
func (s *FileSource) ReadNonBlock(p []byte) (int, error) {
	return s.Read(p)
}

// Seek repositions the file
func (s *FileSource) Seek(offset int64, whence int) (int64, error) {
	if s.file == nil {
		return 0, ErrNotOpen
	}
	pos, err := s.file.Seek(offset, whence)
	if err != nil {
		return s.pos, err
	}
	s.pos = pos
	return pos, nil
}

// Close closes the file
func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	slog.Debug("file source closed", "path", s.path)
	return err
}

// IsOpen reports whether the file is still open
func (s *FileSource) IsOpen() bool { return s.file != nil }

// Size returns the file size
func (s *FileSource) Size() int64 { return s.size }

// Pos returns the current offset
func (s *FileSource) Pos() int64 { return s.pos }

// Loop reports whether unread bytes remain
func (s *FileSource) Loop() bool { return s.file != nil && s.pos < s.size }

// Path returns the file path
func (s *FileSource) Path() string { return s.path }

var _ ByteSource = (*FileSource)(nil)
