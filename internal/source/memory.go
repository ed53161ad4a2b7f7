package source

import "bytes"

// MemorySource serves a byte slice
type MemorySource struct {
	r      *bytes.Reader
	size   int64
	closed bool
}

// NewMemorySource wraps data. The slice is not copied.
func NewMemorySource(data []byte) *MemorySource {
	return &MemorySource{r: bytes.NewReader(data), size: int64(len(data))}
}

func (s *MemorySource) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrNotOpen
	}
	return s.r.Read(p)
}

func (s *MemorySource) ReadNonBlock(p []byte) (int, error) {
	return s.Read(p)
}

func (s *MemorySource) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrNotOpen
	}
	return s.r.Seek(offset, whence)
}

func (s *MemorySource) Close() error {
	s.closed = true
	return nil
}

func (s *MemorySource) IsOpen() bool { return !s.closed }

func (s *MemorySource) Size() int64 { return s.size }

func (s *MemorySource) Pos() int64 {
	return s.size - int64(s.r.Len())
}

func (s *MemorySource) Loop() bool { return !s.closed && s.r.Len() > 0 }

var _ ByteSource = (*MemorySource)(nil)
