package decoder

import (
	"errors"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedFormat is returned when no registered format matches a stream
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format describes one compressed format the engine can play
type Format struct {
	Name       string
	Extensions []string // lower case, with leading dot
	MIMETypes  []string
	New        Factory
}

func (f Format) matchesMIME(m string) bool {
	for _, t := range f.MIMETypes {
		if strings.EqualFold(t, m) {
			return true
		}
	}
	return false
}

func (f Format) matchesExtension(ext string) bool {
	for _, e := range f.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Registry maps stream metadata to decoder factories
type Registry struct {
	formats []Format
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// MP3Format is the Layer III format backed by MP3Decoder
var MP3Format = Format{
	Name:       "MP3",
	Extensions: []string{".mp3", ".mpga"},
	MIMETypes:  []string{"audio/mpeg", "audio/mp3", "audio/x-mpeg", "audio/mpeg3", "audio/x-mp3"},
	New:        NewMP3,
}

// NewDefaultRegistry creates a registry with every built-in format
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MP3Format)
	slog.Debug("default decoder registry initialized", "supported_formats", r.Formats())
	return r
}

// Register adds a format. Formats registered first win ties.
func (r *Registry) Register(f Format) {
	if f.New == nil {
		slog.Warn("attempted to register format without a factory", "format", f.Name)
		return
	}
	r.formats = append(r.formats, f)
}

// Formats lists registered format names
func (r *Registry) Formats() []string {
	names := make([]string, 0, len(r.formats))
	for _, f := range r.formats {
		names = append(names, f.Name)
	}
	return names
}

// ByName finds a format by case-insensitive name
func (r *Registry) ByName(name string) (Format, bool) {
	for _, f := range r.formats {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Format{}, false
}

// ByContentType matches an HTTP Content-Type value, parameters ignored
func (r *Registry) ByContentType(contentType string) (Format, bool) {
	if contentType == "" {
		return Format{}, false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	for _, f := range r.formats {
		if f.matchesMIME(mediaType) {
			return f, true
		}
	}
	return Format{}, false
}

// ByExtension matches the extension of a file name or URL path
func (r *Registry) ByExtension(name string) (Format, bool) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := path.Ext(name)
	if ext == "" {
		return Format{}, false
	}
	for _, f := range r.formats {
		if f.matchesExtension(ext) {
			return f, true
		}
	}
	return Format{}, false
}

// ByContent sniffs the first bytes of a stream
func (r *Registry) ByContent(head []byte) (Format, bool) {
	if len(head) == 0 {
		return Format{}, false
	}
	mtype := mimetype.Detect(head)
	for m := mtype; m != nil; m = m.Parent() {
		for _, f := range r.formats {
			if f.matchesMIME(m.String()) {
				slog.Debug("format detected by magic bytes", "format", f.Name, "mime_type", mtype.String())
				return f, true
			}
		}
	}
	// raw Layer III without a tag
	if _, code := ParseHeader(head); code == ErrNone {
		if f, ok := r.ByName(MP3Format.Name); ok {
			return f, true
		}
	}
	return Format{}, false
}

// Detect picks a format from the content type, the leading bytes and the name, in that order
func (r *Registry) Detect(name, contentType string, head []byte) (Format, error) {
	if f, ok := r.ByContentType(contentType); ok {
		slog.Debug("format detected by content type", "format", f.Name, "content_type", contentType)
		return f, nil
	}
	if f, ok := r.ByContent(head); ok {
		return f, nil
	}
	if f, ok := r.ByExtension(name); ok {
		slog.Debug("format detected by extension", "format", f.Name, "name", name)
		return f, nil
	}
	slog.Warn("no format detection method succeeded", "name", name, "content_type", contentType)
	return Format{}, ErrUnsupportedFormat
}
