package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDir = "airwave"

// XDGDirs provides XDG Base Directory compliant paths
type XDGDirs struct{}

// NewXDGDirs creates a new XDG directory manager
func NewXDGDirs() *XDGDirs {
	return &XDGDirs{}
}

// GetCachePath returns the cache directory for a purpose, or the app cache root when empty
func (x *XDGDirs) GetCachePath(purpose string) string {
	return filepath.Join(xdg.CacheHome, appDir, purpose)
}

// GetConfigPaths returns config file candidates, user dir first then system dirs
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	paths := []string{filepath.Join(xdg.ConfigHome, appDir, filename)}
	for _, dir := range xdg.ConfigDirs {
		paths = append(paths, filepath.Join(dir, appDir, filename))
	}

	slog.Debug("generated config paths",
		"filename", filename,
		"total_paths", len(paths),
		"system_paths", len(xdg.ConfigDirs))
	return paths
}

// CreateCacheDir creates the cache directory for a purpose
func (x *XDGDirs) CreateCacheDir(purpose string) error {
	path := x.GetCachePath(purpose)
	if err := os.MkdirAll(path, 0755); err != nil {
		slog.Error("failed to create cache directory", "path", path, "error", err)
		return err
	}
	slog.Debug("cache directory ready", "path", path)
	return nil
}
