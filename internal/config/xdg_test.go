package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestXDGConfigPaths(t *testing.T) {
	x := NewXDGDirs()
	paths := x.GetConfigPaths(ConfigFileName)

	if len(paths) == 0 {
		t.Fatal("GetConfigPaths returned no paths")
	}
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			t.Errorf("config path %s is not absolute", p)
		}
		if !strings.HasSuffix(p, filepath.Join("airwave", ConfigFileName)) {
			t.Errorf("config path %s does not end in airwave/%s", p, ConfigFileName)
		}
	}
}

func TestXDGCachePath(t *testing.T) {
	x := NewXDGDirs()

	root := x.GetCachePath("")
	if filepath.Base(root) != "airwave" {
		t.Errorf("cache root should be the airwave dir, got %s", root)
	}
	logs := x.GetCachePath("logs")
	if logs != filepath.Join(root, "logs") {
		t.Errorf("expected logs under %s, got %s", root, logs)
	}
}
