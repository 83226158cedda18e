package offlinecache

import "testing"

func TestSamePath(t *testing.T) {
	tests := []struct {
		pathname string
		relative string
		want     bool
	}{
		{"/index.html", "./index.html", true},
		{"/sub/path/index.html", "./index.html", true},
		{"/", "./", true},
		{"/temperature-converter/", "./", true},
		{"/index.html", "./converter.js", false},
		{"/index.htm", "./index.html", false},
		{"/converter.js", "/converter.js", true},
	}
	for _, tt := range tests {
		if got := SamePath(tt.pathname, tt.relative); got != tt.want {
			t.Errorf("SamePath(%q, %q) = %v, want %v", tt.pathname, tt.relative, got, tt.want)
		}
	}
}

func TestManifestMatches(t *testing.T) {
	m := Manifest(DefaultPrecache)
	for _, path := range []string{"/", "/icon512.png", "/project/manifest.json", "/project/"} {
		if !m.Matches(path) {
			t.Errorf("%s should match", path)
		}
	}
	for _, path := range []string{"/extra.js", "/api/data.json"} {
		if m.Matches(path) {
			t.Errorf("%s should not match", path)
		}
	}
}
