package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// sidecarExtensions are metadata companions that travel with a media file.
var sidecarExtensions = map[string]bool{
	".xmp": true, // Adobe metadata
	".aae": true, // Apple photo edits
	".thm": true, // thumbnails
	".srt": true, // subtitles
	".sub": true,
	".lrc": true, // lyrics
}

// IsSidecar reports whether path has a sidecar extension.
func IsSidecar(path string) bool {
	return sidecarExtensions[strings.ToLower(filepath.Ext(path))]
}

// baseName strips every extension, so "photo.jpg.xmp" and "photo.jpg" share
// the base "photo".
func baseName(path string) string {
	name := filepath.Base(path)
	for {
		ext := filepath.Ext(name)
		if ext == "" {
			return name
		}
		name = strings.TrimSuffix(name, ext)
	}
}

// FindSidecars returns the sidecar files that accompany path, matched by
// shared base name in the same directory.
func FindSidecars(path string) []string {
	dir := filepath.Dir(path)
	base := baseName(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var sidecars []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		candidate := filepath.Join(dir, entry.Name())
		if candidate == path || !IsSidecar(candidate) {
			continue
		}
		if baseName(candidate) == base || strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())) == filepath.Base(path) {
			sidecars = append(sidecars, candidate)
		}
	}
	return sidecars
}
