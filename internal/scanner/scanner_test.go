package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediasort/mediasort/internal/processors"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
}

func collect(t *testing.T, s *Scanner, root string) []Entry {
	t.Helper()
	var entries []Entry
	for entry := range s.Scan(context.Background(), root) {
		entries = append(entries, entry)
	}
	return entries
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestScanFindsFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"))
	writeFile(t, filepath.Join(root, "sub", "b.mp4"))
	writeFile(t, filepath.Join(root, "sub", "deep", "c.txt"))

	entries := collect(t, New(nil, nil, false), root)
	require.Len(t, entries, 3)

	byPath := make(map[string]Entry)
	for _, e := range entries {
		byPath[filepath.Base(e.Path)] = e
	}
	assert.Equal(t, processors.TypeImage, byPath["a.jpg"].Type)
	assert.Equal(t, processors.TypeVideo, byPath["b.mp4"].Type)
	assert.Equal(t, int64(4), byPath["a.jpg"].Size)
}

func TestScanSkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "visible.jpg"))
	writeFile(t, filepath.Join(root, ".hidden.jpg"))
	writeFile(t, filepath.Join(root, ".cache", "thumb.jpg"))

	entries := collect(t, New(nil, nil, false), root)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible.jpg", filepath.Base(entries[0].Path))

	entries = collect(t, New(nil, nil, true), root)
	assert.Len(t, entries, 3)
}

func TestScanSkipFolderGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep", "a.jpg"))
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "b.jpg"))

	entries := collect(t, New([]string{"node_modules"}, nil, false), root)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Path, "keep")
}

func TestScanSkipFileGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "done.jpg"))
	writeFile(t, filepath.Join(root, "partial.jpg.part"))
	writeFile(t, filepath.Join(root, "scratch.tmp"))

	entries := collect(t, New(nil, []string{"*.tmp", "*.part"}, false), root)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(root, "done.jpg"), entries[0].Path)
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, filepath.Join(root, "dir", "file"+string(rune('a'+i%26))+".jpg"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := New(nil, nil, false).Scan(ctx, root)
	var n int
	for range ch {
		n++
	}
	// The channel must close promptly; a cancelled walk may emit a handful
	// of buffered entries but never the full tree plus more.
	assert.LessOrEqual(t, n, 50)
}

func TestScanMissingRootClosesChannel(t *testing.T) {
	entries := collect(t, New(nil, nil, false), filepath.Join(t.TempDir(), "absent"))
	assert.Empty(t, paths(entries))
}
