// Package fsutil provides the low-level filesystem primitives the pipeline
// builds on: atomic copies, sidecar discovery, empty-directory pruning and
// destination free-space checks.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const copyBufferSize = 64 * 1024

// CopyFileStreaming copies src to dst through a fixed-size buffer, never
// holding the whole file in memory. The destination directory must exist.
func CopyFileStreaming(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	buf := make([]byte, copyBufferSize)
	written, err := io.CopyBuffer(out, in, buf)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("failed to copy %s: %w", src, err)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return written, nil
}

// CopyFileAtomic copies src to dst so that dst is visible only once fully
// written: the bytes land in a temp file in the destination directory, which
// is then renamed over the final name. A crash mid-copy leaves at most an
// orphaned temp file, never a partial dst.
func CopyFileAtomic(src, dst string) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".mediasort-tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath)

	written, err := CopyFileStreaming(src, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to finalize %s: %w", dst, err)
	}

	// Preserve source timestamps on the copy, best effort.
	if info, err := os.Stat(src); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return written, nil
}

// RemoveEmptyDirs removes each directory in dirs that is empty, deepest paths
// first so children are pruned before their parents. It returns the count
// removed. Non-empty and already-missing directories are ignored.
func RemoveEmptyDirs(dirs []string) int {
	sorted := make([]string, len(dirs))
	copy(sorted, dirs)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})

	removed := 0
	for _, dir := range sorted {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			removed++
		}
	}
	return removed
}
