// Package scanner enumerates candidate files under a source root, applying
// hidden-entry and glob-based skip filters before the pipeline ever sees a
// path.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mediasort/mediasort/internal/logger"
	"github.com/mediasort/mediasort/internal/processors"
)

// Entry is one scanned file.
type Entry struct {
	Path string
	Size int64
	Type processors.FileType
}

// Scanner walks a directory tree producing a lazy, finite sequence of entries.
type Scanner struct {
	skipFolders   []string
	skipFiles     []string
	includeHidden bool
}

// New creates a scanner with the given skip globs. Patterns use doublestar
// syntax and match against entry base names.
func New(skipFolders, skipFiles []string, includeHidden bool) *Scanner {
	return &Scanner{
		skipFolders:   skipFolders,
		skipFiles:     skipFiles,
		includeHidden: includeHidden,
	}
}

// Scan walks root and sends entries on the returned channel, which is closed
// when the walk finishes or ctx is cancelled. Unreadable entries are skipped,
// not fatal.
func (s *Scanner) Scan(ctx context.Context, root string) <-chan Entry {
	out := make(chan Entry, 256)

	go func() {
		defer close(out)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Debug("scan skipping unreadable entry", "path", path, "error", err)
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if d.IsDir() {
				if path != root && s.shouldSkipFolder(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			if s.shouldSkipFile(d.Name()) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				logger.Debug("scan skipping unstatable file", "path", path, "error", err)
				return nil
			}

			select {
			case out <- Entry{Path: path, Size: info.Size(), Type: processors.DetectType(path)}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil && err != context.Canceled {
			logger.Warn("scan terminated early", "root", root, "error", err)
		}
	}()

	return out
}

func (s *Scanner) shouldSkipFolder(name string) bool {
	if !s.includeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return matchAny(s.skipFolders, name)
}

func (s *Scanner) shouldSkipFile(name string) bool {
	if !s.includeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return matchAny(s.skipFiles, name)
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
