// Package watcher monitors a source tree for new media files and reports
// them once they have settled, so a follow-up run can pick them up.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mediasort/mediasort/internal/events"
	"github.com/mediasort/mediasort/internal/logger"
	"github.com/mediasort/mediasort/internal/processors"
)

// settleDelay is how long a file must go without writes before it is
// considered fully copied in.
const settleDelay = 2 * time.Second

// Watcher tails a directory tree with fsnotify and publishes file.found
// events for supported media files after they stop changing.
type Watcher struct {
	root string
	bus  *events.Bus

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(root string, bus *events.Bus) *Watcher {
	return &Watcher{
		root:    root,
		bus:     bus,
		pending: make(map[string]*time.Timer),
	}
}

// Watch blocks until ctx is cancelled, publishing events as files arrive.
// New subdirectories are added to the watch set as they appear.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	logger.Info("watching for new files", "path", w.root)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fw, event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.addTree(fw, event.Name); err != nil {
				logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}

	if !processors.IsSupported(event.Name) {
		return
	}
	w.settle(event.Name)
}

// settle (re)arms the per-file debounce timer; the file is only reported once
// writes have stopped for settleDelay.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		info, err := os.Stat(path)
		if err != nil {
			return
		}
		logger.Debug("file settled", "path", path, "size", info.Size())
		w.bus.Publish(events.Event{
			Type:    events.EventFileFound,
			Source:  "watcher",
			Message: path,
			Data: map[string]interface{}{
				"path": path,
				"size": info.Size(),
				"type": string(processors.DetectType(path)),
			},
		})
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				logger.Warn("failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}
