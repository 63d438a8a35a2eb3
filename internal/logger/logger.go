// Package logger provides structured logging for mediasort, backed by hclog.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu  sync.RWMutex
	log = hclog.New(&hclog.LoggerOptions{
		Name:   "mediasort",
		Level:  hclog.Info,
		Output: os.Stderr,
	})
)

// SetLevel adjusts the global log level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	log.SetLevel(hclog.LevelFromString(level))
}

// Named returns a sub-logger with the given name appended.
func Named(name string) hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.Named(name)
}

// Debug logs at debug level with key/value pairs.
func Debug(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	log.Debug(msg, args...)
}

// Info logs at info level with key/value pairs.
func Info(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	log.Info(msg, args...)
}

// Warn logs at warn level with key/value pairs.
func Warn(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	log.Warn(msg, args...)
}

// Error logs at error level with key/value pairs.
func Error(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	log.Error(msg, args...)
}
