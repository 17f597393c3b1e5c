// Package audit provides structured logging for import runs.
package audit

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu     sync.RWMutex
	logger = New(hclog.Info)
)

// New creates the default importer logger at level.
func New(level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "gtfs-import",
		Level:  level,
		Output: os.Stderr,
	})
}

// Logger returns the process logger.
func Logger() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process logger. A nil l discards all output.
func SetLogger(l hclog.Logger) {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Log writes an info event. args are alternating key/value pairs.
func Log(msg string, args ...interface{}) {
	Logger().Info(msg, args...)
}

// Warn writes a warning event.
func Warn(msg string, args ...interface{}) {
	Logger().Warn(msg, args...)
}

// Debug writes a debug event.
func Debug(msg string, args ...interface{}) {
	Logger().Debug(msg, args...)
}
